package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mnitnetwork/otp-relay/internal/relay/app"
)

const (
	secretHeader = "X-Callback-Secret"
	apiKeyHeader = "mapikey"

	// MaxRequestBodySize bounds callback payloads; anything larger is cut
	// off and will fail JSON parsing.
	MaxRequestBodySize = 64 * 1024
)

// CallbackProcessor is the decision pipeline behind the webhook.
// Satisfied by app.Processor.
type CallbackProcessor interface {
	Process(ctx context.Context, payload map[string]any) app.Result
}

// CallbackHandler terminates the inbound OTP webhook: authenticate, parse,
// dispatch to the processor, translate its result to an HTTP status.
type CallbackHandler struct {
	processor CallbackProcessor
	secret    string
	apiKey    string
	logger    *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler. When secret is non-empty it
// is the only accepted credential; otherwise the static API key applies.
func NewCallbackHandler(processor CallbackProcessor, secret, apiKey string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		processor: processor,
		secret:    secret,
		apiKey:    apiKey,
		logger:    logger.With("handler", "callback"),
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *CallbackHandler) RegisterRoutes(r chi.Router) {
	r.Post("/callback", h.HandleCallback)
}

// HandleCallback processes one OTP delivery notification. 403 on failed
// authentication, 400 on malformed payloads and missing destination
// numbers, 200 on forwarded, escalated and deliberately dropped callbacks.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if !h.authorized(r) {
		logger.WarnContext(ctx, "Callback rejected, authentication failed")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read callback body", "error", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		logger.WarnContext(ctx, "Callback payload is not a JSON object", "error", err)
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	switch h.processor.Process(ctx, payload) {
	case app.ResultMissingNumber:
		http.Error(w, "missing destination number", http.StatusBadRequest)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// authorized checks the shared secret when one is configured, otherwise the
// static API key. A configured secret is never bypassed by a valid API key.
func (h *CallbackHandler) authorized(r *http.Request) bool {
	if h.secret != "" {
		return r.Header.Get(secretHeader) == h.secret
	}
	return r.Header.Get(apiKeyHeader) == h.apiKey
}
