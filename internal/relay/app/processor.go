// Package app holds the callback decision pipeline: extract fields from a
// parsed webhook payload, resolve the destination subscriber, forward the
// OTP or escalate to the admin.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mnitnetwork/otp-relay/internal/mapping"
	"github.com/mnitnetwork/otp-relay/internal/otp"
)

// Candidate payload field names, tried in order, first present non-empty
// string wins. Upstream senders disagree on naming; keeping the lists
// declarative keeps the order visible and testable.
var (
	numberFields = []string{"to", "number", "full_number", "msisdn"}
	bodyFields   = []string{"message", "text", "body", "sms"}
	codeFields   = []string{"otp", "code"}
)

const payloadExcerptLimit = 1000

// Result classifies how a callback was handled. Only ResultMissingNumber
// maps to a client-visible failure; an unresolvable destination is this
// system's routing gap, not the caller's.
type Result int

const (
	ResultForwarded Result = iota
	ResultEscalated
	ResultDropped
	ResultMissingNumber
)

// Notifier delivers a text to a subscriber's chat session.
type Notifier interface {
	Send(ctx context.Context, subscriber mapping.SubscriberID, text string) error
}

// SubscriberResolver maps a raw inbound number to its subscriber.
// Satisfied by mapping.Resolver.
type SubscriberResolver interface {
	Resolve(raw string) (mapping.SubscriberID, bool)
}

// Processor runs the post-parse half of the callback pipeline. It never
// mutates the mapping store; its only side effects are outbound sends.
type Processor struct {
	resolver SubscriberResolver
	notifier Notifier
	adminID  mapping.SubscriberID // 0 means no admin configured
	logger   *slog.Logger
}

// NewProcessor creates a Processor. adminID 0 disables escalation.
func NewProcessor(resolver SubscriberResolver, notifier Notifier, adminID mapping.SubscriberID, logger *slog.Logger) *Processor {
	return &Processor{
		resolver: resolver,
		notifier: notifier,
		adminID:  adminID,
		logger:   logger.With("component", "callback_processor"),
	}
}

// Process handles one authenticated, parsed callback payload. Send failures
// are logged and absorbed; delivery downstream is at-least-once best effort.
func (p *Processor) Process(ctx context.Context, payload map[string]any) Result {
	logger := p.logger.With("event_id", uuid.NewString())

	number := firstString(payload, numberFields)
	body := firstString(payload, bodyFields)
	code, hasCode := firstString(payload, codeFields), true
	if code == "" {
		code, hasCode = otp.Extract(body)
	}

	if number == "" {
		logger.WarnContext(ctx, "Callback carries no destination number")
		p.escalate(ctx, logger, "UNROUTABLE: callback without destination number", payload)
		callbacksTotal.WithLabelValues("missing_number").Inc()
		return ResultMissingNumber
	}

	subscriber, found := p.resolver.Resolve(number)
	if !found {
		if p.escalate(ctx, logger, fmt.Sprintf("UNMAPPED: OTP callback for %s", number), payload) {
			logger.InfoContext(ctx, "No mapping found, escalated to admin", "number", number)
			callbacksTotal.WithLabelValues("escalated").Inc()
			return ResultEscalated
		}
		logger.InfoContext(ctx, "No mapping found and no admin configured, dropping", "number", number)
		callbacksTotal.WithLabelValues("dropped").Inc()
		return ResultDropped
	}

	var text string
	if hasCode {
		text = fmt.Sprintf("OTP for %s: %s", number, code)
	} else {
		text = fmt.Sprintf("⚠ OTP for %s, no code detected:\n%s", number, body)
	}
	if err := p.notifier.Send(ctx, subscriber, text); err != nil {
		logger.ErrorContext(ctx, "Failed to forward OTP", "error", err, "subscriber_id", subscriber)
	} else {
		logger.InfoContext(ctx, "Forwarded OTP", "number", number, "subscriber_id", subscriber)
	}
	callbacksTotal.WithLabelValues("forwarded").Inc()
	return ResultForwarded
}

// escalate sends text plus a payload excerpt to the admin subscriber.
// Returns false when no admin is configured.
func (p *Processor) escalate(ctx context.Context, logger *slog.Logger, text string, payload map[string]any) bool {
	if p.adminID == 0 {
		return false
	}
	msg := text + "\npayload: " + payloadExcerpt(payload)
	if err := p.notifier.Send(ctx, p.adminID, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to notify admin", "error", err)
	}
	return true
}

func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func payloadExcerpt(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	if len(data) > payloadExcerptLimit {
		data = data[:payloadExcerptLimit]
	}
	return string(data)
}
