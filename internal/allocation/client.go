package allocation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	numberPath = "/mapi/v1/mdashboard/getnum/number"
	infoPath   = "/mapi/v1/mdashboard/getnum/info"

	apiKeyHeader = "mapikey"
)

// ErrNoNumber is reported when a successful upstream response carries none
// of the known number fields.
var ErrNoNumber = errors.New("allocation: number not found in response")

// UpstreamError is a non-success status from the allocation API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("allocation API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("allocation API returned status %d", e.StatusCode)
}

// Allocated is the usable part of a successful allocation response. Number
// is kept as reported upstream; it is what gets shown back to the user.
type Allocated struct {
	Number   string
	Country  string
	Operator string
	Status   string
}

// InfoQuery parameterizes the admin-only allocation info report.
type InfoQuery struct {
	Date   string
	Page   string
	Search string
	Status string
}

type numberRequest struct {
	Range string `json:"range"`
	// Both flags are sent as explicit nulls; the upstream applies its own
	// defaults when they are absent values.
	IsNational *bool `json:"is_national"`
	RemovePlus *bool `json:"remove_plus"`
}

type numberResponse struct {
	Message string `json:"message"`
	Data    struct {
		Number     string `json:"number"`
		FullNumber string `json:"full_number"`
		Copy       string `json:"copy"`
		Country    string `json:"country"`
		Operator   string `json:"operator"`
		Status     string `json:"status"`
	} `json:"data"`
}

// Client talks to the upstream number allocation API.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates an allocation API client. A nil httpClient gets a
// bounded default; upstream calls must fail rather than hang.
func NewClient(baseURL, apiKey string, logger *slog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		logger:     logger.With("component", "allocation_client"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// AllocateNumber requests a number for the given range specification. It
// returns an UpstreamError for non-success statuses and ErrNoNumber when the
// response parses but carries no number field.
func (c *Client) AllocateNumber(ctx context.Context, rangeSpec string) (*Allocated, error) {
	reqBytes, err := json.Marshal(numberRequest{Range: rangeSpec})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allocation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+numberPath, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create allocation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	c.logger.DebugContext(ctx, "Requesting number allocation", "range", rangeSpec)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Allocation request failed", "error", err, "range", rangeSpec)
		return nil, fmt.Errorf("allocation request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read allocation response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		upErr := &UpstreamError{StatusCode: httpResp.StatusCode}
		var parsed numberResponse
		if json.Unmarshal(respBody, &parsed) == nil {
			upErr.Message = parsed.Message
		}
		c.logger.WarnContext(ctx, "Allocation rejected upstream",
			"status_code", httpResp.StatusCode, "message", upErr.Message, "range", rangeSpec)
		return nil, upErr
	}

	var parsed numberResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.logger.ErrorContext(ctx, "Unparseable allocation response",
			"error", err, "body", truncate(string(respBody), 500))
		return nil, ErrNoNumber
	}

	number := firstNonEmpty(parsed.Data.Number, parsed.Data.FullNumber, parsed.Data.Copy)
	if number == "" {
		c.logger.ErrorContext(ctx, "Allocation response carries no number",
			"body", truncate(string(respBody), 500))
		return nil, ErrNoNumber
	}

	c.logger.InfoContext(ctx, "Number allocated upstream",
		"number", number, "country", parsed.Data.Country, "operator", parsed.Data.Operator)
	return &Allocated{
		Number:   number,
		Country:  parsed.Data.Country,
		Operator: parsed.Data.Operator,
		Status:   parsed.Data.Status,
	}, nil
}

// AllocationInfo fetches the upstream allocation report as raw text. The
// caller is responsible for truncating it to a displayable length.
func (c *Client) AllocationInfo(ctx context.Context, q InfoQuery) (string, error) {
	params := url.Values{}
	params.Set("date", q.Date)
	params.Set("page", q.Page)
	params.Set("search", q.Search)
	params.Set("status", q.Status)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+infoPath+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create info request: %w", err)
	}
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Allocation info request failed", "error", err)
		return "", fmt.Errorf("allocation info request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read info response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", &UpstreamError{StatusCode: httpResp.StatusCode, Message: truncate(string(respBody), 200)}
	}
	return string(respBody), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
