// Package telegram is a minimal Bot API adapter: enough to send messages
// and long-poll for commands. The rest of the service only sees the
// Messenger and Notifier interfaces it satisfies.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	// Long-poll window requested from getUpdates; the HTTP client timeout
	// has to exceed it with some slack.
	pollTimeoutSeconds = 25

	errorBackoff = 3 * time.Second
)

// Update is one item from getUpdates. Non-message updates arrive with a nil
// Message and are skipped by the caller.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client talks to the Telegram Bot API.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a Bot API client. A nil httpClient gets a default whose
// timeout leaves room for the long-poll window.
func NewClient(token string, logger *slog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: (pollTimeoutSeconds + 10) * time.Second}
	}
	return &Client{
		logger:     logger.With("component", "telegram"),
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// SendMessage delivers text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: chatID, Text: text}

	var resp apiResponse
	if err := c.call(ctx, "sendMessage", payload, &resp); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Message sent", "chat_id", chatID)
	return nil
}

// Poll long-polls getUpdates and hands every update to handle. It returns
// when ctx is canceled; transient fetch errors are logged and retried after
// a short backoff.
func (c *Client) Poll(ctx context.Context, handle func(ctx context.Context, u Update)) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "Failed to fetch updates", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			handle(ctx, u)
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := struct {
		Offset  int64 `json:"offset"`
		Timeout int   `json:"timeout"`
	}{Offset: offset, Timeout: pollTimeoutSeconds}

	var resp apiResponse
	if err := c.call(ctx, "getUpdates", payload, &resp); err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("telegram: unexpected getUpdates result: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out *apiResponse) error {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBytes))
	if err != nil {
		return fmt.Errorf("telegram: failed to create %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("telegram: failed to read %s response: %w", method, err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("telegram: unparseable %s response (status %d): %w", method, httpResp.StatusCode, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram: %s rejected (status %d): %s", method, httpResp.StatusCode, out.Description)
	}
	return nil
}
