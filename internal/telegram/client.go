// Package telegram implements a thin Telegram Bot API client covering the
// calls the bridge needs: sendMessage, getUpdates, and deleteWebhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_bridge_bot/internal/logging"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	// The HTTP timeout must exceed the server-side long-poll window plus
	// network latency, otherwise every empty getUpdates call would fail.
	defaultHTTPTimeout = 65 * time.Second

	// ParseModeHTML is applied to every outbound message.
	ParseModeHTML = "HTML"
)

// APIError represents a non-ok response envelope from the Telegram Bot API.
type APIError struct {
	Code        int
	Description string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsConflict reports whether err is a Telegram 409 response, which signals a
// second consumer (webhook or poller) holding the same bot's update stream.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Client issues authenticated calls against one bot token's REST endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Entry
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Telegram API base URL; used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient constructs a Client for the given bot token.
func NewClient(token string, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// SendMessageParams describes one outbound sendMessage call.
type SendMessageParams struct {
	ChatID      int64
	Text        string
	ReplyMarkup models.ReplyMarkup
}

// SendMessage posts one message. Exactly one message is sent per call; retrying
// is the caller's responsibility.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) error {
	body := map[string]interface{}{
		"chat_id":    params.ChatID,
		"text":       params.Text,
		"parse_mode": ParseModeHTML,
	}
	if params.ReplyMarkup != nil {
		body["reply_markup"] = params.ReplyMarkup
	}

	if err := c.call(ctx, "sendMessage", body, nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// GetUpdates long-polls for updates starting at offset, blocking server-side up
// to timeoutSeconds. An empty batch on timeout is a normal result, not an error.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]models.Update, error) {
	body := map[string]interface{}{
		"timeout": timeoutSeconds,
	}
	if offset > 0 {
		body["offset"] = offset
	}

	var updates []models.Update
	if err := c.call(ctx, "getUpdates", body, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	return updates, nil
}

// DeleteWebhook clears any webhook registration for the bot. Telegram forbids
// a webhook and a long-poll consumer on the same token, so this runs before
// polling starts and again when a 409 conflict is observed.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := c.call(ctx, "deleteWebhook", nil, nil); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	return nil
}

func (c *Client) call(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logging.Fields{
		"event":  "telegram_api_call",
		"method": method,
	}).Debug("calling telegram api")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if !envelope.OK {
		return &APIError{
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}
