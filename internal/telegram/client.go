// Package telegram is a minimal Telegram Bot API client covering what the
// bot needs: long-polling, HTML messages with inline keyboards, message
// edits, callback answers, and command registration.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.telegram.org/bot"
	maxMessageLength = 4096
)

// Client talks to the Telegram Bot API. A shared limiter paces all calls
// under Telegram's global per-bot budget. Safe for concurrent use.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host, e.g. a local
// bot-api server or a test fixture.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
			if !strings.HasSuffix(c.baseURL, "/bot") {
				c.baseURL += "/bot"
			}
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the given bot token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		// Long-poll needs headroom beyond the poll timeout.
		httpClient: &http.Client{Timeout: 90 * time.Second},
		limiter:    rate.NewLimiter(25, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUpdates long-polls for updates after offset. timeout is the server-side
// hold in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.callAPI(ctx, "getUpdates", body, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends an HTML message, splitting text over Telegram's 4096
// char limit into several messages. The keyboard rides on the last chunk.
// Returns the last sent message's id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, html string, keyboard *InlineKeyboardMarkup) (int64, error) {
	chunks := splitMessage(html)
	var lastID int64
	for i, chunk := range chunks {
		body := map[string]any{
			"chat_id":    chatID,
			"text":       chunk,
			"parse_mode": "HTML",
		}
		if keyboard != nil && i == len(chunks)-1 {
			body["reply_markup"] = keyboard
		}
		var msg Message
		if err := c.callAPI(ctx, "sendMessage", body, &msg); err != nil {
			return 0, err
		}
		lastID = msg.MessageID
	}
	return lastID, nil
}

// EditMessage replaces a message's text and keyboard. A nil keyboard strips
// any existing one. "Not modified" rejections surface as *APIError; use
// IsNotModified to treat them as success.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, html string, keyboard *InlineKeyboardMarkup) error {
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       html,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	return c.callAPI(ctx, "editMessageText", body, nil)
}

// AnswerCallback acknowledges a callback query, optionally with a toast or
// alert popup.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	body := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		body["text"] = text
		body["show_alert"] = alert
	}
	return c.callAPI(ctx, "answerCallbackQuery", body, nil)
}

// SetMyCommands registers the bot's command menu.
func (c *Client) SetMyCommands(ctx context.Context, cmds []BotCommand) error {
	return c.callAPI(ctx, "setMyCommands", map[string]any{"commands": cmds}, nil)
}

// callAPI posts JSON to a Bot API method and decodes the result envelope.
func (c *Client) callAPI(ctx context.Context, method string, reqBody any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: limiter: %w", err)
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}
	url := c.baseURL + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		ErrorCode   int             `json:"error_code,omitempty"`
		Parameters  *struct {
			RetryAfter int `json:"retry_after,omitempty"`
		} `json:"parameters,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("telegram: decode response: %w (body: %s)", err, string(respBody))
	}
	if !envelope.OK {
		apiErr := &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram: decode result: %w", err)
		}
	}
	return nil
}

// splitMessage splits text into chunks of at most maxMessageLength,
// preferring newline boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}
	var chunks []string
	for len(text) > maxMessageLength {
		cut := strings.LastIndex(text[:maxMessageLength], "\n")
		if cut <= 0 {
			cut = maxMessageLength
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
