package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Second

// Client talks to an aria2 daemon over its JSON-RPC 2.0 HTTP endpoint.
// All methods are safe for concurrent use.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the aria2 RPC endpoint at host:port.
// host may carry a scheme ("http://10.0.0.2"); plain hostnames get http.
func New(host string, port int, secret string, opts ...Option) *Client {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	c := &Client{
		endpoint:   fmt.Sprintf("%s:%d/jsonrpc", strings.TrimRight(host, "/"), port),
		secret:     secret,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     nopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddURI submits one download with the given URIs (mirrors of the same file)
// and aria2 input options. Returns the new task's GID.
func (c *Client) AddURI(ctx context.Context, uris []string, options map[string]any) (string, error) {
	params := []any{uris}
	if len(options) > 0 {
		params = append(params, options)
	}
	var gid string
	if err := c.call(ctx, "aria2.addUri", params, &gid); err != nil {
		return "", err
	}
	c.logger.Info("download added", "gid", gid, "uris", len(uris))
	return gid, nil
}

// TellStatus fetches the current snapshot of one task.
func (c *Client) TellStatus(ctx context.Context, gid string) (Snapshot, error) {
	var raw rawStatus
	if err := c.call(ctx, "aria2.tellStatus", []any{gid}, &raw); err != nil {
		return Snapshot{}, err
	}
	return raw.snapshot(), nil
}

// TellActive lists all currently downloading tasks.
func (c *Client) TellActive(ctx context.Context) ([]Snapshot, error) {
	return c.tellList(ctx, "aria2.tellActive", nil)
}

// TellWaiting lists waiting and paused tasks starting at offset.
func (c *Client) TellWaiting(ctx context.Context, offset, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	return c.tellList(ctx, "aria2.tellWaiting", []any{offset, limit})
}

// TellStopped lists the most recent stopped tasks.
func (c *Client) TellStopped(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	return c.tellList(ctx, "aria2.tellStopped", []any{0, limit})
}

func (c *Client) tellList(ctx context.Context, method string, params []any) ([]Snapshot, error) {
	var raws []rawStatus
	if err := c.call(ctx, method, params, &raws); err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.snapshot())
	}
	return out, nil
}

// Pause pauses one task.
func (c *Client) Pause(ctx context.Context, gid string) error {
	return c.call(ctx, "aria2.pause", []any{gid}, nil)
}

// Unpause resumes one paused task.
func (c *Client) Unpause(ctx context.Context, gid string) error {
	return c.call(ctx, "aria2.unpause", []any{gid}, nil)
}

// Remove force-removes a task, then purges its download result so the GID
// stops appearing in stopped listings. The purge is best-effort.
func (c *Client) Remove(ctx context.Context, gid string) error {
	if err := c.call(ctx, "aria2.forceRemove", []any{gid}, nil); err != nil {
		return err
	}
	if err := c.call(ctx, "aria2.removeDownloadResult", []any{gid}, nil); err != nil {
		c.logger.Warn("purge download result failed", "gid", gid, "error", err)
	}
	return nil
}

// PauseAll pauses every active task.
func (c *Client) PauseAll(ctx context.Context) error {
	return c.call(ctx, "aria2.pauseAll", nil, nil)
}

// UnpauseAll resumes every paused task.
func (c *Client) UnpauseAll(ctx context.Context) error {
	return c.call(ctx, "aria2.unpauseAll", nil, nil)
}

// GlobalStat fetches engine-wide transfer counters. The version lookup is
// best-effort; on failure the Version field is left empty.
func (c *Client) GlobalStat(ctx context.Context) (GlobalStat, error) {
	var raw rawGlobalStat
	if err := c.call(ctx, "aria2.getGlobalStat", nil, &raw); err != nil {
		return GlobalStat{}, err
	}
	gs := GlobalStat{
		DownloadSpeed: atoi64(raw.DownloadSpeed),
		UploadSpeed:   atoi64(raw.UploadSpeed),
		NumActive:     atoi64(raw.NumActive),
		NumWaiting:    atoi64(raw.NumWaiting),
		NumStopped:    atoi64(raw.NumStopped),
	}
	var ver struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "aria2.getVersion", nil, &ver); err != nil {
		c.logger.Warn("version lookup failed", "error", err)
	} else {
		gs.Version = ver.Version
	}
	return gs, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call posts one JSON-RPC request and decodes the result.
// The secret token is prepended to params as aria2 requires.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return &RequestError{Method: method, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &RequestError{Method: method, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnError{Op: method, Err: err}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &RequestError{Method: method, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if envelope.Error != nil {
		if strings.Contains(envelope.Error.Message, "is not found") {
			return fmt.Errorf("%s: %w", method, ErrTaskNotFound)
		}
		return &RequestError{Method: method, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return &RequestError{Method: method, Message: fmt.Sprintf("decode result: %v", err)}
		}
	}
	return nil
}

var nopLogger = slog.New(discardHandler{})

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
