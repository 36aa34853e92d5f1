// Package remote loads list pages from the backend API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

const (
	maxErrorBody    = 64 << 10
	maxPlainMessage = 200
)

// StatusError is returned when the API answers with an error status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: status %d", e.Code)
	}
	return fmt.Sprintf("remote: status %d: %s", e.Code, e.Message)
}

// Unwrap exposes the httpx sentinel matching the status code.
func (e *StatusError) Unwrap() error {
	return httpx.ErrorForStatus(e.Code)
}

// UserMessage returns the message supplied by the API, if any.
func (e *StatusError) UserMessage() string {
	return e.Message
}

// Client wraps interactions with the backend list endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a new client. A non-positive timeout defaults to 30s.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchList issues GET {base}{resource}?{params} and decodes one page.
func (c *Client) FetchList(ctx context.Context, resource string, params listsync.Params) (listsync.Result, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(resource, "/")
	if query := params.Encode(); query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return listsync.Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return listsync.Result{}, fmt.Errorf("remote: %s: %w", resource, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.logger.Debug("remote list request failed",
			slog.String("resource", resource),
			slog.Int("status", resp.StatusCode))
		return listsync.Result{}, statusErr
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return listsync.Result{}, fmt.Errorf("remote: decode %s: %w", resource, err)
	}
	return env.result(), nil
}

type envelope struct {
	Items           []listsync.Row `json:"items"`
	Data            []listsync.Row `json:"data"`
	Total           int            `json:"total"`
	TotalPages      int            `json:"totalPages"`
	TotalPagesSnake int            `json:"total_pages"`
}

func (e envelope) result() listsync.Result {
	items := e.Items
	if items == nil {
		items = e.Data
	}
	if items == nil {
		items = []listsync.Row{}
	}
	pages := e.TotalPages
	if pages == 0 {
		pages = e.TotalPagesSnake
	}
	return listsync.Result{Items: items, Total: e.Total, TotalPages: pages}
}

// errorMessage extracts a human message from a JSON or problem+json body.
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		var syntaxErr *json.SyntaxError
		text := strings.TrimSpace(string(raw))
		if errors.As(err, &syntaxErr) && len(text) <= maxPlainMessage && !strings.HasPrefix(text, "<") {
			return text
		}
		return ""
	}
	for _, msg := range []string{payload.Message, payload.Detail, payload.Error, payload.Title} {
		if msg != "" {
			return msg
		}
	}
	return ""
}
