// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

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

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// Remote is the REST collaborator the mutation engine talks to
type Remote interface {
	ListItems(ctx context.Context) ([]overtodo.Item, error)
	CreateItem(ctx context.Context, body string) (*overtodo.Item, error)
	ToggleItem(ctx context.Context, id string) (*overtodo.Item, error)
	DeleteItem(ctx context.Context, id string) error
}

// RemoteFetcher refreshes store keys from a Remote. The todo API has a single
// collection, so the key is not sent to the server.
type RemoteFetcher struct {
	Remote Remote
}

func (f RemoteFetcher) FetchItems(ctx context.Context, _ string) ([]overtodo.Item, error) {
	return f.Remote.ListItems(ctx)
}

// RetryPolicy bounds retries of idempotent requests (GET, DELETE) on transient failures:
// transport errors, 5xx and 429. Creates and toggles are never retried because replaying
// them is not safe.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first; <= 1 disables retries
	BackoffMin  time.Duration // Delay before the first retry
	BackoffMax  time.Duration // Cap for the doubling delay
}

// HTTPRemote implements Remote over the todo REST API
type HTTPRemote struct {
	BaseURL string                                // e.g. "http://localhost:3000"
	Token   func(context.Context) (string, error) // Optional bearer token source
	HTTP    *http.Client
	Retry   RetryPolicy
	logger  *slog.Logger
}

// NewHTTPRemote creates a remote for baseURL with the given request timeout
func NewHTTPRemote(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPRemote {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRemote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BackoffMin:  200 * time.Millisecond,
			BackoffMax:  2 * time.Second,
		},
		logger: logger,
	}
}

func (r *HTTPRemote) ListItems(ctx context.Context) ([]overtodo.Item, error) {
	var items []overtodo.Item
	if err := r.do(ctx, "list todos", http.MethodGet, overtodo.PathTodos, nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		// The server encodes an empty collection as null
		items = []overtodo.Item{}
	}
	return items, nil
}

func (r *HTTPRemote) CreateItem(ctx context.Context, body string) (*overtodo.Item, error) {
	var item overtodo.Item
	req := overtodo.CreateItemRequest{Body: body}
	if err := r.do(ctx, "create todo", http.MethodPost, overtodo.PathTodos, req, &item); err != nil {
		return nil, err
	}
	return checkItem("create todo", &item)
}

func (r *HTTPRemote) ToggleItem(ctx context.Context, id string) (*overtodo.Item, error) {
	var item overtodo.Item
	if err := r.do(ctx, "update todo", http.MethodPatch, itemPath(id), nil, &item); err != nil {
		return nil, err
	}
	return checkItem("update todo", &item)
}

func (r *HTTPRemote) DeleteItem(ctx context.Context, id string) error {
	return r.do(ctx, "delete todo", http.MethodDelete, itemPath(id), nil, nil)
}

// checkItem rejects a decoded item without an id so it never replaces a cached one
func checkItem(op string, item *overtodo.Item) (*overtodo.Item, error) {
	if item.ID == "" {
		return nil, &NetworkError{Op: op, Err: ErrEmptyResponse}
	}
	return item, nil
}

func itemPath(id string) string {
	return overtodo.PathTodos + "/" + url.PathEscape(id)
}

// do sends one logical request, retrying idempotent methods per r.Retry
func (r *HTTPRemote) do(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
	}

	attempts := 1
	if method == http.MethodGet || method == http.MethodDelete {
		attempts = max(r.Retry.MaxAttempts, 1)
	}
	backoff := r.Retry.BackoffMin

	var err error
	for attempt := 1; ; attempt++ {
		err = r.send(ctx, op, method, path, payload, out)
		if err == nil || attempt >= attempts || !isTransient(err) || ctx.Err() != nil {
			return err
		}
		r.logger.Debug("Retrying request", "op", op, "attempt", attempt, "backoff", backoff, "error", err)
		if sleepErr := sleepWithContext(ctx, backoff); sleepErr != nil {
			return &NetworkError{Op: op, Err: sleepErr}
		}
		backoff = min(backoff*2, max(r.Retry.BackoffMax, r.Retry.BackoffMin))
	}
}

func (r *HTTPRemote) send(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if r.Token != nil {
		token, err := r.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client().Do(httpReq)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &NetworkError{Op: op, Err: ErrEmptyResponse}
		}
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (r *HTTPRemote) client() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return http.DefaultClient
}

// errorMessage extracts {"error": "..."} from a failed response body
func errorMessage(body io.Reader) string {
	var er overtodo.ErrorResponse
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || json.Unmarshal(data, &er) != nil || strings.TrimSpace(er.Error) == "" {
		return DefaultErrorMessage
	}
	return er.Error
}

func isTransient(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return errors.Is(err, ErrNetwork)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
