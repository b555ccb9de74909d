// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// faultRule intercepts matching requests: it can hold them on a gate and/or answer with
// an error status instead of forwarding them to the todo API.
type faultRule struct {
	method     string
	pathSuffix string // empty matches every path
	status     int    // 0 forwards the request
	message    string // error text; empty sends a body without "error"
	times      int    // remaining matches; negative is unlimited
	gate       chan struct{}
	arrived    chan string // receives the request path of every match
	afterApply bool        // run the API first and hold only the response
}

// faultServer is an httptest server running the reference todo API behind a fault injector
type faultServer struct {
	*httptest.Server
	repo *overtodo.MemoryRepository

	mu     sync.Mutex
	rules  []*faultRule
	counts map[string]int // method -> requests seen
}

func newFaultServer(t *testing.T) *faultServer {
	t.Helper()
	fs := &faultServer{
		repo:   overtodo.NewMemoryRepository(),
		counts: make(map[string]int),
	}
	api := overtodo.NewRouter(overtodo.RouterConfig{Repository: fs.repo, Logger: quietLogger()})
	fs.Server = httptest.NewServer(fs.intercept(api))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *faultServer) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.counts[r.Method]++
		var rule *faultRule
		for _, fr := range fs.rules {
			if fr.times == 0 || fr.method != r.Method || !strings.HasSuffix(r.URL.Path, fr.pathSuffix) {
				continue
			}
			if fr.times > 0 {
				fr.times--
			}
			rule = fr
			break
		}
		fs.mu.Unlock()

		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}
		if rule.afterApply {
			fs.holdResponse(w, r, rule, next)
			return
		}
		if rule.arrived != nil {
			rule.arrived <- r.URL.Path
		}
		if rule.gate != nil {
			select {
			case <-rule.gate:
			case <-r.Context().Done():
				return
			}
		}
		if rule.status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rule.status)
		if rule.message != "" {
			_ = json.NewEncoder(w).Encode(overtodo.ErrorResponse{Error: rule.message})
		} else {
			_, _ = io.WriteString(w, `{}`)
		}
	})
}

func (fs *faultServer) holdResponse(w http.ResponseWriter, r *http.Request, rule *faultRule, next http.Handler) {
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, r)
	rule.arrived <- r.URL.Path
	select {
	case <-rule.gate:
	case <-r.Context().Done():
		return
	}
	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	_, _ = w.Write(rec.Body.Bytes())
}

// failNext answers the next n requests of method on paths ending with suffix with status
func (fs *faultServer) failNext(method, suffix string, n, status int, message string) {
	fs.addRule(&faultRule{method: method, pathSuffix: suffix, status: status, message: message, times: n})
}

// hold blocks the next n requests of method on paths ending with suffix until release is
// called. Each held request is reported on the returned channel as it arrives.
func (fs *faultServer) hold(method, suffix string, n int) (<-chan string, func()) {
	rule := &faultRule{
		method:     method,
		pathSuffix: suffix,
		times:      n,
		gate:       make(chan struct{}),
		arrived:    make(chan string, max(n, 16)),
	}
	fs.addRule(rule)
	var once sync.Once
	return rule.arrived, func() { once.Do(func() { close(rule.gate) }) }
}

// holdAfterApply lets the next n matching requests reach the API, then holds their
// responses until release is called. Each request is reported once the API handled it.
func (fs *faultServer) holdAfterApply(method, suffix string, n int) (<-chan string, func()) {
	rule := &faultRule{
		method:     method,
		pathSuffix: suffix,
		times:      n,
		gate:       make(chan struct{}),
		arrived:    make(chan string, max(n, 16)),
		afterApply: true,
	}
	fs.addRule(rule)
	var once sync.Once
	return rule.arrived, func() { once.Do(func() { close(rule.gate) }) }
}

func (fs *faultServer) addRule(rule *faultRule) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rules = append(fs.rules, rule)
}

func (fs *faultServer) count(method string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.counts[method]
}

func (fs *faultServer) seed(t *testing.T, bodies ...string) []overtodo.Item {
	t.Helper()
	out := make([]overtodo.Item, 0, len(bodies))
	for _, body := range bodies {
		it, err := fs.repo.Create(context.Background(), overtodo.DefaultUserID, body)
		require.NoError(t, err)
		out = append(out, it)
	}
	return out
}

func (fs *faultServer) serverItems(t *testing.T) []overtodo.Item {
	t.Helper()
	items, err := fs.repo.List(context.Background(), overtodo.DefaultUserID)
	require.NoError(t, err)
	return items
}

const testTimeout = 5 * time.Second

// newTestEngine builds a loaded engine against fs with fast retries
func newTestEngine(t *testing.T, fs *faultServer, opts ...EngineOption) *Engine {
	t.Helper()
	remote := NewHTTPRemote(fs.URL, testTimeout, quietLogger())
	remote.Retry = RetryPolicy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	store := NewStore(RemoteFetcher{Remote: remote}, WithStoreLogger(quietLogger()))
	t.Cleanup(store.Close)

	engine := NewEngine(store, remote, append([]EngineOption{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, engine.Load(testContext(t)))
	return engine
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitArrival(t *testing.T, arrived <-chan string) string {
	t.Helper()
	select {
	case p := <-arrived:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request to reach the server")
		return ""
	}
}

func itemByID(items []overtodo.Item, id string) (overtodo.Item, bool) {
	if i := indexOf(items, id); i >= 0 {
		return items[i], true
	}
	return overtodo.Item{}, false
}
