// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// DefaultCacheKey is the key of the todo collection
const DefaultCacheKey = "todos"

// Engine groups one coordinator per mutation kind over a single cached collection
type Engine struct {
	key    string
	store  *Store
	remote Remote
	logger *slog.Logger

	create *Coordinator
	toggle *Coordinator
	remove *Coordinator
}

// EngineOption configures an Engine
type EngineOption func(*engineOptions)

type engineOptions struct {
	key      string
	notifier Notifier
	logger   *slog.Logger
	token    func(context.Context) (string, error)
}

// WithKey sets the cache key (default DefaultCacheKey)
func WithKey(key string) EngineOption {
	return func(o *engineOptions) { o.key = key }
}

// WithNotifier sets the receiver of mutation failures
func WithNotifier(n Notifier) EngineOption {
	return func(o *engineOptions) { o.notifier = n }
}

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// WithTokenSource sets the bearer token source NewClient hands to its HTTP remote
func WithTokenSource(token func(context.Context) (string, error)) EngineOption {
	return func(o *engineOptions) { o.token = token }
}

// NewEngine creates an engine that mutates store through remote
func NewEngine(store *Store, remote Remote, opts ...EngineOption) *Engine {
	o := engineOptions{key: DefaultCacheKey, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		key:    o.key,
		store:  store,
		remote: remote,
		logger: o.logger,
		create: NewCoordinator(KindCreate, o.key, store, remote, o.notifier, o.logger),
		toggle: NewCoordinator(KindToggle, o.key, store, remote, o.notifier, o.logger),
		remove: NewCoordinator(KindDelete, o.key, store, remote, o.notifier, o.logger),
	}
}

// NewClient wires an HTTP remote, an optional SQLite snapshot store and an engine from cfg.
// The returned close function stops background refreshes and closes the snapshot database.
func NewClient(cfg *Config, opts ...EngineOption) (*Engine, func() error, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	o := engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	remote := NewHTTPRemote(cfg.BaseURL, cfg.RequestTimeout, o.logger)
	remote.Retry = RetryPolicy{
		MaxAttempts: cfg.RetryMax,
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
	}
	remote.Token = o.token

	storeOpts := []StoreOption{WithStoreLogger(o.logger)}
	var snapshots *SQLiteSnapshots
	if cfg.SnapshotPath != "" {
		var err error
		snapshots, err = OpenSQLiteSnapshots(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open snapshot database: %w", err)
		}
		storeOpts = append(storeOpts, WithPersister(snapshots))
	}
	store := NewStore(RemoteFetcher{Remote: remote}, storeOpts...)

	engine := NewEngine(store, remote, append([]EngineOption{WithKey(cfg.CacheKey)}, opts...)...)
	closeFn := func() error {
		store.Close()
		if snapshots != nil {
			return snapshots.Close()
		}
		return nil
	}
	return engine, closeFn, nil
}

// Key returns the cache key the engine mutates
func (e *Engine) Key() string { return e.key }

// Store returns the underlying cache store
func (e *Engine) Store() *Store { return e.store }

// Remote returns the collaborator mutations execute against
func (e *Engine) Remote() Remote { return e.remote }

// Load shows any persisted snapshot, then fetches the collection from the server
func (e *Engine) Load(ctx context.Context) error {
	if ok, err := e.store.Hydrate(ctx, e.key); err != nil {
		e.logger.Warn("Failed to load cached snapshot", "key", e.key, "error", err)
	} else if ok {
		e.logger.Debug("Hydrated from snapshot", "key", e.key)
	}
	if err := e.store.Refresh(ctx, e.key); err != nil {
		return fmt.Errorf("failed to load todos: %w", err)
	}
	return nil
}

// Items returns a copy of the cached collection
func (e *Engine) Items() []overtodo.Item { return e.store.Read(e.key) }

// Create appends a todo with body, returning the server item once confirmed
func (e *Engine) Create(ctx context.Context, body string) (*overtodo.Item, error) {
	return e.create.Mutate(ctx, CreateMutation{Body: body})
}

// ToggleComplete marks the todo with id as complete
func (e *Engine) ToggleComplete(ctx context.Context, id string) (*overtodo.Item, error) {
	return e.toggle.Mutate(ctx, ToggleMutation{ID: id})
}

// Delete removes the todo with id
func (e *Engine) Delete(ctx context.Context, id string) error {
	_, err := e.remove.Mutate(ctx, DeleteMutation{ID: id})
	return err
}

// Pending returns the number of mutations still waiting on the server
func (e *Engine) Pending() int {
	return e.create.InFlight() + e.toggle.InFlight() + e.remove.InFlight()
}

// PendingKind returns the number of in-flight mutations of kind
func (e *Engine) PendingKind(kind MutationKind) int {
	switch kind {
	case KindCreate:
		return e.create.InFlight()
	case KindToggle:
		return e.toggle.InFlight()
	case KindDelete:
		return e.remove.InFlight()
	}
	return 0
}

// AwaitIdle waits until every mutation has settled and the follow-up refresh finished
func (e *Engine) AwaitIdle(ctx context.Context) error {
	return e.store.AwaitIdle(ctx, e.key)
}
