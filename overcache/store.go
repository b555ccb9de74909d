// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// ErrStoreClosed is returned by operations on a closed Store
var ErrStoreClosed = errors.New("store closed")

// Fetcher loads the authoritative item list for a cache key
type Fetcher interface {
	FetchItems(ctx context.Context, key string) ([]overtodo.Item, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, key string) ([]overtodo.Item, error)

func (f FetcherFunc) FetchItems(ctx context.Context, key string) ([]overtodo.Item, error) {
	return f(ctx, key)
}

// SnapshotPersister keeps the last server-confirmed list per key across restarts
type SnapshotPersister interface {
	SaveSnapshot(ctx context.Context, key string, items []overtodo.Item) error
	LoadSnapshot(ctx context.Context, key string) ([]overtodo.Item, bool, error)
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger (default slog.Default())
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithPersister saves every applied refresh result and enables Hydrate
func WithPersister(p SnapshotPersister) StoreOption {
	return func(s *Store) { s.persister = p }
}

// Store holds the materialized item list per key.
//
// All reads and writes go through one mutex, so every write is atomic and the
// cancel-snapshot-write sequence of a mutation's begin phase never interleaves with
// another's. Network fetches run outside the lock.
type Store struct {
	fetcher   Fetcher
	persister SnapshotPersister
	logger    *slog.Logger

	mu             sync.Mutex
	entries        map[string]*entry
	nextMutationID uint64
	nextSubID      int
	closed         bool

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup // background refreshes
}

type entry struct {
	items   []overtodo.Item
	version uint64

	// pending patches are re-applied on top of every refresh result, in begin order
	pending []*MutationContext
	// inflight counts mutations that have begun but not settled
	inflight map[uint64]struct{}
	// claims maps a pending create to the stable item a refresh already brought in
	claims map[uint64]string

	refreshGen     uint64
	cancelRefresh  context.CancelFunc // non-nil while a refresh is running
	lastRefreshErr error

	changed chan struct{} // closed and replaced on every state change
	subs    map[int]chan uint64
}

// NewStore creates a store that refreshes keys through fetcher
func NewStore(fetcher Fetcher, opts ...StoreOption) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		fetcher:   fetcher,
		logger:    slog.Default(),
		entries:   make(map[string]*entry),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns a copy of the current items for key
func (s *Store) Read(key string) []overtodo.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entryLocked(key).items)
}

// Version returns a counter that increases with every write to key
func (s *Store) Version(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(key).version
}

// Write replaces the items of key with transform(current) and returns the new version.
// transform gets a private copy and must not call back into the Store.
func (s *Store) Write(key string, transform func([]overtodo.Item) []overtodo.Item) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	s.writeLocked(e, transform)
	return e.version
}

// CancelPendingRefresh aborts the refresh running for key. Its result is discarded even
// if the fetch has already returned, so it can never overwrite a later optimistic write.
func (s *Store) CancelPendingRefresh(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRefreshLocked(key, s.entryLocked(key))
}

// Invalidate starts a background refresh of key, superseding any running one
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(key, s.entryLocked(key))
}

// Refresh fetches key and replaces the cache with the result before returning
func (s *Store) Refresh(ctx context.Context, key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	rctx, gen := s.startRefreshLocked(ctx, key, s.entryLocked(key))
	s.mu.Unlock()

	items, err := s.fetcher.FetchItems(rctx, key)
	return s.finishRefresh(key, gen, items, err)
}

// Begin runs the begin phase of a mutation atomically: it cancels the pending refresh,
// hands a snapshot to prepare, applies the returned patch and registers it as pending.
// When prepare fails nothing is written.
func (s *Store) Begin(key string, prepare func(snapshot []overtodo.Item) (Patch, error)) (*MutationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	e := s.entryLocked(key)
	s.cancelRefreshLocked(key, e)

	patch, err := prepare(slices.Clone(e.items))
	if err != nil {
		return nil, err
	}
	s.nextMutationID++
	mctx := &MutationContext{ID: s.nextMutationID, Key: key, Patch: patch}
	e.pending = append(e.pending, mctx)
	e.inflight[mctx.ID] = struct{}{}
	s.writeLocked(e, patch.Apply)
	s.logger.Debug("Mutation began", "key", key, "mutation_id", mctx.ID, "kind", patch.Kind, "target_id", patch.TargetID)
	return mctx, nil
}

// Commit replaces the mutation's optimistic value with the confirmed item.
// It returns false if the mutation was already committed or rolled back.
func (s *Store) Commit(mctx *MutationContext, confirmed *overtodo.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(mctx.Key)
	if !e.dropPending(mctx.ID) {
		return false
	}
	// A fetch issued before the server write must not land over the confirmed item
	s.cancelRefreshLocked(mctx.Key, e)
	s.writeLocked(e, func(items []overtodo.Item) []overtodo.Item {
		return mctx.Patch.Reconcile(items, confirmed)
	})
	return true
}

// Rollback reverts the mutation's own patch, leaving other mutations' effects in place.
// It returns false if the mutation was already committed or rolled back.
func (s *Store) Rollback(mctx *MutationContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked(s.entryLocked(mctx.Key), mctx)
}

// Settle ends a mutation: a patch still pending is rolled back, and a refresh of the
// key is started so the cache converges on server state whatever the outcome.
func (s *Store) Settle(mctx *MutationContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(mctx.Key)
	if s.rollbackLocked(e, mctx) {
		s.logger.Warn("Mutation settled without reconcile; rolled back", "key", mctx.Key, "mutation_id", mctx.ID)
	}
	delete(e.inflight, mctx.ID)
	s.invalidateLocked(mctx.Key, e)
}

// Pending returns copies of the mutations of key that have not been reconciled yet
func (s *Store) Pending(key string) []MutationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	out := make([]MutationContext, 0, len(e.pending))
	for _, m := range e.pending {
		out = append(out, *m)
	}
	return out
}

// LastRefreshError returns the error of the most recent completed refresh of key, if any
func (s *Store) LastRefreshError(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(key).lastRefreshErr
}

// AwaitIdle blocks until key has no unsettled mutation and no running refresh
func (s *Store) AwaitIdle(ctx context.Context, key string) error {
	for {
		s.mu.Lock()
		e := s.entryLocked(key)
		if len(e.inflight) == 0 && e.cancelRefresh == nil {
			s.mu.Unlock()
			return nil
		}
		changed := e.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe delivers the version of key after each write. Slow readers only see the
// latest version. Call the returned function to unsubscribe.
func (s *Store) Subscribe(key string) (<-chan uint64, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	s.nextSubID++
	id := s.nextSubID
	ch := make(chan uint64, 1)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

// Hydrate seeds key from the persister if nothing has been written to it yet.
// It reports whether a snapshot was applied.
func (s *Store) Hydrate(ctx context.Context, key string) (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	items, ok, err := s.persister.LoadSnapshot(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	if e.version > 0 {
		return false, nil
	}
	s.writeLocked(e, func([]overtodo.Item) []overtodo.Item {
		return s.rebaseLocked(e, items)
	})
	return true, nil
}

// Close cancels running refreshes and waits for them to exit
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelAll()
	for key, e := range s.entries {
		s.cancelRefreshLocked(key, e)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Store) entryLocked(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{
			items:    []overtodo.Item{},
			inflight: make(map[uint64]struct{}),
			claims:   make(map[uint64]string),
			changed:  make(chan struct{}),
			subs:     make(map[int]chan uint64),
		}
		s.entries[key] = e
	}
	return e
}

func (s *Store) writeLocked(e *entry, transform func([]overtodo.Item) []overtodo.Item) {
	next := transform(slices.Clone(e.items))
	if next == nil {
		next = []overtodo.Item{}
	}
	e.items = next
	e.version++
	for _, ch := range e.subs {
		select {
		case ch <- e.version:
		default:
			// Replace the undelivered version with the latest one
			select {
			case <-ch:
			default:
			}
			ch <- e.version
		}
	}
	e.wakeLocked()
}

func (e *entry) wakeLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}

func (e *entry) dropPending(id uint64) bool {
	i := slices.IndexFunc(e.pending, func(m *MutationContext) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	e.pending = slices.Delete(e.pending, i, i+1)
	delete(e.claims, id)
	return true
}

func (s *Store) rollbackLocked(e *entry, mctx *MutationContext) bool {
	if !e.dropPending(mctx.ID) {
		return false
	}
	s.writeLocked(e, mctx.Patch.Revert)
	return true
}

func (s *Store) rebaseLocked(e *entry, truth []overtodo.Item) []overtodo.Item {
	next := slices.Clone(truth)
	taken := make(map[string]bool, len(e.claims))
	for _, id := range e.claims {
		taken[id] = true
	}
	for _, m := range e.pending {
		if m.Patch.Kind == KindCreate && e.claimCreate(m, truth, taken) {
			continue
		}
		next = m.Patch.Apply(next)
	}
	return next
}

// claimCreate reports whether truth already holds the item a pending create is
// waiting for: the one claimed by an earlier refresh, or an unclaimed item with the
// same body that was not cached before this refresh. The placeholder is then left out.
func (e *entry) claimCreate(m *MutationContext, truth []overtodo.Item, taken map[string]bool) bool {
	if id, ok := e.claims[m.ID]; ok {
		if indexOf(truth, id) >= 0 {
			return true
		}
		delete(e.claims, m.ID)
	}
	if m.Patch.Next == nil {
		return false
	}
	for _, it := range truth {
		if taken[it.ID] || IsTempID(it.ID) || it.Body != m.Patch.Next.Body || indexOf(e.items, it.ID) >= 0 {
			continue
		}
		e.claims[m.ID] = it.ID
		taken[it.ID] = true
		return true
	}
	return false
}

func (s *Store) cancelRefreshLocked(key string, e *entry) {
	if e.cancelRefresh == nil {
		return
	}
	e.cancelRefresh()
	e.cancelRefresh = nil
	e.refreshGen++
	e.wakeLocked()
	s.logger.Debug("Pending refresh cancelled", "key", key)
}

func (s *Store) startRefreshLocked(parent context.Context, key string, e *entry) (context.Context, uint64) {
	s.cancelRefreshLocked(key, e)
	ctx, cancel := context.WithCancel(parent)
	e.refreshGen++
	e.cancelRefresh = cancel
	e.wakeLocked()
	return ctx, e.refreshGen
}

func (s *Store) invalidateLocked(key string, e *entry) {
	if s.closed {
		return
	}
	ctx, gen := s.startRefreshLocked(s.baseCtx, key, e)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		items, err := s.fetcher.FetchItems(ctx, key)
		if err := s.finishRefresh(key, gen, items, err); err != nil && !errors.Is(err, ErrRefreshSuperseded) {
			s.logger.Warn("Background refresh failed", "key", key, "error", err)
		}
	}()
}

// finishRefresh applies a fetch result unless the refresh was superseded meanwhile
func (s *Store) finishRefresh(key string, gen uint64, items []overtodo.Item, fetchErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	if e.refreshGen != gen || e.cancelRefresh == nil {
		s.logger.Debug("Discarding superseded refresh", "key", key)
		return ErrRefreshSuperseded
	}
	e.cancelRefresh()
	e.cancelRefresh = nil

	if fetchErr != nil {
		e.lastRefreshErr = fetchErr
		e.wakeLocked()
		return fetchErr
	}
	e.lastRefreshErr = nil

	if s.persister != nil {
		if err := s.persister.SaveSnapshot(context.Background(), key, items); err != nil {
			s.logger.Warn("Failed to persist snapshot", "key", key, "error", err)
		}
	}
	s.writeLocked(e, func([]overtodo.Item) []overtodo.Item {
		return s.rebaseLocked(e, items)
	})
	s.logger.Debug("Refresh applied", "key", key, "items", len(items), "pending", len(e.pending))
	return nil
}
