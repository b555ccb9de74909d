// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// Mutation is one optimistic change to a cached collection
type Mutation interface {
	Kind() MutationKind
	// Validate checks preconditions against the current cache contents
	Validate(current []overtodo.Item) error
	// Optimistic builds the patch to apply before the server answers
	Optimistic(snapshot []overtodo.Item) Patch
	// Execute performs the change on the server and returns the confirmed item, if any
	Execute(ctx context.Context, remote Remote) (*overtodo.Item, error)
}

// Notifier is told about every mutation that failed after it began
type Notifier interface {
	MutationFailed(mctx MutationContext, err error)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(mctx MutationContext, err error)

func (f NotifierFunc) MutationFailed(mctx MutationContext, err error) { f(mctx, err) }

type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) MutationFailed(mctx MutationContext, err error) {
	n.logger.Warn("Mutation failed",
		"key", mctx.Key,
		"mutation_id", mctx.ID,
		"kind", mctx.Kind(),
		"target_id", mctx.TargetID(),
		"error", err)
}

// Coordinator runs the lifecycle of mutations of one kind against one cache key:
// validate, begin, execute, reconcile, settle.
type Coordinator struct {
	kind     MutationKind
	key      string
	store    *Store
	remote   Remote
	notifier Notifier
	logger   *slog.Logger
	inflight atomic.Int64
}

// NewCoordinator creates a coordinator for mutations of kind on key.
// A nil notifier logs failures at warn level.
func NewCoordinator(kind MutationKind, key string, store *Store, remote Remote, notifier Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}
	return &Coordinator{
		kind:     kind,
		key:      key,
		store:    store,
		remote:   remote,
		notifier: notifier,
		logger:   logger,
	}
}

// Kind returns the mutation kind this coordinator accepts
func (c *Coordinator) Kind() MutationKind { return c.kind }

// InFlight returns the number of mutations between begin and settle
func (c *Coordinator) InFlight() int { return int(c.inflight.Load()) }

// Mutate runs m to completion. Validation errors return before anything is written or
// sent. Once the mutation has begun, a refresh of the key is always scheduled on the way
// out, even if Execute panics.
func (c *Coordinator) Mutate(ctx context.Context, m Mutation) (*overtodo.Item, error) {
	if m.Kind() != c.kind {
		return nil, fmt.Errorf("%s coordinator cannot run %s mutation", c.kind, m.Kind())
	}

	// Phase 1: validate against the current cache state
	if err := m.Validate(c.store.Read(c.key)); err != nil {
		c.logger.Debug("Mutation rejected", "key", c.key, "kind", c.kind, "error", err)
		return nil, err
	}

	// Phase 2: cancel refresh, snapshot, apply optimistically. Preconditions are checked
	// again on the snapshot because another mutation may have begun since phase 1.
	mctx, err := c.store.Begin(c.key, func(snapshot []overtodo.Item) (Patch, error) {
		if err := m.Validate(snapshot); err != nil {
			return Patch{}, err
		}
		return m.Optimistic(snapshot), nil
	})
	if err != nil {
		return nil, err
	}
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	// Phase 5 runs last whatever happens below
	defer c.store.Settle(mctx)

	// Phase 3: execute remotely
	confirmed, execErr := m.Execute(ctx, c.remote)

	// Phase 4: reconcile or roll back this mutation's own patch
	if execErr != nil {
		c.store.Rollback(mctx)
		err := fmt.Errorf("failed to %s todo: %w", c.kind, execErr)
		c.notifier.MutationFailed(*mctx, err)
		return nil, err
	}
	c.store.Commit(mctx, confirmed)
	c.logger.Debug("Mutation confirmed", "key", c.key, "mutation_id", mctx.ID, "kind", c.kind)
	return confirmed, nil
}

// CreateMutation appends a new item
type CreateMutation struct {
	Body string
}

func (m CreateMutation) Kind() MutationKind { return KindCreate }

func (m CreateMutation) Validate([]overtodo.Item) error { return ValidateCreate(m.Body) }

func (m CreateMutation) Optimistic([]overtodo.Item) Patch {
	next := overtodo.Item{ID: NewTempID(), Body: m.Body}
	return Patch{Kind: KindCreate, TargetID: next.ID, Next: &next}
}

func (m CreateMutation) Execute(ctx context.Context, remote Remote) (*overtodo.Item, error) {
	return remote.CreateItem(ctx, m.Body)
}

// ToggleMutation marks an item complete
type ToggleMutation struct {
	ID string
}

func (m ToggleMutation) Kind() MutationKind { return KindToggle }

func (m ToggleMutation) Validate(current []overtodo.Item) error { return ValidateToggle(current, m.ID) }

func (m ToggleMutation) Optimistic(snapshot []overtodo.Item) Patch {
	i := indexOf(snapshot, m.ID)
	prior := snapshot[i]
	next := prior
	next.Complete = !prior.Complete
	return Patch{Kind: KindToggle, TargetID: m.ID, Prior: &prior, Next: &next, Index: i}
}

func (m ToggleMutation) Execute(ctx context.Context, remote Remote) (*overtodo.Item, error) {
	return remote.ToggleItem(ctx, m.ID)
}

// DeleteMutation removes an item
type DeleteMutation struct {
	ID string
}

func (m DeleteMutation) Kind() MutationKind { return KindDelete }

func (m DeleteMutation) Validate(current []overtodo.Item) error { return ValidateDelete(current, m.ID) }

func (m DeleteMutation) Optimistic(snapshot []overtodo.Item) Patch {
	i := indexOf(snapshot, m.ID)
	prior := snapshot[i]
	p := Patch{Kind: KindDelete, TargetID: m.ID, Prior: &prior, Index: i}
	if i > 0 {
		p.AfterID = snapshot[i-1].ID
	}
	return p
}

func (m DeleteMutation) Execute(ctx context.Context, remote Remote) (*overtodo.Item, error) {
	return nil, remote.DeleteItem(ctx, m.ID)
}
