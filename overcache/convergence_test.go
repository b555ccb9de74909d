// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

type failKey struct{}

// withFailure makes a repoRemote call fail for requests carrying ctx
func withFailure(ctx context.Context) context.Context {
	return context.WithValue(ctx, failKey{}, true)
}

// repoRemote serves Remote directly from a repository, without HTTP
type repoRemote struct {
	repo *overtodo.MemoryRepository
}

func (r repoRemote) fail(ctx context.Context, op string) error {
	if ctx.Value(failKey{}) != nil {
		return &ServerError{Op: op, StatusCode: 500, Message: "injected"}
	}
	return nil
}

func (r repoRemote) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, overtodo.ErrNotFound):
		return &ServerError{Op: op, StatusCode: 404, Message: overtodo.MsgTodoNotFound}
	default:
		return &ServerError{Op: op, StatusCode: 400, Message: err.Error()}
	}
}

func (r repoRemote) ListItems(ctx context.Context) ([]overtodo.Item, error) {
	return r.repo.List(ctx, overtodo.DefaultUserID)
}

func (r repoRemote) CreateItem(ctx context.Context, body string) (*overtodo.Item, error) {
	if err := r.fail(ctx, "create todo"); err != nil {
		return nil, err
	}
	it, err := r.repo.Create(ctx, overtodo.DefaultUserID, body)
	if err != nil {
		return nil, r.mapErr("create todo", err)
	}
	return &it, nil
}

func (r repoRemote) ToggleItem(ctx context.Context, id string) (*overtodo.Item, error) {
	if err := r.fail(ctx, "update todo"); err != nil {
		return nil, err
	}
	it, err := r.repo.Toggle(ctx, overtodo.DefaultUserID, id)
	if err != nil {
		return nil, r.mapErr("update todo", err)
	}
	return &it, nil
}

func (r repoRemote) DeleteItem(ctx context.Context, id string) error {
	if err := r.fail(ctx, "delete todo"); err != nil {
		return err
	}
	return r.mapErr("delete todo", r.repo.Delete(ctx, overtodo.DefaultUserID, id))
}

type drawnOp struct {
	kind   MutationKind
	target int // index into the initial items for toggle/delete
	body   string
	fail   bool
}

func drawOps(t *rapid.T, n int) []drawnOp {
	ops := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) drawnOp {
		return drawnOp{
			kind:   rapid.SampledFrom([]MutationKind{KindCreate, KindToggle, KindDelete}).Draw(t, "kind"),
			target: rapid.IntRange(0, n-1).Draw(t, "target"),
			body:   rapid.StringMatching(`[A-Za-z ]{0,12}`).Draw(t, "body"),
			fail:   rapid.Bool().Draw(t, "fail"),
		}
	}), 1, 8).Draw(t, "ops")
	return ops
}

func seedRepo(t *rapid.T, repo *overtodo.MemoryRepository) []overtodo.Item {
	n := rapid.IntRange(1, 5).Draw(t, "seeded")
	items := make([]overtodo.Item, 0, n)
	for i := range n {
		it, err := repo.Create(context.Background(), overtodo.DefaultUserID, "Todo "+string(rune('A'+i)))
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		if rapid.Bool().Draw(t, "seedComplete") {
			it, _ = repo.Toggle(context.Background(), overtodo.DefaultUserID, it.ID)
		}
		items = append(items, it)
	}
	return items
}

func runOp(ctx context.Context, e *Engine, op drawnOp, seeded []overtodo.Item) error {
	if op.fail {
		ctx = withFailure(ctx)
	}
	switch op.kind {
	case KindCreate:
		_, err := e.Create(ctx, op.body)
		return err
	case KindToggle:
		_, err := e.ToggleComplete(ctx, seeded[op.target].ID)
		return err
	default:
		return e.Delete(ctx, seeded[op.target].ID)
	}
}

func newRepoEngine(repo *overtodo.MemoryRepository) (*Engine, *Store) {
	remote := repoRemote{repo: repo}
	store := NewStore(RemoteFetcher{Remote: remote}, WithStoreLogger(quietLogger()))
	return NewEngine(store, remote, WithLogger(quietLogger())), store
}

// Concurrent mutations with arbitrary failures always settle on server truth
func TestEngine_ConvergesOnServerTruth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := overtodo.NewMemoryRepository()
		seeded := seedRepo(t, repo)
		ops := drawOps(t, len(seeded))

		engine, store := newRepoEngine(repo)
		defer store.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}

		var wg sync.WaitGroup
		for _, op := range ops {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = runOp(ctx, engine, op, seeded)
			}()
		}
		wg.Wait()

		if err := engine.AwaitIdle(ctx); err != nil {
			t.Fatalf("await idle: %v", err)
		}
		truth, _ := repo.List(ctx, overtodo.DefaultUserID)
		if got := engine.Items(); !slices.Equal(got, truth) {
			t.Fatalf("cache %v does not match server %v", got, truth)
		}
		if engine.Pending() != 0 || len(store.Pending(engine.Key())) != 0 {
			t.Fatalf("mutations still pending after settle")
		}
	})
}

// A mutation that fails restores the cache to exactly what it was before it began
func TestEngine_FailedMutationRestoresCache(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := overtodo.NewMemoryRepository()
		seeded := seedRepo(t, repo)
		op := drawOps(t, len(seeded))[0]
		op.fail = true

		engine, store := newRepoEngine(repo)
		defer store.Close()
		ctx := context.Background()
		if err := engine.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}

		before := engine.Items()
		err := runOp(ctx, engine, op, seeded)
		if err == nil {
			t.Fatalf("%s did not fail", op.kind)
		}
		if got := engine.Items(); !slices.Equal(got, before) {
			t.Fatalf("after failed %s: cache %v, want %v", op.kind, got, before)
		}
		if errors.Is(err, ErrValidation) {
			return
		}
		var se *ServerError
		if !errors.As(err, &se) || se.Message != "injected" {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestRepoRemote_DeleteMissingIsNotAnError(t *testing.T) {
	remote := repoRemote{repo: overtodo.NewMemoryRepository()}
	require.NoError(t, remote.DeleteItem(context.Background(), "0190c6a4-7b1e-7c3d-9f00-000000000000"))
}
