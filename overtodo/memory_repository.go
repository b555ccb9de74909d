// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process ItemRepository, used by tests and by the example
// server when no database is configured.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string][]Item // user id -> items in creation order
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string][]Item)}
}

func (r *MemoryRepository) List(_ context.Context, userID string) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items[userID]))
	copy(out, r.items[userID])
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, userID, id string) (Item, error) {
	if _, err := ParseItemID(id); err != nil {
		return Item{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(userID, id)
	if i < 0 {
		return Item{}, ErrNotFound
	}
	return r.items[userID][i], nil
}

func (r *MemoryRepository) Create(_ context.Context, userID, body string) (Item, error) {
	if body == "" {
		return Item{}, ErrBodyRequired
	}
	it := Item{ID: uuid.NewString(), Body: body}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[userID] = append(r.items[userID], it)
	return it, nil
}

func (r *MemoryRepository) Toggle(_ context.Context, userID, id string) (Item, error) {
	if _, err := ParseItemID(id); err != nil {
		return Item{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(userID, id)
	if i < 0 {
		return Item{}, ErrNotFound
	}
	r.items[userID][i].Complete = !r.items[userID][i].Complete
	return r.items[userID][i], nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, id string) error {
	if _, err := ParseItemID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(userID, id)
	if i < 0 {
		return nil
	}
	list := r.items[userID]
	r.items[userID] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (r *MemoryRepository) indexLocked(userID, id string) int {
	for i, it := range r.items[userID] {
		if it.ID == id {
			return i
		}
	}
	return -1
}
