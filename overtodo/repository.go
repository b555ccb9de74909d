// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Repository error sentinels, mapped to HTTP statuses by the handlers
var (
	ErrNotFound     = errors.New("todo not found")
	ErrInvalidID    = errors.New("invalid id")
	ErrBodyRequired = errors.New("body is required")
)

// ItemRepository stores todo items per user.
// Implementations must preserve creation order in List and toggle atomically.
type ItemRepository interface {
	List(ctx context.Context, userID string) ([]Item, error)
	Get(ctx context.Context, userID, id string) (Item, error)
	Create(ctx context.Context, userID, body string) (Item, error)
	// Toggle flips Complete and returns the stored item after the update
	Toggle(ctx context.Context, userID, id string) (Item, error)
	// Delete is idempotent: deleting a missing item is not an error
	Delete(ctx context.Context, userID, id string) error
}

// ParseItemID validates a stable item id. Client-minted temp ids are rejected here,
// which keeps the two id namespaces disjoint.
func ParseItemID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return parsed, nil
}
