// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is an ItemRepository backed by a pgx connection pool
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository wraps an existing pool and makes sure the todos table exists
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo := &PostgresRepository{pool: pool, logger: logger}
	if err := repo.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize todos schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS todos (
				id          UUID PRIMARY KEY,
				user_id     TEXT NOT NULL,
				body        TEXT NOT NULL,
				complete    BOOLEAN NOT NULL DEFAULT false,
				created_seq BIGSERIAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS todos_user_seq_idx ON todos (user_id, created_seq)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		r.logger.Debug("Todos schema initialized")
		return nil
	})
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, body, complete FROM todos WHERE user_id = $1 ORDER BY created_seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("failed to scan todos: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (Item, error) {
	pk, err := ParseItemID(id)
	if err != nil {
		return Item{}, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, body, complete FROM todos WHERE id = $1 AND user_id = $2`, pk, userID)
	if err != nil {
		return Item{}, fmt.Errorf("failed to query todo: %w", err)
	}
	return collectOne(rows)
}

func (r *PostgresRepository) Create(ctx context.Context, userID, body string) (Item, error) {
	if body == "" {
		return Item{}, ErrBodyRequired
	}
	pk := uuid.New()
	it := Item{ID: pk.String(), Body: body}
	err := withTxRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO todos (id, user_id, body, complete) VALUES ($1, $2, $3, false)`, pk, userID, body)
		return err
	})
	if err != nil {
		return Item{}, fmt.Errorf("failed to insert todo: %w", err)
	}
	return it, nil
}

// Toggle flips the flag in a single statement so concurrent toggles never lose an update
func (r *PostgresRepository) Toggle(ctx context.Context, userID, id string) (Item, error) {
	pk, err := ParseItemID(id)
	if err != nil {
		return Item{}, err
	}
	var it Item
	err = withTxRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, `
			UPDATE todos SET complete = NOT complete
			WHERE id = $1 AND user_id = $2
			RETURNING id::text, body, complete`, pk, userID)
		if err != nil {
			return err
		}
		it, err = collectOne(rows)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("failed to toggle todo: %w", err)
	}
	return it, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	pk, err := ParseItemID(id)
	if err != nil {
		return err
	}
	err = withTxRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, pk, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Body, &it.Complete)
	return it, err
}

func collectOne(rows pgx.Rows) (Item, error) {
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}
