package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS question_pools (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		owner_id    BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_question_pools_owner ON question_pools (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pool_questions (
		id             BIGSERIAL PRIMARY KEY,
		pool_id        BIGINT NOT NULL REFERENCES question_pools (id) ON DELETE CASCADE,
		position       INTEGER NOT NULL,
		stem           TEXT NOT NULL,
		options        JSONB NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation    TEXT NOT NULL DEFAULT '',
		difficulty     TEXT NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
		created_by     BIGINT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (pool_id, position)
	)`,
}

// Migrate creates the pool tables when missing. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate step %d: %w", i+1, err)
			}
		}
		return nil
	})
}
