// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement; satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rounds (
		id           BIGSERIAL PRIMARY KEY,
		room_id      TEXT        NOT NULL,
		round_number INT         NOT NULL,
		filterer_id  TEXT,
		topic        TEXT        NOT NULL,
		filter       TEXT,
		cards        JSONB       NOT NULL,
		votes        JSONB       NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS rounds_room_id_idx ON rounds (room_id, round_number)`,
	`CREATE TABLE IF NOT EXISTS round_scores (
		round_id       BIGINT  NOT NULL REFERENCES rounds (id) ON DELETE CASCADE,
		player_id      TEXT    NOT NULL,
		player_name    TEXT    NOT NULL,
		votes_received INT     NOT NULL DEFAULT 0,
		score_diff     INT     NOT NULL DEFAULT 0,
		total_score    INT     NOT NULL DEFAULT 0,
		was_filterer   BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (round_id, player_id)
	)`,
}

// EnsureSchema creates the archive tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
