package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upAddSessionTables, downAddSessionTables)
}

func upAddSessionTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS game_session (
			id         VARCHAR(255) NOT NULL PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			status     VARCHAR(32)  NOT NULL DEFAULT 'active',
			start_time TIMESTAMPTZ  NOT NULL,
			end_time   TIMESTAMPTZ,
			team_ids   VARCHAR      NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ  NOT NULL,
			updated_at TIMESTAMPTZ  NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_game_session_status ON game_session(status);

		CREATE TABLE IF NOT EXISTS transaction_log (
			id          VARCHAR(255) NOT NULL PRIMARY KEY,
			session_id  VARCHAR(255) NOT NULL,
			token_id    VARCHAR(255) NOT NULL,
			team_id     VARCHAR(255) DEFAULT '',
			device_id   VARCHAR(255) NOT NULL,
			points      INTEGER      NOT NULL DEFAULT 0,
			memory_type VARCHAR(64)  DEFAULT '',
			timestamp   TIMESTAMPTZ  NOT NULL,
			FOREIGN KEY (session_id) REFERENCES game_session(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_transaction_log_session_id ON transaction_log(session_id);
	`)
	return err
}

func downAddSessionTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DROP INDEX IF EXISTS idx_transaction_log_session_id;
		DROP TABLE IF EXISTS transaction_log;
		DROP INDEX IF EXISTS idx_game_session_status;
		DROP TABLE IF EXISTS game_session;
	`)
	return err
}
