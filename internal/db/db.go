package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            sender_id BIGINT NOT NULL,
            recipient_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'text',
            attachments TEXT[] NOT NULL DEFAULT '{}',
            reply_to_id BIGINT,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair
            ON messages (sender_id, recipient_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread
            ON messages (recipient_id, sender_id) WHERE is_read = FALSE;`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
            owner_id BIGINT NOT NULL,
            counterpart_id BIGINT NOT NULL,
            last_message_id BIGINT NOT NULL,
            last_message_at TIMESTAMPTZ NOT NULL,
            unread_count INT NOT NULL DEFAULT 0,
            PRIMARY KEY (owner_id, counterpart_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_owner_recent
            ON conversation_summaries (owner_id, last_message_at DESC);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
