package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info("database migrations applied")
	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS groups (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL,
            department TEXT,
            created_by INT NOT NULL,
            auto_join BOOLEAN NOT NULL DEFAULT FALSE,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            photo_url TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		// One active group per department tag, per kind; one active general group.
		`CREATE UNIQUE INDEX IF NOT EXISTS groups_department_unique
            ON groups (kind, department) WHERE kind IN ('department', 'executive') AND is_active;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS groups_general_unique
            ON groups (kind) WHERE kind = 'general' AND is_active;`,
		`CREATE TABLE IF NOT EXISTS group_members (
            group_id INT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (group_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            group_id INT REFERENCES groups(id) ON DELETE CASCADE,
            receiver_id INT,
            sender_id INT NOT NULL,
            body TEXT,
            media_url TEXT,
            media_type TEXT,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (body IS NOT NULL OR media_url IS NOT NULL),
            CHECK ((group_id IS NULL) <> (receiver_id IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS messages_group_created_idx ON messages (group_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS messages_direct_idx ON messages (receiver_id, sender_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            emoji TEXT NOT NULL,
            PRIMARY KEY (message_id, user_id, emoji)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
