// Package migrations applies the marketplace schema. Every statement is
// idempotent, so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		role TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		applicant_id TEXT NOT NULL,
		cover_letter TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		submission_note TEXT NOT NULL DEFAULT '',
		revision_note TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (project_id, applicant_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_project ON applications (project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_applicant ON applications (applicant_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		notification_type TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications (user_id, is_read)`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		project_title TEXT NOT NULL DEFAULT '',
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		last_message TEXT NOT NULL DEFAULT '',
		last_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (project_id, participant_a, participant_b)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES chat_rooms (id),
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages (room_id, created_at)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
