// Package postgres implements the storage interfaces on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/app/domain/chat"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/domain/project"
	"github.com/nexushub/marketplace/internal/app/storage"
)

const uniqueViolation = "23505"

// Store wraps a *sql.DB.
type Store struct {
	db *sql.DB
}

var (
	_ storage.ApplicationStore  = (*Store)(nil)
	_ storage.NotificationStore = (*Store)(nil)
	_ storage.ChatStore         = (*Store)(nil)
	_ storage.ProjectCatalog    = (*Store)(nil)
	_ storage.UserDirectory     = (*Store)(nil)
)

// NewStore builds a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- applications ---

const applicationColumns = `id, project_id, applicant_id, cover_letter, status, submission_note, revision_note, version, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*application.Application, error) {
	var app application.Application
	err := row.Scan(
		&app.ID, &app.ProjectID, &app.ApplicantID, &app.CoverLetter,
		&app.Status, &app.SubmissionNote, &app.RevisionNote,
		&app.Version, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *Store) CreateApplication(ctx context.Context, app *application.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt
	if app.Version == 0 {
		app.Version = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, project_id, applicant_id, cover_letter, status, submission_note, revision_note, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		app.ID, app.ProjectID, app.ApplicantID, app.CoverLetter,
		app.Status, app.SubmissionNote, app.RevisionNote,
		app.Version, app.CreatedAt, app.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*application.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

func (s *Store) GetApplicationByProjectAndApplicant(ctx context.Context, projectID, applicantID string) (*application.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE project_id = $1 AND applicant_id = $2`,
		projectID, applicantID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

func (s *Store) listApplications(ctx context.Context, query string, arg any) ([]*application.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	var out []*application.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *Store) ListApplicationsByProject(ctx context.Context, projectID string) ([]*application.Application, error) {
	return s.listApplications(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE project_id = $1 ORDER BY created_at DESC, id`,
		projectID)
}

func (s *Store) ListApplicationsByApplicant(ctx context.Context, applicantID string) ([]*application.Application, error) {
	return s.listApplications(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE applicant_id = $1 ORDER BY created_at DESC, id`,
		applicantID)
}

func (s *Store) TransitionApplication(ctx context.Context, id string, version int, target application.Status, submissionNote, revisionNote *string) (*application.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE applications
		SET status = $1,
		    submission_note = COALESCE($2, submission_note),
		    revision_note = COALESCE($3, revision_note),
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5 AND version = $6
		RETURNING `+applicationColumns,
		target, submissionNote, revisionNote, time.Now().UTC(), id, version,
	)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing row from a lost race.
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return nil, fmt.Errorf("check application: %w", checkErr)
		}
		if exists {
			return nil, storage.ErrStale
		}
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	return app, nil
}

// --- notifications ---

func (s *Store) CreateNotification(ctx context.Context, rec *notification.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, is_read, notification_type, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.Title, rec.Message, rec.IsRead, rec.Type, rec.Link, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2 AND is_read = FALSE`,
		id, userID)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE user_id = $1 AND is_read = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]*notification.Record, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	query := `
		SELECT id, user_id, title, message, is_read, notification_type, link, created_at
		FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, userID, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Record
	for rows.Next() {
		var rec notification.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Message, &rec.IsRead, &rec.Type, &rec.Link, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// --- chat ---

const roomColumns = `id, project_id, project_title, participant_a, participant_b, last_message, last_message_at, created_at`

func scanRoom(row interface{ Scan(...any) error }) (*chat.Room, error) {
	var (
		room          chat.Room
		a, b          string
		lastMessageAt sql.NullTime
	)
	err := row.Scan(&room.ID, &room.ProjectID, &room.ProjectTitle, &a, &b, &room.LastMessage, &lastMessageAt, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	room.Participants = []string{a, b}
	if lastMessageAt.Valid {
		room.LastMessageAt = lastMessageAt.Time
	}
	return &room, nil
}

func (s *Store) GetOrCreateRoom(ctx context.Context, projectID, projectTitle string, participants []string) (*chat.Room, error) {
	if len(participants) != 2 {
		return nil, storage.ErrConflict
	}
	pair := chat.NormalizePair(participants[0], participants[1])

	// Insert first; the unique index makes concurrent creators converge
	// on one row, and the select below returns it either way.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, project_id, project_title, participant_a, participant_b, last_message, created_at)
		VALUES ($1, $2, $3, $4, $5, '', $6)
		ON CONFLICT (project_id, participant_a, participant_b) DO NOTHING`,
		uuid.NewString(), projectID, projectTitle, pair[0], pair[1], time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM chat_rooms
		WHERE project_id = $1 AND participant_a = $2 AND participant_b = $3`,
		projectID, pair[0], pair[1])
	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*chat.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, roomID)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (s *Store) ListRoomsByParticipant(ctx context.Context, userID string) ([]*chat.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM chat_rooms
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	defer rows.Close()

	var out []*chat.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, msg *chat.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE chat_rooms SET last_message = $1, last_message_at = $2 WHERE id = $3`,
		chat.Preview(msg.Content), msg.CreatedAt, msg.RoomID)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

func (s *Store) ListMessages(ctx context.Context, roomID string, page, size int) ([]*chat.Message, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, content, created_at
		FROM chat_messages WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		roomID, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []*chat.Message
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// --- catalog and directory ---

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	var p project.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, status, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.Title, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}
	return &p, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*actor.User, error) {
	var u actor.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, full_name, email, role FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}
