package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikeboe/research-crew/pkg/database"
)

// SessionRecord is the persisted view of one research session.
type SessionRecord struct {
	ID         uuid.UUID `json:"id"`
	Topic      string    `json:"topic"`
	Guidelines string    `json:"guidelines"`
	Sections   []string  `json:"sections"`
	Status     string    `json:"status"`
	Report     *string   `json:"report,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LogEntry is one structured log row for a session.
type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// SessionStore persists sessions and their logs.
type SessionStore interface {
	CreateSession(ctx context.Context, rec *SessionRecord) error
	FinishSession(ctx context.Context, id uuid.UUID, status string, report *string) error
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	GetSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error)
	GetSessionLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
	SessionLogger(id uuid.UUID) *slog.Logger
}

// Service is the Postgres-backed SessionStore.
type Service struct {
	DB *database.PostgresDB
}

func NewService(db *database.PostgresDB) *Service {
	return &Service{DB: db}
}

func (s *Service) CreateSession(ctx context.Context, rec *SessionRecord) error {
	query := `
		INSERT INTO research_sessions (id, topic, guidelines, sections, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := s.DB.Pool.QueryRow(ctx, query, rec.ID, rec.Topic, rec.Guidelines, rec.Sections, rec.Status).Scan(
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Service) FinishSession(ctx context.Context, id uuid.UUID, status string, report *string) error {
	_, err := s.DB.Pool.Exec(ctx,
		"UPDATE research_sessions SET status = $2, report = $3, updated_at = NOW() WHERE id = $1",
		id, status, report)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return nil
}

func (s *Service) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	query := `
		SELECT id, topic, guidelines, sections, status, report, created_at, updated_at
		FROM research_sessions
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Guidelines, &rec.Sections, &rec.Status, &rec.Report, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			continue
		}
		sessions = append(sessions, rec)
	}
	return sessions, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error) {
	query := `
		SELECT id, topic, guidelines, sections, status, report, created_at, updated_at
		FROM research_sessions
		WHERE id = $1
	`
	rec := &SessionRecord{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Topic, &rec.Guidelines, &rec.Sections, &rec.Status, &rec.Report, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

func (s *Service) GetSessionLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM session_logs
		WHERE session_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// SessionLogger returns a logger whose records are persisted as log rows
// of the given session.
func (s *Service) SessionLogger(id uuid.UUID) *slog.Logger {
	return slog.New(NewSessionLogHandler(s.DB, id))
}
