package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mikeboe/research-crew/pkg/database"
)

// SessionLogHandler is a slog.Handler that writes records to the
// session_logs table, keyed by session id.
type SessionLogHandler struct {
	DB        *database.PostgresDB
	SessionID uuid.UUID
}

func NewSessionLogHandler(db *database.PostgresDB, sessionID uuid.UUID) *SessionLogHandler {
	return &SessionLogHandler{
		DB:        db,
		SessionID: sessionID,
	}
}

func (h *SessionLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true // Log everything
}

func (h *SessionLogHandler) Handle(ctx context.Context, r slog.Record) error {
	// Extract attributes to JSON
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO session_logs (session_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	// Background context so logs persist even if the request context
	// has already been cancelled.
	_, err = h.DB.Pool.Exec(context.Background(), query, h.SessionID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *SessionLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attribute chaining is not needed for session logs; records carry
	// their own attributes.
	return h
}

func (h *SessionLogHandler) WithGroup(name string) slog.Handler {
	return h
}
