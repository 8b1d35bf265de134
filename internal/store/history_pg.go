package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/talktalk/server/internal/model"
)

// PgHistory is a Postgres-backed HistoryLog, selected when DATABASE_URL is
// configured. The messages table is managed by goose migrations.
type PgHistory struct {
	db *sql.DB

	// Timestamps are assigned in-process under this mutex so the
	// monotonicity guarantee matches the in-memory store.
	mu       sync.Mutex
	lastTime int64
}

// NewPgHistory creates a HistoryLog backed by the given database
func NewPgHistory(db *sql.DB) *PgHistory {
	return &PgHistory{db: db}
}

// Append stores the message with a server-assigned timestamp.
func (h *PgHistory) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < h.lastTime {
		now = h.lastTime
	}
	h.lastTime = now
	msg.Time = now

	query := `
		INSERT INTO messages (from_id, to_id, kind, text, voice, image, avatar, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := h.db.ExecContext(ctx, query,
		msg.From, msg.To, msg.Kind, msg.Text, msg.Voice, msg.Image, msg.Avatar, msg.Time)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// Query returns the conversation between a and b in insertion order.
func (h *PgHistory) Query(ctx context.Context, a, b string) ([]model.Message, error) {
	query := `
		SELECT from_id, to_id, kind, text, voice, image, avatar, sent_at
		FROM messages
		WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1)
		ORDER BY id
	`
	rows, err := h.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	convo := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.From, &m.To, &m.Kind, &m.Text, &m.Voice, &m.Image, &m.Avatar, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		convo = append(convo, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return convo, nil
}
