package store

import (
	"context"
	"sync"
	"time"

	"github.com/talktalk/server/internal/model"
)

// HistoryLog is the append-only conversation record. Append assigns the
// server timestamp; persistence is independent of live delivery.
type HistoryLog interface {
	// Append stores the message, assigning Time (ms since epoch,
	// monotonically non-decreasing in insertion order), and returns the
	// stored message.
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	// Query returns all messages between a and b, in either direction,
	// in insertion order.
	Query(ctx context.Context, a, b string) ([]model.Message, error)
}

// MemoryHistory is the default process-lifetime HistoryLog. Growth is
// unbounded; that is a known scaling limit of this store, not of the
// interface.
type MemoryHistory struct {
	mu       sync.Mutex
	messages []model.Message
	lastTime int64
}

// NewMemoryHistory creates an empty in-memory history log
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Append assigns the timestamp under the same lock as the append, so
// per-pair insertion order always agrees with Time order.
func (h *MemoryHistory) Append(_ context.Context, msg model.Message) (model.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < h.lastTime {
		now = h.lastTime
	}
	h.lastTime = now
	msg.Time = now
	h.messages = append(h.messages, msg)
	return msg, nil
}

// Query scans the full log; acceptable at this store's scale.
func (h *MemoryHistory) Query(_ context.Context, a, b string) ([]model.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	convo := make([]model.Message, 0)
	for _, m := range h.messages {
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			convo = append(convo, m)
		}
	}
	return convo, nil
}
