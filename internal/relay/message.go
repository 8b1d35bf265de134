package relay

import (
	"context"
	"fmt"

	"github.com/talktalk/server/internal/model"
	"github.com/talktalk/server/internal/store"
)

// MessageRelay forwards chat payloads between two identities. Every message
// is appended to history regardless of whether the recipient is live:
// delivery is at-most-once, durability comes from the history log.
type MessageRelay struct {
	history  store.HistoryLog
	registry *Registry
	metrics  *Metrics
}

// NewMessageRelay creates a message relay
func NewMessageRelay(history store.HistoryLog, registry *Registry, metrics *Metrics) *MessageRelay {
	return &MessageRelay{
		history:  history,
		registry: registry,
		metrics:  metrics,
	}
}

// Relay persists the message with a server-assigned timestamp, forwards the
// stored copy to the recipient if live, and echoes it back to the sender
// tagged self:true so the sender sees the authoritative timestamp.
func (r *MessageRelay) Relay(ctx context.Context, sender Peer, f Frame) error {
	msg := model.Message{
		From:   f.From,
		To:     f.To,
		Kind:   f.Kind,
		Text:   f.Text,
		Voice:  f.Voice,
		Image:  f.Image,
		Avatar: f.Avatar,
	}

	stored, err := r.history.Append(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	r.metrics.MessagesRelayed.Inc()

	out := MessageFrame(stored)
	if recipient, ok := r.registry.Lookup(stored.To); ok {
		_ = recipient.Send(out)
	} else {
		// Not an error: the recipient pulls it from history later.
		r.metrics.MessagesUndelivered.Inc()
	}

	if sender != nil {
		echo := out
		echo.Self = true
		_ = sender.Send(echo)
	}
	return nil
}
