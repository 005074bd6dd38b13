package chat

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/protocol"
)

// Broadcaster fans chat events out to every registered member. Delivery is
// best effort: a member whose queue is full or who is closing misses the
// event and everyone else still gets it.
type Broadcaster struct {
	registry      *Registry
	logger        logging.Logger
	excludeSender bool
}

type BroadcasterOption func(*Broadcaster)

// WithSenderExcluded stops relayed chat lines from being echoed back to the
// session that sent them. Announcements are unaffected.
func WithSenderExcluded(exclude bool) BroadcasterOption {
	return func(b *Broadcaster) {
		b.excludeSender = exclude
	}
}

func NewBroadcaster(r *Registry, l logging.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{registry: r, logger: l.With("module", "broadcaster")}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcast sends content from sender to every member and returns how many
// members accepted the event.
func (b *Broadcaster) Broadcast(ctx context.Context, sender, content string) int {
	return b.send(ctx, sender, content, "")
}

// Announce broadcasts content from the reserved server sender.
func (b *Broadcaster) Announce(ctx context.Context, content string) int {
	return b.Broadcast(ctx, common.ServerSenderName, content)
}

// Relay broadcasts a chat line written by from.
func (b *Broadcaster) Relay(ctx context.Context, from Member, content string) int {
	skip := ""
	if b.excludeSender {
		skip = from.ID()
	}
	return b.send(ctx, from.Username(), content, skip)
}

func (b *Broadcaster) send(ctx context.Context, sender, content, skipID string) int {
	frame, err := protocol.Marshal(protocol.Event{Sender: sender, Content: content})
	if err != nil {
		b.logger.Error(ctx, "cannot encode event", "error", err)
		return 0
	}

	members := b.registry.Snapshot()
	delivered := 0
	for _, m := range members {
		if m.ID() == skipID {
			continue
		}
		if err := m.Deliver(frame); err != nil {
			b.logDrop(ctx, m, err)
			continue
		}
		delivered++
	}

	b.logger.Debug(ctx, "broadcast", "sender", sender, "content", content, "recipients", len(members), "delivered", delivered)
	return delivered
}

func (b *Broadcaster) logDrop(ctx context.Context, m Member, err error) {
	args := []any{"session_id", m.ID(), "username", m.Username(), "error", err}
	switch {
	case errors.Is(err, common.ErrQueueFull):
		b.logger.Warn(ctx, "dropping event for slow member", args...)
	case errors.Is(err, common.ErrSessionClosed):
		b.logger.Debug(ctx, "skipping closing member", args...)
	default:
		b.logger.Warn(ctx, "delivery failed", args...)
	}
}
