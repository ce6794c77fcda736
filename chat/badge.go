package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dancemarket/messaging/observability"
)

// A BadgeView is the global unread notification surface.
type BadgeView interface {
	SetUnread(count int, unread []Message)
	ShowError(err error)
}

// A Badge keeps a live count of the messages addressed to the current user
// that are not viewed. It runs independently of any open Session.
type Badge struct {
	store  Store
	view   BadgeView
	logger *slog.Logger

	opMu sync.Mutex

	mu     sync.Mutex
	userID string
	gen    uint64
	sub    Subscription
	unread []Message
}

// NewBadge returns a badge with no user.
func NewBadge(store Store, view BadgeView, logger *slog.Logger) *Badge {
	if view == nil {
		view = nopBadgeView{}
	}
	return &Badge{
		store:  store,
		view:   view,
		logger: logger,
	}
}

// SetUser keys the badge to userID, replacing any previous subscription. An
// empty userID tears the subscription down and resets the count to zero.
func (b *Badge) SetUser(ctx context.Context, userID string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if userID == b.userID && (b.sub != nil || userID == "") {
		b.mu.Unlock()
		return nil
	}
	old := b.sub
	b.sub = nil
	b.userID = userID
	b.gen++
	gen := b.gen
	b.unread = nil
	b.view.SetUnread(0, nil)
	b.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	if userID == "" {
		b.logger.Info("Unread badge stopped")
		return nil
	}

	sub, err := b.store.SubscribeUnviewedFor(ctx, userID,
		func(msgs []Message) { b.onChange(gen, msgs) },
		func(err error) { b.onError(gen, err) },
	)
	if err != nil {
		b.logger.Error("Could not subscribe to unread messages", "user_id", userID, "error", err.Error())
		return err
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	b.logger.Info("Unread badge started", "user_id", userID)
	return nil
}

// Close stops the subscription.
func (b *Badge) Close() {
	_ = b.SetUser(context.Background(), "")
}

// UserID returns the user the badge is keyed to.
func (b *Badge) UserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}

// Count returns the current number of unviewed messages.
func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unread)
}

// Unread returns the unviewed messages, oldest first.
func (b *Badge) Unread() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.unread))
	copy(out, b.unread)
	return out
}

// MarkAllViewed marks every message currently unviewed by the user. It is a
// no-op when there are none.
func (b *Badge) MarkAllViewed(ctx context.Context) error {
	userID := b.UserID()
	if userID == "" {
		return ErrNotLoggedIn
	}

	msgs, err := b.store.UnviewedFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("list unviewed: %w", err)
	}
	ids := unviewedIDs(msgs, userID)
	if len(ids) == 0 {
		return nil
	}

	err = b.store.MarkViewed(ctx, ids)
	observability.ObserveMark(observability.TriggerDismiss, len(ids), err)
	if err != nil {
		b.logger.Warn("Could not mark all messages viewed", "user_id", userID, "count", len(ids), "error", err.Error())
		return err
	}
	return nil
}

func (b *Badge) onChange(gen uint64, msgs []Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}

	seen := make(map[string]struct{}, len(msgs))
	unread := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.UnviewedBy(b.userID) {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		unread = append(unread, m)
	}
	sortMessages(unread)

	b.unread = unread
	out := make([]Message, len(unread))
	copy(out, unread)
	b.view.SetUnread(len(out), out)
}

func (b *Badge) onError(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}
	// Keep the last count on display.
	b.logger.Warn("Unread subscription failed", "user_id", b.userID, "error", err.Error())
	b.view.ShowError(err)
}

type nopBadgeView struct{}

func (nopBadgeView) SetUnread(int, []Message) {}
func (nopBadgeView) ShowError(error)          {}
