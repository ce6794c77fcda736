// Package store implements chat.Store as live queries: a DB answers the
// queries and a Feed tells subscribers when to ask again.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dancemarket/messaging/chat"
	"github.com/dancemarket/messaging/observability"
)

// A DB persists messages.
type DB interface {
	// ListByParticipant returns the messages whose participants contain
	// userID, ordered by timestamp ascending.
	ListByParticipant(ctx context.Context, userID string) ([]chat.Message, error)
	// ListUnviewedFor returns the messages addressed to userID that are not
	// viewed, ordered by timestamp ascending.
	ListUnviewedFor(ctx context.Context, userID string) ([]chat.Message, error)
	// InsertMessage stores msg and returns it with its id and timestamp set.
	InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	// MarkViewed sets viewed on ids atomically and returns the messages that
	// changed.
	MarkViewed(ctx context.Context, ids []string) ([]chat.Message, error)
}

// A Feed carries "something changed for this user" notifications.
type Feed interface {
	Publish(ctx context.Context, userIDs ...string) error
	// Subscribe calls handler(nil) for each notification for userID and
	// handler(err) when the feed fails, until ctx is done. It returns once
	// the subscription is established.
	Subscribe(ctx context.Context, userID string, handler func(error)) error
}

// Live is a chat.Store built from a DB and a Feed.
type Live struct {
	Logger *slog.Logger
	DB     DB
	Feed   Feed
}

var _ chat.Store = (*Live)(nil)

// SubscribeByParticipant implements chat.Store.
func (l *Live) SubscribeByParticipant(ctx context.Context, userID string, onChange func([]chat.Message), onError func(error)) (chat.Subscription, error) {
	return l.subscribe(ctx, chat.QueryByParticipant, userID, l.DB.ListByParticipant, onChange, onError)
}

// SubscribeUnviewedFor implements chat.Store.
func (l *Live) SubscribeUnviewedFor(ctx context.Context, userID string, onChange func([]chat.Message), onError func(error)) (chat.Subscription, error) {
	return l.subscribe(ctx, chat.QueryUnviewedFor, userID, l.DB.ListUnviewedFor, onChange, onError)
}

// UnviewedFor implements chat.Store.
func (l *Live) UnviewedFor(ctx context.Context, userID string) ([]chat.Message, error) {
	msgs, err := l.DB.ListUnviewedFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unviewed: %w", err)
	}
	return msgs, nil
}

// Append implements chat.Store.
func (l *Live) Append(ctx context.Context, msg chat.Message) (string, error) {
	if msg.SenderID == "" || msg.ReceiverID == "" {
		return "", &chat.ValidationError{Field: "participants", Err: chat.ErrMissingUser}
	}
	if msg.SenderID == msg.ReceiverID {
		return "", &chat.ValidationError{Field: "receiver_id", Err: chat.ErrSelfConversation}
	}
	if err := chat.ValidateContent(msg.Content); err != nil {
		return "", err
	}
	msg.Participants = chat.ConversationKey(msg.SenderID, msg.ReceiverID)
	msg.Viewed = false
	msg.Pending = false

	saved, err := l.DB.InsertMessage(ctx, msg)
	if err != nil {
		return "", &chat.WriteError{Op: "append", Err: err}
	}

	if err := l.Feed.Publish(ctx, saved.SenderID, saved.ReceiverID); err != nil {
		l.Logger.Error("Could not publish change", "op", "append", "message_id", saved.ID, "error", err.Error())
	}
	return saved.ID, nil
}

// MarkViewed implements chat.Store.
func (l *Live) MarkViewed(ctx context.Context, ids []string) error {
	ids = uniq(ids)
	if len(ids) == 0 {
		return nil
	}

	changed, err := l.DB.MarkViewed(ctx, ids)
	if err != nil {
		return &chat.WriteError{Op: "mark viewed", Err: err}
	}
	if len(changed) == 0 {
		return nil
	}

	users := make([]string, 0, 2*len(changed))
	for _, m := range changed {
		users = append(users, m.SenderID, m.ReceiverID)
	}
	if err := l.Feed.Publish(ctx, uniq(users)...); err != nil {
		l.Logger.Error("Could not publish change", "op", "mark viewed", "count", len(changed), "error", err.Error())
	}
	return nil
}

func (l *Live) subscribe(
	ctx context.Context,
	query, userID string,
	list func(context.Context, string) ([]chat.Message, error),
	onChange func([]chat.Message),
	onError func(error),
) (chat.Subscription, error) {
	if userID == "" {
		return nil, &chat.ValidationError{Field: "user_id", Err: chat.ErrMissingUser}
	}

	// The subscription outlives the call that created it.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		query:  query,
		cancel: cancel,
		signal: make(chan struct{}, 1),
	}

	fail := func(err error) {
		observability.SubscriptionErrorsTotal.WithLabelValues(query).Inc()
		sub.deliver(func() {
			onError(&chat.SubscriptionError{Query: query, UserID: userID, Err: err})
		})
	}

	err := l.Feed.Subscribe(subCtx, userID, func(err error) {
		if err != nil {
			l.Logger.Warn("Change feed failed", "query", query, "user_id", userID, "error", err.Error())
			fail(err)
			return
		}
		sub.notify()
	})
	if err != nil {
		cancel()
		return nil, &chat.SubscriptionError{Query: query, UserID: userID, Err: err}
	}

	observability.ActiveSubscriptions.WithLabelValues(query).Inc()
	sub.notify()
	go sub.run(subCtx, func() {
		msgs, err := list(subCtx, userID)
		if subCtx.Err() != nil {
			return
		}
		if err != nil {
			fail(err)
			return
		}
		sub.deliver(func() { onChange(msgs) })
	})

	return sub, nil
}

type subscription struct {
	query  string
	cancel context.CancelFunc
	signal chan struct{}

	mu        sync.Mutex
	cancelled bool
}

// notify schedules a query run. Notifications that arrive while a run is
// pending collapse into that run.
func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context, fn func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
			fn()
		}
	}
}

func (s *subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	fn()
}

// Cancel implements chat.Subscription.
func (s *subscription) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()

	s.cancel()
	observability.ActiveSubscriptions.WithLabelValues(s.query).Dec()
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
