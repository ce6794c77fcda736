package chat

import "context"

// Query names used in subscription errors and metrics.
const (
	QueryByParticipant = "by_participant"
	QueryUnviewedFor   = "unviewed_for"
)

// A Store is the message collection with live queries. Callbacks of one
// subscription never run concurrently with each other.
type Store interface {
	// SubscribeByParticipant delivers every message whose participants
	// contain userID, ordered by timestamp, each time that set changes.
	SubscribeByParticipant(ctx context.Context, userID string, onChange func([]Message), onError func(error)) (Subscription, error)
	// SubscribeUnviewedFor delivers the messages addressed to userID that
	// are not viewed, each time that set changes.
	SubscribeUnviewedFor(ctx context.Context, userID string, onChange func([]Message), onError func(error)) (Subscription, error)
	// UnviewedFor returns the messages addressed to userID that are not viewed.
	UnviewedFor(ctx context.Context, userID string) ([]Message, error)
	// Append stores msg with a server timestamp and returns its id.
	Append(ctx context.Context, msg Message) (string, error)
	// MarkViewed sets viewed on all ids in one atomic batch. Unknown ids are
	// ignored and an empty set is a no-op.
	MarkViewed(ctx context.Context, ids []string) error
}

// A Subscription is a live query registration.
type Subscription interface {
	// Cancel stops the subscription. Once Cancel returns no callback runs.
	// It must not be called from inside the subscription's own callback.
	Cancel()
}
