package store

import (
	"context"

	"github.com/dancemarket/messaging/eventbus"
)

// MessagesChanged is published with the id of a user whose messages changed.
var MessagesChanged = eventbus.NewTopic[string]("messages.changed")

// LocalFeed is a Feed for a single process, carried on an event bus.
type LocalFeed struct {
	Bus *eventbus.Bus
}

var _ Feed = (*LocalFeed)(nil)

// Publish implements Feed.
func (f *LocalFeed) Publish(_ context.Context, userIDs ...string) error {
	for _, id := range userIDs {
		eventbus.Publish(f.Bus, MessagesChanged, id)
	}
	return nil
}

// Subscribe implements Feed.
func (f *LocalFeed) Subscribe(ctx context.Context, userID string, handler func(error)) error {
	unsubscribe := eventbus.Subscribe(f.Bus, MessagesChanged, func(id string) {
		if id == userID {
			handler(nil)
		}
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return nil
}
