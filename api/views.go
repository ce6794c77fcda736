package api

import (
	"github.com/dancemarket/messaging/chat"
	"github.com/dancemarket/messaging/eventbus"
)

// sessionView forwards a conversation's presentation updates to the user's
// event stream.
type sessionView struct {
	bus       *eventbus.Bus
	userID    string
	partnerID string
}

func (v *sessionView) publish(e Event) {
	e.UserID = v.userID
	e.PartnerID = v.partnerID
	eventbus.Publish(v.bus, UserEvents, e)
}

func (v *sessionView) Render(msgs []chat.Message) {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	v.publish(Event{Type: EventMessages, Messages: msgs})
}

func (v *sessionView) ScrollToLatest() {
	v.publish(Event{Type: EventScroll})
}

func (v *sessionView) SetComposerEnabled(enabled bool) {
	v.publish(Event{Type: EventComposer, Enabled: &enabled})
}

func (v *sessionView) FocusComposer() {
	v.publish(Event{Type: EventFocus})
}

func (v *sessionView) ShowError(err error) {
	v.publish(Event{Type: EventConversationError, Error: errorMessage(err)})
}

// badgeView forwards the unread count to the user's event stream.
type badgeView struct {
	bus    *eventbus.Bus
	userID string
}

func (v *badgeView) SetUnread(count int, unread []chat.Message) {
	eventbus.Publish(v.bus, UserEvents, Event{
		UserID:   v.userID,
		Type:     EventUnread,
		Count:    &count,
		Messages: unread,
	})
}

func (v *badgeView) ShowError(err error) {
	eventbus.Publish(v.bus, UserEvents, Event{
		UserID: v.userID,
		Type:   EventUnreadError,
		Error:  errorMessage(err),
	})
}
