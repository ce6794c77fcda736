package api

import (
	"github.com/dancemarket/messaging/chat"
	"github.com/dancemarket/messaging/eventbus"
)

// Event types pushed on a user's event stream.
const (
	EventMessages          = "conversation.messages"
	EventScroll            = "conversation.scroll"
	EventComposer          = "conversation.composer"
	EventFocus             = "conversation.focus"
	EventConversationError = "conversation.error"
	EventUnread            = "unread.count"
	EventUnreadError       = "unread.error"
	EventProfile           = "profile.updated"
	EventProfilePhoto      = "profile.photo_updated"
)

// An Event is one frame of a user's event stream.
type Event struct {
	UserID    string         `json:"-"`
	Type      string         `json:"type"`
	PartnerID string         `json:"partner_id,omitempty"`
	Messages  []chat.Message `json:"messages,omitempty"`
	Count     *int           `json:"count,omitempty"`
	Enabled   *bool          `json:"enabled,omitempty"`
	Error     string         `json:"error,omitempty"`
	Profile   *Profile       `json:"profile,omitempty"`
}

// A Profile is the public part of a user's profile.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

var (
	// UserEvents carries events addressed to one user.
	UserEvents = eventbus.NewTopic[Event]("user.events")
	// ProfileEvents carries profile changes every connected user may render.
	ProfileEvents = eventbus.NewTopic[Event]("profile.events")
)
