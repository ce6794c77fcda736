package chat

import (
	"strings"
	"time"
)

// A Message is a direct message between two users. Only Viewed ever changes
// after creation, and only from false to true.
type Message struct {
	ID           string     `json:"id"`
	SenderID     string     `json:"sender_id"`
	ReceiverID   string     `json:"receiver_id"`
	Participants Pair       `json:"participants"`
	Content      string     `json:"content"`
	Timestamp    *time.Time `json:"timestamp,omitempty"` // set by the store once the write resolves
	LocalTime    time.Time  `json:"local_timestamp"`     // ordering fallback until Timestamp is set
	Viewed       bool       `json:"viewed"`
	Metadata     Metadata   `json:"metadata"`

	// Pending marks an optimistic local copy that the store has not confirmed.
	Pending bool `json:"pending,omitempty"`
}

// Metadata holds display fields denormalized onto a message when it is sent,
// so notifications render without a profile lookup.
type Metadata struct {
	SenderName       string `json:"sender_name"`
	ReceiverName     string `json:"receiver_name"`
	ConversationType Role   `json:"conversation_type"`
}

// A User identifies one side of a conversation.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// Pair is the unordered participant pair of a conversation, stored sorted.
type Pair [2]string

// ConversationKey returns the canonical pair for a and b. It is the identity
// of the conversation between them; there is no stored conversation record.
func ConversationKey(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{a, b}
}

func (p Pair) String() string {
	return p[0] + ":" + p[1]
}

// Contains reports whether id is one of the pair.
func (p Pair) Contains(id string) bool {
	return p[0] == id || p[1] == id
}

// EffectiveTime is the time a message is ordered by.
func (m Message) EffectiveTime() time.Time {
	if m.Timestamp != nil {
		return *m.Timestamp
	}
	return m.LocalTime
}

// Between reports whether m was exchanged by a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// UnviewedBy reports whether m is addressed to userID and not yet viewed.
func (m Message) UnviewedBy(userID string) bool {
	return m.ReceiverID == userID && m.SenderID != userID && !m.Viewed
}

// ValidateContent rejects empty and whitespace-only message bodies.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Err: ErrEmptyContent}
	}
	return nil
}

// NewMessage builds an unsent message from sender to receiver.
func NewMessage(sender, receiver User, content string, now time.Time) (Message, error) {
	if sender.ID == "" {
		return Message{}, &ValidationError{Field: "sender_id", Err: ErrMissingUser}
	}
	if receiver.ID == "" {
		return Message{}, &ValidationError{Field: "receiver_id", Err: ErrMissingPartner}
	}
	if sender.ID == receiver.ID {
		return Message{}, &ValidationError{Field: "receiver_id", Err: ErrSelfConversation}
	}
	if err := ValidateContent(content); err != nil {
		return Message{}, err
	}

	return Message{
		SenderID:     sender.ID,
		ReceiverID:   receiver.ID,
		Participants: ConversationKey(sender.ID, receiver.ID),
		Content:      content,
		LocalTime:    now,
		Metadata: Metadata{
			SenderName:       sender.DisplayName,
			ReceiverName:     receiver.DisplayName,
			ConversationType: receiver.Role,
		},
	}, nil
}
