package postgres

import (
	"time"

	"github.com/dancemarket/messaging/chat"
)

// A message represents a message in the database.
type message struct {
	ID               string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	SenderID         string    `bun:",notnull"`
	ReceiverID       string    `bun:",notnull"`
	Participants     []string  `bun:",array,notnull"`
	Content          string    `bun:",notnull"`
	Viewed           bool      `bun:",notnull,default:false"`
	SenderName       string    `bun:",notnull,default:''"`
	ReceiverName     string    `bun:",notnull,default:''"`
	ConversationType string    `bun:",notnull,default:''"`
	LocalTime        time.Time `bun:",nullzero"`
	CreatedAt        time.Time `bun:",nullzero,notnull,default:now()"`
}

func newMessage(m chat.Message) *message {
	pair := chat.ConversationKey(m.SenderID, m.ReceiverID)
	return &message{
		SenderID:         m.SenderID,
		ReceiverID:       m.ReceiverID,
		Participants:     []string{pair[0], pair[1]},
		Content:          m.Content,
		SenderName:       m.Metadata.SenderName,
		ReceiverName:     m.Metadata.ReceiverName,
		ConversationType: string(m.Metadata.ConversationType),
		LocalTime:        m.LocalTime,
	}
}

func (m message) ChatMessage() chat.Message {
	out := chat.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		LocalTime:  m.LocalTime,
		Viewed:     m.Viewed,
		Metadata: chat.Metadata{
			SenderName:       m.SenderName,
			ReceiverName:     m.ReceiverName,
			ConversationType: chat.Role(m.ConversationType),
		},
	}
	if !m.CreatedAt.IsZero() {
		ts := m.CreatedAt
		out.Timestamp = &ts
		if out.LocalTime.IsZero() {
			out.LocalTime = ts
		}
	}
	if len(m.Participants) == 2 {
		out.Participants = chat.ConversationKey(m.Participants[0], m.Participants[1])
	} else {
		out.Participants = chat.ConversationKey(m.SenderID, m.ReceiverID)
	}
	return out
}

func chatMessages(ms []message) []chat.Message {
	out := make([]chat.Message, len(ms))
	for i, m := range ms {
		out[i] = m.ChatMessage()
	}
	return out
}
