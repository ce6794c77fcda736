package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dancemarket/messaging/chat"
	"github.com/google/uuid"
)

// Memory is a DB held in process memory.
type Memory struct {
	// Now stamps inserted messages. It defaults to time.Now.
	Now func() time.Time

	mu   sync.RWMutex
	msgs []chat.Message
	byID map[string]int
}

var _ DB = (*Memory)(nil)

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		Now:  time.Now,
		byID: make(map[string]int),
	}
}

// ListByParticipant implements DB.
func (m *Memory) ListByParticipant(_ context.Context, userID string) ([]chat.Message, error) {
	return m.filter(func(msg chat.Message) bool {
		return msg.Participants.Contains(userID)
	}), nil
}

// ListUnviewedFor implements DB.
func (m *Memory) ListUnviewedFor(_ context.Context, userID string) ([]chat.Message, error) {
	return m.filter(func(msg chat.Message) bool {
		return msg.ReceiverID == userID && !msg.Viewed
	}), nil
}

// InsertMessage implements DB.
func (m *Memory) InsertMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.Now()
	msg.ID = uuid.NewString()
	msg.Participants = chat.ConversationKey(msg.SenderID, msg.ReceiverID)
	msg.Timestamp = &ts
	msg.Viewed = false
	msg.Pending = false
	if msg.LocalTime.IsZero() {
		msg.LocalTime = ts
	}

	m.byID[msg.ID] = len(m.msgs)
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

// MarkViewed implements DB.
func (m *Memory) MarkViewed(_ context.Context, ids []string) ([]chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []chat.Message
	for _, id := range ids {
		i, ok := m.byID[id]
		if !ok || m.msgs[i].Viewed {
			continue
		}
		m.msgs[i].Viewed = true
		changed = append(changed, m.msgs[i])
	}
	return changed, nil
}

// Get returns the message with id.
func (m *Memory) Get(id string) (chat.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return chat.Message{}, false
	}
	return m.msgs[i], true
}

func (m *Memory) filter(keep func(chat.Message) bool) []chat.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]chat.Message, 0)
	for _, msg := range m.msgs {
		if keep(msg) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(*out[j].Timestamp)
	})
	return out
}
