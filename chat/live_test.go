package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/dancemarket/messaging/chat"
	"github.com/dancemarket/messaging/eventbus"
	"github.com/dancemarket/messaging/store"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

var (
	alice = chat.User{ID: "alice", DisplayName: "Alice", Role: chat.RoleStudent}
	bob   = chat.User{ID: "bob", DisplayName: "Bob", Role: chat.RoleInstructor}
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newLive(t *testing.T) (*store.Live, *store.Memory) {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Close)

	mem := store.NewMemory()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	n := 0
	// Distinct, increasing server timestamps.
	mem.Now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return &store.Live{
		Logger: slogt.New(t),
		DB:     mem,
		Feed:   &store.LocalFeed{Bus: bus},
	}, mem
}

func openSession(t *testing.T, live chat.Store, self, partner chat.User) *chat.Session {
	t.Helper()
	s := chat.NewSession(live, self, partner, nil, slogt.New(t))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func contents(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// A message to a user with no open conversation shows on their badge until
// they open it.
func TestLive_UnreadUntilOpened(t *testing.T) {
	ctx := context.Background()
	live, mem := newLive(t)

	badge := chat.NewBadge(live, nil, slogt.New(t))
	require.NoError(t, badge.SetUser(ctx, "bob"))
	defer badge.Close()

	a := openSession(t, live, alice, bob)
	id, err := a.Send(ctx, "Merhaba")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return badge.Count() == 1 }, waitFor, tick)

	b := openSession(t, live, bob, alice)
	require.Eventually(t, func() bool { return badge.Count() == 0 }, waitFor, tick)
	require.Eventually(t, func() bool {
		msgs := b.Messages()
		return len(msgs) == 1 && msgs[0].ID == id && msgs[0].Viewed
	}, waitFor, tick)

	got, ok := mem.Get(id)
	require.True(t, ok)
	require.True(t, got.Viewed)
}

func TestLive_BothOpen(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)

	a := openSession(t, live, alice, bob)
	b := openSession(t, live, bob, alice)

	_, err := a.Send(ctx, "one")
	require.NoError(t, err)
	_, err = b.Send(ctx, "two")
	require.NoError(t, err)
	_, err = a.Send(ctx, "three")
	require.NoError(t, err)

	settled := func(s *chat.Session) bool {
		msgs := s.Messages()
		if len(msgs) != 3 {
			return false
		}
		for _, m := range msgs {
			if !m.Viewed || m.Pending {
				return false
			}
		}
		return true
	}
	require.Eventually(t, func() bool { return settled(a) && settled(b) }, waitFor, tick)

	want := []string{"one", "two", "three"}
	require.Equal(t, want, contents(a.Messages()))
	require.Equal(t, want, contents(b.Messages()))
}

func TestLive_OpenCloseMarksAll(t *testing.T) {
	ctx := context.Background()
	live, mem := newLive(t)

	var ids []string
	for _, text := range []string{"are you", "free", "tonight?"} {
		msg, err := chat.NewMessage(bob, alice, text, time.Now())
		require.NoError(t, err)
		id, err := live.Append(ctx, msg)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	s := chat.NewSession(live, alice, bob, nil, slogt.New(t))
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Close(ctx))

	for _, id := range ids {
		m, ok := mem.Get(id)
		require.True(t, ok)
		require.True(t, m.Viewed, "message %s not viewed", id)
	}
}

func TestLive_SendEmpty(t *testing.T) {
	ctx := context.Background()
	live, mem := newLive(t)

	a := openSession(t, live, alice, bob)
	_, err := a.Send(ctx, "")
	require.ErrorIs(t, err, chat.ErrEmptyContent)

	msgs, err := mem.ListByParticipant(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestLive_DismissNothing(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)

	badge := chat.NewBadge(live, nil, slogt.New(t))
	require.NoError(t, badge.SetUser(ctx, "bob"))
	defer badge.Close()

	require.NoError(t, badge.MarkAllViewed(ctx))
	require.Equal(t, 0, badge.Count())
}
