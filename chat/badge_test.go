package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

func TestBadge_Count(t *testing.T) {
	tests := []struct {
		name      string
		delivered []Message
		wantCount int
		wantIDs   []string
	}{
		{
			name:      "Empty",
			delivered: []Message{},
			wantCount: 0,
			wantIDs:   []string{},
		},
		{
			name: "OnlyUnviewedAddressedToSelf",
			delivered: []Message{
				msg("m3", "carol", "alice", at(3), false),
				msg("m1", "bob", "alice", at(1), false),
				msg("m2", "bob", "alice", at(2), true),
				msg("m4", "alice", "bob", at(4), false),
				msg("m1", "bob", "alice", at(1), false),
			},
			wantCount: 2,
			wantIDs:   []string{"m1", "m3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &teststore{T: t}
			view := &testview{}
			b := NewBadge(st, view, slogt.New(t))
			require.NoError(t, b.SetUser(context.Background(), "alice"))

			sub := st.sub(0)
			require.Equal(t, QueryUnviewedFor, sub.query)
			require.Equal(t, "alice", sub.userID)
			sub.push(tt.delivered...)

			require.Equal(t, tt.wantCount, b.Count())
			if diff := cmp.Diff(tt.wantIDs, ids(b.Unread())); diff != "" {
				t.Errorf("Unread mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, tt.wantCount, view.counts[len(view.counts)-1])
		})
	}
}

func TestBadge_SetUser(t *testing.T) {
	st := &teststore{T: t}
	view := &testview{}
	b := NewBadge(st, view, slogt.New(t))
	ctx := context.Background()

	require.NoError(t, b.SetUser(ctx, "alice"))
	require.NoError(t, b.SetUser(ctx, "alice"))
	require.Equal(t, 1, st.numSubs())
	st.sub(0).push(msg("m1", "bob", "alice", at(0), false))
	require.Equal(t, 1, b.Count())

	// Switching user re-keys the subscription and resets the count.
	require.NoError(t, b.SetUser(ctx, "bob"))
	require.True(t, st.sub(0).isCancelled())
	require.Equal(t, 0, b.Count())
	require.Equal(t, "bob", st.sub(1).userID)

	st.sub(0).push(msg("m2", "carol", "alice", at(1), false))
	require.Equal(t, 0, b.Count())

	require.NoError(t, b.SetUser(ctx, ""))
	require.True(t, st.sub(1).isCancelled())
	require.Equal(t, "", b.UserID())
	require.Equal(t, 0, view.counts[len(view.counts)-1])
}

func TestBadge_SubscriptionError(t *testing.T) {
	st := &teststore{T: t}
	view := &testview{}
	b := NewBadge(st, view, slogt.New(t))
	require.NoError(t, b.SetUser(context.Background(), "alice"))

	st.sub(0).push(msg("m1", "bob", "alice", at(0), false))
	st.sub(0).fail(errors.New("offline"))

	require.Len(t, view.errs, 1)
	require.Equal(t, 1, b.Count())
}

func TestBadge_MarkAllViewed(t *testing.T) {
	tests := []struct {
		name        string
		userID      string
		unviewedFor func(t *testing.T, userID string) ([]Message, error)
		markViewed  func(t *testing.T, ids []string) error
		wantMarked  [][]string
		wantErr     bool
		wantErrIs   error
	}{
		{
			name:      "NotLoggedIn",
			wantErr:   true,
			wantErrIs: ErrNotLoggedIn,
		},
		{
			name:   "NothingUnviewed",
			userID: "bob",
		},
		{
			name:   "ListError",
			userID: "bob",
			unviewedFor: func(t *testing.T, userID string) ([]Message, error) {
				return nil, errors.New("unavailable")
			},
			wantErr: true,
		},
		{
			name:   "SkipsOwnMessages",
			userID: "bob",
			unviewedFor: func(t *testing.T, userID string) ([]Message, error) {
				if userID != "bob" {
					t.Errorf("Got userID %q, want bob", userID)
				}
				return []Message{
					msg("m1", "alice", "bob", at(0), false),
					msg("m2", "bob", "alice", at(1), false),
					msg("m3", "carol", "bob", at(2), false),
				}, nil
			},
			wantMarked: [][]string{{"m1", "m3"}},
		},
		{
			name:   "MarkError",
			userID: "bob",
			unviewedFor: func(t *testing.T, userID string) ([]Message, error) {
				return []Message{msg("m1", "alice", "bob", at(0), false)}, nil
			},
			markViewed: func(t *testing.T, ids []string) error {
				return &WriteError{Op: "mark viewed", Err: errors.New("unavailable")}
			},
			wantMarked: [][]string{{"m1"}},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &teststore{T: t, unviewedFor: tt.unviewedFor, markViewed: tt.markViewed}
			b := NewBadge(st, &testview{}, slogt.New(t))
			if tt.userID != "" {
				require.NoError(t, b.SetUser(context.Background(), tt.userID))
			}

			err := b.MarkAllViewed(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantErrIs != nil {
					require.ErrorIs(t, err, tt.wantErrIs)
				}
			} else {
				require.NoError(t, err)
			}
			if diff := cmp.Diff(tt.wantMarked, st.markCalls()); diff != "" {
				t.Errorf("MarkViewed calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
