package chat

import (
	"context"
	"sync"
	"testing"
	"time"
)

// teststore is a Store whose subscriptions are driven by the test: callbacks
// run only when the test calls push or fail on a subscription.
type teststore struct {
	T *testing.T

	subscribeErr error
	initial      []Message
	unviewedFor  func(t *testing.T, userID string) ([]Message, error)
	append       func(t *testing.T, msg Message) (string, error)
	markViewed   func(t *testing.T, ids []string) error

	mu       sync.Mutex
	subs     []*testsub
	appended []Message
	marked   [][]string
}

type testsub struct {
	query    string
	userID   string
	onChange func([]Message)
	onError  func(error)

	mu        sync.Mutex
	cancelled bool
}

func (s *testsub) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *testsub) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *testsub) push(msgs ...Message) { s.onChange(msgs) }
func (s *testsub) fail(err error)       { s.onError(err) }

func (st *teststore) subscribe(query, userID string, onChange func([]Message), onError func(error)) (Subscription, error) {
	if st.subscribeErr != nil {
		return nil, &SubscriptionError{Query: query, UserID: userID, Err: st.subscribeErr}
	}
	sub := &testsub{query: query, userID: userID, onChange: onChange, onError: onError}
	st.mu.Lock()
	st.subs = append(st.subs, sub)
	st.mu.Unlock()
	if st.initial != nil {
		onChange(st.initial)
	}
	return sub, nil
}

func (st *teststore) SubscribeByParticipant(_ context.Context, userID string, onChange func([]Message), onError func(error)) (Subscription, error) {
	return st.subscribe(QueryByParticipant, userID, onChange, onError)
}

func (st *teststore) SubscribeUnviewedFor(_ context.Context, userID string, onChange func([]Message), onError func(error)) (Subscription, error) {
	return st.subscribe(QueryUnviewedFor, userID, onChange, onError)
}

func (st *teststore) UnviewedFor(_ context.Context, userID string) ([]Message, error) {
	if st.unviewedFor == nil {
		return nil, nil
	}
	return st.unviewedFor(st.T, userID)
}

func (st *teststore) Append(_ context.Context, msg Message) (string, error) {
	st.mu.Lock()
	st.appended = append(st.appended, msg)
	st.mu.Unlock()
	if st.append == nil {
		return "stored-1", nil
	}
	return st.append(st.T, msg)
}

func (st *teststore) MarkViewed(_ context.Context, ids []string) error {
	st.mu.Lock()
	st.marked = append(st.marked, append([]string(nil), ids...))
	st.mu.Unlock()
	if st.markViewed == nil {
		return nil
	}
	return st.markViewed(st.T, ids)
}

func (st *teststore) sub(i int) *testsub {
	st.mu.Lock()
	defer st.mu.Unlock()
	if i >= len(st.subs) {
		st.T.Fatalf("Got %d subscriptions, want at least %d", len(st.subs), i+1)
	}
	return st.subs[i]
}

func (st *teststore) numSubs() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}

func (st *teststore) markCalls() [][]string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([][]string(nil), st.marked...)
}

func (st *teststore) appendCalls() []Message {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Message(nil), st.appended...)
}

// testview records what a Session or Badge showed.
type testview struct {
	mu       sync.Mutex
	renders  [][]Message
	scrolls  int
	composer []bool
	focus    int
	errs     []error
	counts   []int
}

func (v *testview) Render(msgs []Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, msgs)
}

func (v *testview) ScrollToLatest() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolls++
}

func (v *testview) SetComposerEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.composer = append(v.composer, enabled)
}

func (v *testview) FocusComposer() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focus++
}

func (v *testview) ShowError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
}

func (v *testview) SetUnread(count int, _ []Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts = append(v.counts, count)
}

func (v *testview) numRenders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.renders)
}

var (
	alice = User{ID: "alice", DisplayName: "Alice", Role: RoleStudent}
	bob   = User{ID: "bob", DisplayName: "Bob", Role: RoleInstructor}
	carol = User{ID: "carol", DisplayName: "Carol", Role: RoleSchool}

	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

func at(minute int) time.Time { return t0.Add(time.Duration(minute) * time.Minute) }

func msg(id, from, to string, ts time.Time, viewed bool) Message {
	return Message{
		ID:           id,
		SenderID:     from,
		ReceiverID:   to,
		Participants: ConversationKey(from, to),
		Content:      "message " + id,
		Timestamp:    &ts,
		LocalTime:    ts,
		Viewed:       viewed,
	}
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
