package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dancemarket/messaging/observability"
	"github.com/google/uuid"
)

// A SessionView is the presentation surface of one conversation dialog.
// Its methods are called with the session's lock held and must not call back
// into the session.
type SessionView interface {
	Render(msgs []Message)
	ScrollToLatest()
	SetComposerEnabled(enabled bool)
	FocusComposer()
	ShowError(err error)
}

type sessionState int

const (
	stateClosed sessionState = iota
	stateOpening
	stateLive
	stateClosing
)

func (s sessionState) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateLive:
		return "live"
	case stateClosing:
		return "closing"
	default:
		return "closed"
	}
}

type pendingSend struct {
	msg     Message
	storeID string
	failed  bool
}

// A Session is one open conversation between the current user and a partner.
// It keeps the message history live and marks the partner's messages viewed
// as they become visible.
type Session struct {
	store   Store
	view    SessionView
	logger  *slog.Logger
	self    User
	partner User
	now     func() time.Time

	// opMu serializes Open and Close.
	opMu sync.Mutex

	mu        sync.Mutex
	state     sessionState
	gen       uint64
	sub       Subscription
	received  []Message
	synced    bool // a snapshot arrived since Open
	published []Message
	pending   map[string]*pendingSend
	requested map[string]struct{}
	sending   bool
}

// NewSession returns a closed session between self and partner.
func NewSession(store Store, self, partner User, view SessionView, logger *slog.Logger) *Session {
	if view == nil {
		view = nopSessionView{}
	}
	return &Session{
		store:     store,
		view:      view,
		logger:    logger.With("user_id", self.ID, "partner_id", partner.ID),
		self:      self,
		partner:   partner,
		now:       time.Now,
		pending:   make(map[string]*pendingSend),
		requested: make(map[string]struct{}),
	}
}

// Partner returns the user on the other side of the conversation.
func (s *Session) Partner() User { return s.partner }

// State returns the lifecycle state name: closed, opening, live or closing.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// Messages returns the last published message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.published))
	copy(out, s.published)
	return out
}

// Open marks the known unviewed messages from the partner and starts the live
// subscription. Opening a session that is already open does nothing.
func (s *Session) Open(ctx context.Context) error {
	if s.partner.ID == "" {
		return &ValidationError{Field: "partner_id", Err: ErrMissingPartner}
	}
	if s.partner.ID == s.self.ID {
		return &ValidationError{Field: "partner_id", Err: ErrSelfConversation}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateOpening
	s.synced = false
	s.gen++
	gen := s.gen
	known := unviewedIDs(s.received, s.self.ID)
	s.mu.Unlock()

	// The first live snapshot arrives asynchronously; ask the store directly
	// so a session opened and closed at once still marks everything.
	known = mergeIDs(known, s.listUnviewed(ctx))

	s.mu.Lock()
	ids := s.claimLocked(known)
	s.mu.Unlock()

	// A failure here is retried by the live callbacks and at Close.
	_ = s.markViewed(ctx, observability.TriggerOpen, ids)

	sub, err := s.store.SubscribeByParticipant(ctx, s.self.ID,
		func(msgs []Message) { s.onChange(gen, msgs) },
		func(err error) { s.onError(gen, err) },
	)
	if err != nil {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		s.logger.Error("Could not subscribe to conversation", "error", err.Error())
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.state = stateLive
	s.mu.Unlock()

	s.logger.Info("Conversation opened")
	return nil
}

// Close marks every known unviewed message from the partner, then stops the
// subscription. No view method is called once Close returns. The session is
// closed even when marking fails; that failure is returned.
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosing
	ids := unviewedIDs(s.received, s.self.ID)
	synced := s.synced
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if !synced {
		ids = mergeIDs(ids, s.listUnviewed(ctx))
	}
	markErr := s.markViewed(ctx, observability.TriggerClose, ids)

	if sub != nil {
		sub.Cancel()
	}

	s.mu.Lock()
	s.state = stateClosed
	s.gen++
	s.pending = make(map[string]*pendingSend)
	s.sending = false
	s.mu.Unlock()

	s.logger.Info("Conversation closed")
	return markErr
}

// Send appends a message to the partner. While it is in flight the composer
// is disabled and further sends fail with ErrSendInProgress. A failed send is
// reported to the view and is not retried.
func (s *Session) Send(ctx context.Context, content string) (string, error) {
	if err := ValidateContent(content); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.state != stateOpening && s.state != stateLive {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	if s.sending {
		s.mu.Unlock()
		return "", ErrSendInProgress
	}
	msg, err := NewMessage(s.self, s.partner, content, s.now())
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.sending = true
	gen := s.gen
	localID := "local-" + uuid.NewString()
	optimistic := msg
	optimistic.ID = localID
	optimistic.Pending = true
	s.pending[localID] = &pendingSend{msg: optimistic}
	s.view.SetComposerEnabled(false)
	s.publishLocked()
	s.mu.Unlock()

	id, err := s.store.Append(ctx, msg)
	observability.ObserveSend(err)
	if err != nil {
		var we *WriteError
		if !errors.As(err, &we) {
			err = &WriteError{Op: "append", Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// closed while the append was in flight
		return id, err
	}
	s.sending = false
	if p, ok := s.pending[localID]; ok {
		if err != nil {
			p.failed = true
		} else {
			p.storeID = id
			if containsID(s.received, id) {
				delete(s.pending, localID)
				s.publishLocked()
			}
		}
	}
	s.view.SetComposerEnabled(true)
	if err != nil {
		s.logger.Warn("Could not send message", "error", err.Error())
		s.view.ShowError(err)
		return "", err
	}
	s.view.FocusComposer()
	return id, nil
}

func (s *Session) onChange(gen uint64, all []Message) {
	s.mu.Lock()
	if gen != s.gen || (s.state != stateOpening && s.state != stateLive) {
		s.mu.Unlock()
		return
	}
	s.received = conversation(all, s.self.ID, s.partner.ID)
	s.synced = true
	fresh := s.claimLocked(unviewedIDs(s.received, s.self.ID))
	s.publishLocked()
	s.mu.Unlock()

	_ = s.markViewed(context.Background(), observability.TriggerLive, fresh)
}

func (s *Session) onError(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	// The last published list stays on screen.
	s.logger.Warn("Conversation subscription failed", "error", err.Error())
	s.view.ShowError(err)
}

// publishLocked merges in-flight optimistic sends into the received list,
// renders it, and scrolls when the last message changed.
func (s *Session) publishLocked() {
	for id, p := range s.pending {
		if p.failed || (p.storeID != "" && containsID(s.received, p.storeID)) {
			delete(s.pending, id)
		}
	}

	out := make([]Message, 0, len(s.received)+len(s.pending))
	out = append(out, s.received...)
	for _, p := range s.pending {
		out = append(out, p.msg)
	}
	sortMessages(out)

	oldTail := tailID(s.published)
	s.published = out
	s.view.Render(out)
	if tailID(out) != oldTail {
		s.view.ScrollToLatest()
	}
}

// claimLocked returns the ids not already requested and records them as
// requested.
func (s *Session) claimLocked(ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := s.requested[id]; ok {
			continue
		}
		s.requested[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// listUnviewed asks the store for the partner's messages self has not viewed.
func (s *Session) listUnviewed(ctx context.Context) []string {
	unviewed, err := s.store.UnviewedFor(ctx, s.self.ID)
	if err != nil {
		s.logger.Warn("Could not list unviewed messages", "error", err.Error())
		return nil
	}
	var ids []string
	for _, m := range unviewed {
		if m.Between(s.self.ID, s.partner.ID) && m.UnviewedBy(s.self.ID) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func (s *Session) markViewed(ctx context.Context, trigger string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.store.MarkViewed(ctx, ids)
	observability.ObserveMark(trigger, len(ids), err)
	if err == nil {
		return nil
	}

	s.logger.Warn("Could not mark messages viewed", "trigger", trigger, "count", len(ids), "error", err.Error())
	s.mu.Lock()
	for _, id := range ids {
		delete(s.requested, id)
	}
	s.mu.Unlock()
	return err
}

func mergeIDs(ids, more []string) []string {
	for _, id := range more {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func containsID(msgs []Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

type nopSessionView struct{}

func (nopSessionView) Render([]Message)        {}
func (nopSessionView) ScrollToLatest()         {}
func (nopSessionView) SetComposerEnabled(bool) {}
func (nopSessionView) FocusComposer()          {}
func (nopSessionView) ShowError(error)         {}
