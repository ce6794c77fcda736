package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// A Client is the messaging state of one signed-in user: the unread badge
// and at most one open Session per partner.
type Client struct {
	store   Store
	logger  *slog.Logger
	newView func(self, partner User) SessionView
	badge   *Badge

	mu       sync.Mutex
	user     User
	sessions map[string]*Session
}

// NewClient returns a client with no user logged in. newView builds the view
// of each opened conversation; it may be nil.
func NewClient(store Store, badgeView BadgeView, newView func(self, partner User) SessionView, logger *slog.Logger) *Client {
	if newView == nil {
		newView = func(User, User) SessionView { return nopSessionView{} }
	}
	return &Client{
		store:    store,
		logger:   logger,
		newView:  newView,
		badge:    NewBadge(store, badgeView, logger),
		sessions: make(map[string]*Session),
	}
}

// User returns the logged in user, or the zero User.
func (c *Client) User() User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Login binds the client to user. Switching to a different user closes the
// previous user's conversations and re-keys the badge.
func (c *Client) Login(ctx context.Context, user User) error {
	if user.ID == "" {
		return &ValidationError{Field: "user_id", Err: ErrMissingUser}
	}

	c.mu.Lock()
	var stale []*Session
	if c.user.ID != user.ID {
		stale = c.takeSessionsLocked()
	}
	c.user = user
	c.mu.Unlock()

	if err := c.closeAll(ctx, stale); err != nil {
		c.logger.Warn("Could not close previous conversations", "error", err.Error())
	}
	return c.badge.SetUser(ctx, user.ID)
}

// Logout closes every conversation and stops the badge.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	stale := c.takeSessionsLocked()
	c.user = User{}
	c.mu.Unlock()

	err := c.closeAll(ctx, stale)
	return errors.Join(err, c.badge.SetUser(ctx, ""))
}

// Open opens the conversation with partner, reusing it if already open.
func (c *Client) Open(ctx context.Context, partner User) (*Session, error) {
	if partner.ID == "" {
		return nil, &ValidationError{Field: "partner_id", Err: ErrMissingPartner}
	}

	c.mu.Lock()
	if c.user.ID == "" {
		c.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	s, ok := c.sessions[partner.ID]
	if !ok {
		s = NewSession(c.store, c.user, partner, c.newView(c.user, partner), c.logger)
		c.sessions[partner.ID] = s
	}
	c.mu.Unlock()

	if err := s.Open(ctx); err != nil {
		if !ok {
			c.mu.Lock()
			if c.sessions[partner.ID] == s {
				delete(c.sessions, partner.ID)
			}
			c.mu.Unlock()
		}
		return nil, err
	}
	return s, nil
}

// Session returns the open conversation with partnerID.
func (c *Client) Session(partnerID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user.ID == "" {
		return nil, ErrNotLoggedIn
	}
	s, ok := c.sessions[partnerID]
	if !ok {
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Send sends content to partnerID through its open conversation.
func (c *Client) Send(ctx context.Context, partnerID, content string) (string, error) {
	if partnerID == "" {
		return "", &ValidationError{Field: "partner_id", Err: ErrMissingPartner}
	}
	if err := ValidateContent(content); err != nil {
		return "", err
	}
	s, err := c.Session(partnerID)
	if err != nil {
		return "", err
	}
	return s.Send(ctx, content)
}

// Close closes the conversation with partnerID. Closing a conversation that
// is not open does nothing.
func (c *Client) Close(ctx context.Context, partnerID string) error {
	c.mu.Lock()
	s, ok := c.sessions[partnerID]
	delete(c.sessions, partnerID)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// Unread returns the badge count and the unviewed messages.
func (c *Client) Unread() (int, []Message) {
	msgs := c.badge.Unread()
	return len(msgs), msgs
}

// DismissAll marks every unviewed message addressed to the user.
func (c *Client) DismissAll(ctx context.Context) error {
	return c.badge.MarkAllViewed(ctx)
}

func (c *Client) takeSessionsLocked() []*Session {
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	c.sessions = make(map[string]*Session)
	return out
}

func (c *Client) closeAll(ctx context.Context, sessions []*Session) error {
	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close(ctx))
	}
	return errors.Join(errs...)
}
