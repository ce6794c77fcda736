package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dancemarket/messaging/chat"
	"github.com/dancemarket/messaging/eventbus"
)

// A Hub holds the messaging client of every logged in user.
type Hub struct {
	store  chat.Store
	bus    *eventbus.Bus
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*chat.Client
}

// NewHub returns an empty Hub.
func NewHub(store chat.Store, bus *eventbus.Bus, logger *slog.Logger) *Hub {
	return &Hub{
		store:   store,
		bus:     bus,
		logger:  logger,
		clients: make(map[string]*chat.Client),
	}
}

// Login returns the client of user, creating and logging it in if needed.
func (h *Hub) Login(ctx context.Context, user chat.User) (*chat.Client, error) {
	h.mu.Lock()
	c, ok := h.clients[user.ID]
	if !ok {
		c = chat.NewClient(
			h.store,
			&badgeView{bus: h.bus, userID: user.ID},
			func(self, partner chat.User) chat.SessionView {
				return &sessionView{bus: h.bus, userID: self.ID, partnerID: partner.ID}
			},
			h.logger,
		)
		h.clients[user.ID] = c
	}
	h.mu.Unlock()

	if err := c.Login(ctx, user); err != nil {
		return nil, err
	}
	return c, nil
}

// Client returns the client of a logged in user.
func (h *Hub) Client(userID string) (*chat.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[userID]
	if !ok {
		return nil, chat.ErrNotLoggedIn
	}
	return c, nil
}

// Logout logs userID out and forgets its client.
func (h *Hub) Logout(ctx context.Context, userID string) error {
	h.mu.Lock()
	c, ok := h.clients[userID]
	delete(h.clients, userID)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Logout(ctx)
}

// Shutdown logs every user out.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*chat.Client)
	h.mu.Unlock()

	var errs []error
	for _, c := range clients {
		errs = append(errs, c.Logout(ctx))
	}
	return errors.Join(errs...)
}
