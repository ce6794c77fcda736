// Package api exposes the messaging clients over HTTP and streams their view
// updates over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dancemarket/messaging/api/validator"
	"github.com/dancemarket/messaging/chat"
	"github.com/dancemarket/messaging/eventbus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Headers set by the auth provider in front of the API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

var errUnauthenticated = errors.New("missing user id")

// API provides the REST endpoints for the application.
type API struct {
	Logger *slog.Logger
	Store  chat.Store
	Bus    *eventbus.Bus
	Val    *validator.Validator

	once sync.Once
	mux  *http.ServeMux
	hub  *Hub
}

func (a *API) setupRoutes() {
	a.hub = NewHub(a.Store, a.Bus, a.Logger)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /session", a.login)
	mux.HandleFunc("DELETE /session", a.logout)
	mux.HandleFunc("GET /unread", a.listUnread)
	mux.HandleFunc("POST /unread/dismiss", a.dismissUnread)
	mux.HandleFunc("POST /conversations/{partnerID}", a.openConversation)
	mux.HandleFunc("DELETE /conversations/{partnerID}", a.closeConversation)
	mux.HandleFunc("GET /conversations/{partnerID}/messages", a.listMessages)
	mux.HandleFunc("POST /conversations/{partnerID}/messages", a.createMessage)
	mux.HandleFunc("POST /profile", a.updateProfile)
	mux.HandleFunc("POST /profile/photo", a.updatePhoto)
	mux.HandleFunc("GET /ws", a.serveEvents)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

// Shutdown logs out every user.
func (a *API) Shutdown(ctx context.Context) error {
	a.once.Do(a.setupRoutes)
	return a.hub.Shutdown(ctx)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondChatError picks the status for an error returned by the chat
// package. Validation errors are reported to the caller verbatim.
func (a *API) respondChatError(w http.ResponseWriter, err error, msg string) {
	var (
		ve *chat.ValidationError
		we *chat.WriteError
	)
	switch {
	case errors.As(err, &ve):
		a.respondError(w, http.StatusBadRequest, err, ve.Error())
	case errors.Is(err, chat.ErrSendInProgress):
		a.respondError(w, http.StatusConflict, err, "A message is already being sent")
	case errors.Is(err, chat.ErrNotLoggedIn):
		a.respondError(w, http.StatusConflict, err, "Not logged in")
	case errors.Is(err, chat.ErrSessionClosed):
		a.respondError(w, http.StatusNotFound, err, "Conversation is not open")
	case errors.As(err, &we):
		a.respondError(w, http.StatusBadGateway, err, msg)
	default:
		a.respondError(w, http.StatusInternalServerError, err, msg)
	}
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// decodeBody decodes an optional JSON body into v.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	return true
}

// authUser reads the authenticated user from the request headers.
func (a *API) authUser(w http.ResponseWriter, r *http.Request) (chat.User, bool) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		a.respondError(w, http.StatusUnauthorized, errUnauthenticated, "Missing "+HeaderUserID+" header")
		return chat.User{}, false
	}
	role, err := chat.ParseRole(r.Header.Values(HeaderUserRole))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Invalid "+HeaderUserRole+" header")
		return chat.User{}, false
	}
	return chat.User{
		ID:          id,
		DisplayName: r.Header.Get(HeaderUserName),
		Role:        role,
	}, true
}

// client returns the messaging client of the authenticated user.
func (a *API) client(w http.ResponseWriter, r *http.Request) (*chat.Client, bool) {
	user, ok := a.authUser(w, r)
	if !ok {
		return nil, false
	}
	c, err := a.hub.Client(user.ID)
	if err != nil {
		a.respondChatError(w, err, "Could not find session")
		return nil, false
	}
	return c, true
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type response struct {
		UserID      string    `json:"user_id"`
		DisplayName string    `json:"display_name"`
		Role        chat.Role `json:"role,omitempty"`
		RoleLabel   string    `json:"role_label"`
	}

	user, ok := a.authUser(w, r)
	if !ok {
		return
	}
	if _, err := a.hub.Login(r.Context(), user); err != nil {
		a.respondChatError(w, err, "Could not log in")
		return
	}

	a.Logger.Info("User logged in", "user_id", user.ID)
	a.respond(w, http.StatusOK, response{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		RoleLabel:   user.Role.Label(),
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	user, ok := a.authUser(w, r)
	if !ok {
		return
	}
	if err := a.hub.Logout(r.Context(), user.ID); err != nil {
		a.respondChatError(w, err, "Could not log out")
		return
	}
	a.Logger.Info("User logged out", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listUnread(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Count    int            `json:"count"`
		Messages []chat.Message `json:"messages"`
	}

	c, ok := a.client(w, r)
	if !ok {
		return
	}
	n, msgs := c.Unread()
	a.respond(w, http.StatusOK, response{Count: n, Messages: msgs})
}

func (a *API) dismissUnread(w http.ResponseWriter, r *http.Request) {
	c, ok := a.client(w, r)
	if !ok {
		return
	}
	if err := c.DismissAll(r.Context()); err != nil {
		a.respondChatError(w, err, "Could not mark messages viewed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) openConversation(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			DisplayName string `json:"display_name" validate:"max=200"`
			Role        any    `json:"role"`
		}
		response struct {
			PartnerID string         `json:"partner_id"`
			State     string         `json:"state"`
			Messages  []chat.Message `json:"messages"`
		}
	)

	c, ok := a.client(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	role, err := chat.ParseRole(body.Role)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Invalid role")
		return
	}
	partner := chat.User{
		ID:          r.PathValue("partnerID"),
		DisplayName: body.DisplayName,
		Role:        role,
	}
	s, err := c.Open(r.Context(), partner)
	if err != nil {
		a.respondChatError(w, err, "Could not open conversation")
		return
	}

	a.respond(w, http.StatusOK, response{
		PartnerID: partner.ID,
		State:     s.State(),
		Messages:  s.Messages(),
	})
}

func (a *API) closeConversation(w http.ResponseWriter, r *http.Request) {
	c, ok := a.client(w, r)
	if !ok {
		return
	}
	if err := c.Close(r.Context(), r.PathValue("partnerID")); err != nil {
		a.respondChatError(w, err, "Could not close conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Messages []chat.Message `json:"messages"`
	}

	c, ok := a.client(w, r)
	if !ok {
		return
	}
	s, err := c.Session(r.PathValue("partnerID"))
	if err != nil {
		a.respondChatError(w, err, "Could not list messages")
		return
	}
	a.respond(w, http.StatusOK, response{Messages: s.Messages()})
}

func (a *API) createMessage(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Content string `json:"content" validate:"required,max=4000"`
		}
		response struct {
			ID string `json:"id"`
		}
	)

	c, ok := a.client(w, r)
	if !ok {
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}
	if err := r.Body.Close(); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return
	}

	id, err := c.Send(r.Context(), r.PathValue("partnerID"), body.Content)
	if err != nil {
		a.respondChatError(w, err, "Could not send message")
		return
	}
	a.respond(w, http.StatusCreated, response{ID: id})
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	type request struct {
		DisplayName string `json:"display_name" validate:"required,max=200"`
	}

	user, ok := a.authUser(w, r)
	if !ok {
		return
	}
	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	p := Profile{UserID: user.ID, DisplayName: body.DisplayName}
	eventbus.Publish(a.Bus, ProfileEvents, Event{Type: EventProfile, Profile: &p})
	a.respond(w, http.StatusAccepted, p)
}

func (a *API) updatePhoto(w http.ResponseWriter, r *http.Request) {
	type request struct {
		PhotoURL string `json:"photo_url" validate:"required,url"`
	}

	user, ok := a.authUser(w, r)
	if !ok {
		return
	}
	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	p := Profile{UserID: user.ID, PhotoURL: body.PhotoURL}
	eventbus.Publish(a.Bus, ProfileEvents, Event{Type: EventProfilePhoto, Profile: &p})
	a.respond(w, http.StatusAccepted, p)
}

func errorMessage(err error) string {
	var ve *chat.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, chat.ErrSendInProgress):
		return "A message is already being sent"
	default:
		var we *chat.WriteError
		if errors.As(err, &we) {
			return "Could not " + we.Op
		}
		return "Connection to messages lost"
	}
}
