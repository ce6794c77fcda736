package chat

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyContent     = errors.New("message content is empty")
	ErrMissingPartner   = errors.New("partner id is required")
	ErrMissingUser      = errors.New("user id is required")
	ErrSelfConversation = errors.New("cannot message yourself")
	ErrSendInProgress   = errors.New("a send is already in progress")
	ErrSessionClosed    = errors.New("conversation is not open")
	ErrNotLoggedIn      = errors.New("no user is logged in")
)

// A ValidationError is returned for input rejected before any store call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// A WriteError is returned when the store rejects an append or a mark batch.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// A SubscriptionError is delivered to a listener when its live query fails.
// The subscription stays registered; the owner decides whether to resubscribe.
type SubscriptionError struct {
	Query  string
	UserID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s for %s: %v", e.Query, e.UserID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
