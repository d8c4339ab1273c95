package chat

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput           = errors.New("message content is empty")
	ErrTurnInFlight         = errors.New("a reply is already being generated for this conversation")
	ErrConversationNotFound = errors.New("conversation not found or access denied")
)

// ProviderError is returned when the AI provider fails (network, quota, model).
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is returned when the conversation store can't be read or written.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AuthError carries a message meant for the sign-in/sign-up form.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

func NewAuthError(reason string) *AuthError {
	return &AuthError{Reason: reason}
}
