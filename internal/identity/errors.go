package identity

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity operations.
var (
	ErrNoSession          = errors.New("identity: no active session")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrEmailNotConfirmed  = errors.New("identity: email not confirmed")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidEmail       = errors.New("identity: invalid email")
	ErrWeakPassword       = errors.New("identity: password too short")
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrTokenInvalid       = errors.New("identity: invalid token")
	ErrTokenExpired       = errors.New("identity: token expired")
)

// Kind classifies an AuthError.
type Kind string

// Error kinds reported by the identity service.
const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmailNotConfirmed  Kind = "email_not_confirmed"
	KindValidation         Kind = "validation"
	KindProvider           Kind = "provider"
)

// User-facing messages for the two well-known failure kinds.
const (
	MessageInvalidCredentials = "Invalid email or password. Please try again."
	MessageEmailNotConfirmed  = "Please confirm your email before signing in."
)

// AuthError is returned by Provider operations that fail for a reason the
// user should see. Message is the provider's own wording.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(kind Kind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindProvider when err is not an AuthError.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindProvider
}

// UserMessage maps an error from the identity service to the text shown to
// the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ae *AuthError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	switch ae.Kind {
	case KindInvalidCredentials:
		return MessageInvalidCredentials
	case KindEmailNotConfirmed:
		return MessageEmailNotConfirmed
	}
	if ae.Message != "" {
		return ae.Message
	}
	if ae.Err != nil {
		return ae.Err.Error()
	}
	return "Authentication failed. Please try again."
}
