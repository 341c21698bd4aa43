package identity

import (
	"context"
	"time"
)

// User is an account known to the identity service.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Confirmed reports whether the account's email has been confirmed.
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Session is an authenticated session. RefreshToken is only populated by
// SignIn and Refresh; CurrentSession never returns it.
type Session struct {
	ID           string    `json:"id"`
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// EventKind names a session change.
type EventKind string

// Session change kinds.
const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserSignedUp   EventKind = "user_signed_up"
)

// Event describes a session change. Session is set for signed_in and
// token_refreshed; SessionID and UserID are always set where they apply.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Session   *Session  `json:"-"`
	At        time.Time `json:"at"`
}

// Listener receives session changes.
type Listener func(Event)

// Subscription is returned by Subscribe. Unsubscribe may be called any
// number of times.
type Subscription interface {
	Unsubscribe()
}

// Provider is the identity service contract the dashboard depends on.
//
// Implementations must be safe for concurrent use. Listeners are called
// asynchronously, never on the caller's goroutine.
type Provider interface {
	// CurrentSession resolves an access token. Returns ErrNoSession when the
	// token is unknown, expired or signed out.
	CurrentSession(ctx context.Context, accessToken string) (*Session, error)

	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignUp creates an account. It does not sign the user in.
	SignUp(ctx context.Context, email, password string) (*User, error)

	SignOut(ctx context.Context, accessToken string) error

	// Refresh exchanges a refresh token for a new session token pair.
	// The old refresh token stops working.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)

	Subscribe(fn Listener) Subscription
}
