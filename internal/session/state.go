package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/homey-core/internal/identity"
)

// ErrAuthPending is returned when an auth action is submitted while another
// one for the same view has not finished.
var ErrAuthPending = errors.New("session: authentication already in progress")

// ErrClosed is returned by actions on a Store after Close.
var ErrClosed = errors.New("session: closed")

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is what a view renders from: the current session (nil when signed
// out), whether the initial session check is still running, and whether an
// auth action is in flight.
type State struct {
	Session *identity.Session `json:"session,omitempty"`
	Loading bool              `json:"loading"`
	Pending bool              `json:"pending"`
}

// Authenticated reports whether the view has a session.
func (s State) Authenticated() bool {
	return s.Session != nil
}

// Active reports whether the view has a session whose access token is still
// valid at now. A session that lapsed without a sign-out or refresh is
// authenticated but not active.
func (s State) Active(now time.Time) bool {
	return s.Session != nil && now.Before(s.Session.ExpiresAt)
}

// Store holds the authentication state of one view (one browser connection).
//
// It is created when the view mounts, subscribes to the identity provider so
// sign-outs elsewhere are reflected, and must be closed when the view goes
// away. At most one of SignIn, SignUp and SignOut runs at a time.
type Store struct {
	provider identity.Provider
	logger   Logger

	mu        sync.Mutex
	state     State
	listeners map[uint64]func(State)
	nextID    uint64
	closed    bool

	providerSub identity.Subscription
}

// New creates a Store in the loading state and subscribes to provider events.
func New(provider identity.Provider, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Store{
		provider:  provider,
		logger:    logger,
		state:     State{Loading: true},
		listeners: make(map[uint64]func(State)),
	}
	s.providerSub = provider.Subscribe(s.onProviderEvent)
	return s
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init resolves the view's existing access token once at mount. An unknown
// or expired token leaves the view signed out without error.
func (s *Store) Init(ctx context.Context, accessToken string) error {
	var (
		sess *identity.Session
		err  error
	)
	if accessToken != "" {
		sess, err = s.provider.CurrentSession(ctx, accessToken)
		if errors.Is(err, identity.ErrNoSession) {
			err = nil
		}
		if err != nil {
			s.logger.Warn("session check failed", "error", err)
		}
	}

	s.update(func(st *State) {
		st.Session = sess
		st.Loading = false
	})
	return err
}

// SignIn authenticates with email and password. On failure the view stays
// signed out and the error's identity.UserMessage is what to show.
func (s *Store) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	sess, err := s.provider.SignIn(ctx, email, password)

	s.update(func(st *State) {
		st.Pending = false
		if err == nil {
			st.Session = sess
		}
	})
	if err != nil {
		s.logger.Debug("sign-in rejected", "kind", identity.KindOf(err))
		return nil, err
	}
	return sess, nil
}

// SignUp creates an account. The view is not signed in afterwards.
func (s *Store) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	user, err := s.provider.SignUp(ctx, email, password)

	s.update(func(st *State) { st.Pending = false })
	return user, err
}

// SignOut clears the local session first, then tells the provider. A
// provider failure is logged and not returned, so the view can never stay
// signed in after asking to sign out.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}

	var token string
	s.update(func(st *State) {
		if st.Session != nil {
			token = st.Session.AccessToken
		}
		st.Session = nil
	})

	if token != "" {
		if err := s.provider.SignOut(ctx, token); err != nil && !errors.Is(err, identity.ErrNoSession) {
			s.logger.Warn("provider sign-out failed", "error", err)
		}
	}

	s.update(func(st *State) { st.Pending = false })
	return nil
}

// Subscription is returned by Subscribe.
type Subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

// Unsubscribe stops notifications. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.listeners, sub.id)
		sub.store.mu.Unlock()
	})
}

// Subscribe registers fn to be called with the new state after every change.
// Calls happen on the goroutine that made the change.
func (s *Store) Subscribe(fn func(State)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	if !s.closed {
		s.listeners[id] = fn
	}
	return &Subscription{store: s, id: id}
}

// Close detaches from the provider and drops all listeners. Further auth
// actions return ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = make(map[uint64]func(State))
	s.mu.Unlock()

	s.providerSub.Unsubscribe()
}

func (s *Store) begin() error {
	var err error
	s.update(func(st *State) {
		switch {
		case s.closed:
			err = ErrClosed
		case st.Pending:
			err = ErrAuthPending
		default:
			st.Pending = true
		}
	})
	return err
}

// onProviderEvent keeps the view in step with changes made elsewhere, such
// as a sign-out from another tab sharing the session.
func (s *Store) onProviderEvent(e identity.Event) {
	s.update(func(st *State) {
		if st.Session == nil || st.Session.ID != e.SessionID {
			return
		}
		switch e.Kind {
		case identity.EventSignedOut:
			st.Session = nil
		case identity.EventTokenRefreshed:
			if e.Session != nil {
				st.Session = e.Session
			}
		}
	})
}

// update applies fn under the lock and notifies listeners when the state
// changed.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	before := s.state
	fn(&s.state)
	after := s.state
	if before == after || s.closed {
		s.mu.Unlock()
		return
	}
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(after)
	}
}
