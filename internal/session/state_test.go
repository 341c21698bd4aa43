package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homey-core/internal/identity"
)

// fakeProvider is an in-memory identity.Provider for view-state tests.
type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]*identity.Session // by access token
	users     map[string]string            // email -> password
	listeners map[int]identity.Listener
	nextSub   int

	signOutErr error
	signOuts   []string
	block      chan struct{} // when set, SignIn waits on it
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions:  make(map[string]*identity.Session),
		users:     map[string]string{"ada@example.com": "secret123"},
		listeners: make(map[int]identity.Listener),
	}
}

func (f *fakeProvider) CurrentSession(_ context.Context, token string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[token]; ok {
		return s, nil
	}
	return nil, identity.ErrNoSession
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.users[email]; !ok || pw != password {
		return nil, &identity.AuthError{Kind: identity.KindInvalidCredentials, Err: identity.ErrInvalidCredentials}
	}
	s := &identity.Session{ID: "ses-" + email, AccessToken: "tok-" + email, User: identity.User{ID: "usr-1", Email: email}}
	f.sessions[s.AccessToken] = s
	return s, nil
}

func (f *fakeProvider) SignUp(_ context.Context, email, password string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return nil, &identity.AuthError{Kind: identity.KindValidation, Message: "taken", Err: identity.ErrEmailTaken}
	}
	f.users[email] = password
	return &identity.User{ID: "usr-2", Email: email}, nil
}

func (f *fakeProvider) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, token)
	if f.signOutErr != nil {
		return f.signOutErr
	}
	delete(f.sessions, token)
	return nil
}

func (f *fakeProvider) Refresh(context.Context, string) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

type fakeSub struct {
	f  *fakeProvider
	id int
}

func (s fakeSub) Unsubscribe() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.listeners, s.id)
}

func (f *fakeProvider) Subscribe(fn identity.Listener) identity.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.listeners[id] = fn
	return fakeSub{f: f, id: id}
}

func (f *fakeProvider) emit(e identity.Event) {
	f.mu.Lock()
	ls := make([]identity.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(e)
	}
}

func (f *fakeProvider) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func TestNew_StartsLoading(t *testing.T) {
	s := New(newFakeProvider(), nil)
	defer s.Close()

	st := s.State()
	if !st.Loading || st.Authenticated() || st.Pending {
		t.Errorf("initial state = %+v", st)
	}
}

func TestInit(t *testing.T) {
	p := newFakeProvider()
	existing, _ := p.SignIn(context.Background(), "ada@example.com", "secret123")

	tests := []struct {
		name     string
		token    string
		wantAuth bool
	}{
		{"no token", "", false},
		{"unknown token", "stale", false},
		{"valid token", existing.AccessToken, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(p, nil)
			defer s.Close()

			if err := s.Init(context.Background(), tt.token); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			st := s.State()
			if st.Loading {
				t.Error("Loading should be false after Init")
			}
			if st.Authenticated() != tt.wantAuth {
				t.Errorf("Authenticated() = %v, want %v", st.Authenticated(), tt.wantAuth)
			}
		})
	}
}

func TestSignIn_InvalidCredentialsStaysSignedOut(t *testing.T) {
	s := New(newFakeProvider(), nil)
	defer s.Close()
	_ = s.Init(context.Background(), "")

	sess, err := s.SignIn(context.Background(), "ada@example.com", "wrong")
	if sess != nil {
		t.Error("no session expected")
	}
	if got := identity.UserMessage(err); got != "Invalid email or password. Please try again." {
		t.Errorf("UserMessage() = %q", got)
	}

	st := s.State()
	if st.Authenticated() || st.Pending {
		t.Errorf("state = %+v, want signed out and idle", st)
	}
}

func TestSignIn_Success(t *testing.T) {
	s := New(newFakeProvider(), nil)
	defer s.Close()

	var seen []State
	s.Subscribe(func(st State) { seen = append(seen, st) })

	if _, err := s.SignIn(context.Background(), "ada@example.com", "secret123"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if !s.State().Authenticated() {
		t.Fatal("expected authenticated state")
	}

	// pending on, then pending off with session
	if len(seen) != 2 || !seen[0].Pending || seen[1].Pending || !seen[1].Authenticated() {
		t.Errorf("notifications = %+v", seen)
	}
}

func TestSignIn_RejectsConcurrentSubmission(t *testing.T) {
	p := newFakeProvider()
	p.block = make(chan struct{})
	s := New(p, nil)
	defer s.Close()

	started := make(chan struct{})
	s.Subscribe(func(st State) {
		if st.Pending {
			select {
			case <-started:
			default:
				close(started)
			}
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.SignIn(context.Background(), "ada@example.com", "secret123")
		done <- err
	}()
	<-started

	if _, err := s.SignIn(context.Background(), "ada@example.com", "secret123"); !errors.Is(err, ErrAuthPending) {
		t.Errorf("second SignIn() error = %v, want ErrAuthPending", err)
	}
	if _, err := s.SignUp(context.Background(), "new@example.com", "secret123"); !errors.Is(err, ErrAuthPending) {
		t.Errorf("SignUp() while pending error = %v, want ErrAuthPending", err)
	}

	close(p.block)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first SignIn() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first SignIn() did not finish")
	}
	if s.State().Pending {
		t.Error("Pending should be cleared")
	}
}

func TestSignUp_DoesNotSignIn(t *testing.T) {
	s := New(newFakeProvider(), nil)
	defer s.Close()

	user, err := s.SignUp(context.Background(), "new@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.Email != "new@example.com" {
		t.Errorf("Email = %q", user.Email)
	}
	if s.State().Authenticated() {
		t.Error("SignUp must not sign the view in")
	}

	if _, err := s.SignUp(context.Background(), "new@example.com", "x"); identity.UserMessage(err) != "taken" {
		t.Errorf("duplicate SignUp() message = %q", identity.UserMessage(err))
	}
}

func TestSignOut_ClearsLocalStateBeforeProvider(t *testing.T) {
	p := newFakeProvider()
	s := New(p, nil)
	defer s.Close()

	if _, err := s.SignIn(context.Background(), "ada@example.com", "secret123"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	var authAtProviderCall bool
	p.signOutErr = errors.New("provider unreachable")
	s.Subscribe(func(st State) {
		if !st.Authenticated() && st.Pending {
			p.mu.Lock()
			authAtProviderCall = len(p.signOuts) == 0
			p.mu.Unlock()
		}
	})

	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v, want provider failure swallowed", err)
	}
	if s.State().Authenticated() {
		t.Error("state should be signed out even when the provider fails")
	}
	if !authAtProviderCall {
		t.Error("local session was not cleared before the provider call")
	}
	if len(p.signOuts) != 1 || p.signOuts[0] != "tok-ada@example.com" {
		t.Errorf("provider sign-outs = %v", p.signOuts)
	}
}

func TestSignOut_WhenSignedOutSkipsProvider(t *testing.T) {
	p := newFakeProvider()
	s := New(p, nil)
	defer s.Close()

	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if len(p.signOuts) != 0 {
		t.Errorf("provider called with %v", p.signOuts)
	}
}

func TestProviderEvents(t *testing.T) {
	p := newFakeProvider()
	s := New(p, nil)
	defer s.Close()

	sess, _ := s.SignIn(context.Background(), "ada@example.com", "secret123")

	// Events for other sessions are ignored.
	p.emit(identity.Event{Kind: identity.EventSignedOut, SessionID: "someone-else"})
	if !s.State().Authenticated() {
		t.Fatal("unrelated sign-out cleared the session")
	}

	refreshed := *sess
	refreshed.AccessToken = "tok-new"
	p.emit(identity.Event{Kind: identity.EventTokenRefreshed, SessionID: sess.ID, Session: &refreshed})
	if got := s.State().Session.AccessToken; got != "tok-new" {
		t.Errorf("AccessToken = %q, want tok-new", got)
	}

	p.emit(identity.Event{Kind: identity.EventSignedOut, SessionID: sess.ID})
	if s.State().Authenticated() {
		t.Error("sign-out elsewhere should clear the session")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := New(newFakeProvider(), nil)
	defer s.Close()

	calls := 0
	sub := s.Subscribe(func(State) { calls++ })
	_ = s.Init(context.Background(), "")
	sub.Unsubscribe()
	sub.Unsubscribe()
	_, _ = s.SignIn(context.Background(), "ada@example.com", "secret123")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClose(t *testing.T) {
	p := newFakeProvider()
	s := New(p, nil)
	if p.listenerCount() != 1 {
		t.Fatalf("provider listeners = %d, want 1", p.listenerCount())
	}

	calls := 0
	s.Subscribe(func(State) { calls++ })
	s.Close()
	s.Close()

	if p.listenerCount() != 0 {
		t.Errorf("provider listeners after Close = %d", p.listenerCount())
	}
	if _, err := s.SignIn(context.Background(), "ada@example.com", "secret123"); !errors.Is(err, ErrClosed) {
		t.Errorf("SignIn() after Close error = %v, want ErrClosed", err)
	}
	if calls != 0 {
		t.Errorf("listener called %d times after Close", calls)
	}
}

func TestState_Active(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{"signed out", State{}, false},
		{"valid token", State{Session: &identity.Session{ExpiresAt: now.Add(time.Minute)}}, true},
		{"expired token", State{Session: &identity.Session{ExpiresAt: now.Add(-time.Second)}}, false},
		{"expires exactly now", State{Session: &identity.Session{ExpiresAt: now}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
			if tt.state.Authenticated() != (tt.state.Session != nil) {
				t.Error("Authenticated() must only look at the session")
			}
		})
	}
}
