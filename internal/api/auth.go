package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/homey-core/internal/identity"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// User-facing confirmations for the auth forms.
const (
	MessageWelcomeBack    = "Welcome back!"
	MessageAccountCreated = "Account created! Please sign in to continue."
	MessageSignedOut      = "Signed out successfully"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Message string            `json:"message,omitempty"`
	Session *identity.Session `json:"session"`
}

// handleSignUp creates an account. The caller still has to sign in.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.identity.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Debug("sign-up rejected", "kind", identity.KindOf(err))
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": MessageAccountCreated,
		"user":    user,
	})
}

// handleSignIn exchanges email and password for a session.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Debug("sign-in rejected", "kind", identity.KindOf(err))
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Message: MessageWelcomeBack, Session: sess})
}

// handleRefresh rotates the refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess})
}

// handleSignOut revokes the caller's session. Provider failures are logged
// and the client is still told it is signed out, so it drops its tokens.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.tickets.revokeSession(sess.ID)

	if err := s.identity.SignOut(r.Context(), sess.AccessToken); err != nil && !errors.Is(err, identity.ErrNoSession) {
		s.logger.Warn("provider sign-out failed", "session_id", sess.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": MessageSignedOut})
}

// handleSession returns the caller's session without its tokens.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"user":       sess.User,
		"expires_at": sess.ExpiresAt,
	})
}

// handleWSTicket issues a single-use ticket for opening the live feed, so
// the access token never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	ticket := s.tickets.issue(sess, time.Now())

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
		"ws_path":    apiPrefix + s.wsPath(),
	})
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	accessToken string
	sessionID   string
	userID      string
	expiresAt   time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

func (ts *ticketStore) issue(sess *identity.Session, now time.Time) string {
	ticket := generateTicket()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		accessToken: sess.AccessToken,
		sessionID:   sess.ID,
		userID:      sess.User.ID,
		expiresAt:   now.Add(ticketTTL),
	}
	ts.mu.Unlock()
	return ticket
}

// consume validates and removes a ticket.
func (ts *ticketStore) consume(ticket string, now time.Time) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(ts.tickets, ticket)
	return entry, now.Before(entry.expiresAt)
}

// revokeSession drops unused tickets of a signed-out session.
func (ts *ticketStore) revokeSession(sessionID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for t, e := range ts.tickets {
		if e.sessionID == sessionID {
			delete(ts.tickets, t)
		}
	}
}

func (ts *ticketStore) cleanExpired(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for t, e := range ts.tickets {
		if now.After(e.expiresAt) {
			delete(ts.tickets, t)
		}
	}
}

func (ts *ticketStore) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tickets)
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop removes expired tickets until ctx is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tickets.cleanExpired(now)
		}
	}
}
