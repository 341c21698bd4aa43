package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Logger defines the logging interface used by the identity service.
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

// Options configure a LocalProvider.
type Options struct {
	// Secret signs access tokens. Must be at least 32 bytes.
	Secret string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RequireEmailConfirmation blocks sign-in until ConfirmEmail is called.
	// When false, accounts are confirmed at sign-up.
	RequireEmailConfirmation bool

	MinPasswordLength int

	Logger Logger
}

const (
	defaultAccessTTL         = 15 * time.Minute
	defaultRefreshTTL        = 24 * time.Hour
	defaultMinPasswordLength = 6
	minSecretLength          = 32
	maxEmailLength           = 254
)

// LocalProvider is a self-hosted identity service backed by SQLite.
//
// Passwords are stored as Argon2id hashes, access tokens are HS256 JWTs and
// refresh tokens are stored as SHA-256 hashes on the session row. Access
// tokens are also checked against the session row, so SignOut takes effect
// immediately.
type LocalProvider struct {
	repo   *repository
	opts   Options
	events *broadcaster
	logger Logger

	now          func() time.Time
	hashPassword func(string) (string, error)
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider using the given database, which must
// already contain the users and sessions tables.
func NewLocalProvider(db *sql.DB, opts Options) (*LocalProvider, error) {
	if len(opts.Secret) < minSecretLength {
		return nil, fmt.Errorf("identity: secret must be at least %d characters", minSecretLength)
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTTL
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = defaultMinPasswordLength
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &LocalProvider{
		repo:         &repository{db: db},
		opts:         opts,
		events:       newBroadcaster(logger),
		logger:       logger,
		now:          time.Now,
		hashPassword: HashPassword,
	}, nil
}

// CurrentSession resolves an access token to its session.
func (p *LocalProvider) CurrentSession(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	now := p.now()

	claims, err := parseAccessToken(accessToken, p.opts.Secret, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	stored, err := p.repo.sessionByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if stored.Revoked || !now.Before(stored.ExpiresAt) || stored.UserID != claims.Subject {
		return nil, ErrNoSession
	}

	user, err := p.repo.userByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	return &Session{
		ID:          stored.ID,
		User:        *user,
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// SignIn checks credentials and opens a new session.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, newAuthError(KindValidation, "Please fill in all fields", ErrInvalidCredentials)
	}

	user, hash, err := p.repo.userByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			p.logger.Debug("sign-in for unknown email")
			return nil, newAuthError(KindInvalidCredentials, MessageInvalidCredentials, ErrInvalidCredentials)
		}
		return nil, newAuthError(KindProvider, "Sign in is unavailable right now.", err)
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil {
		p.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, newAuthError(KindProvider, "Sign in is unavailable right now.", err)
	}
	if !ok {
		return nil, newAuthError(KindInvalidCredentials, MessageInvalidCredentials, ErrInvalidCredentials)
	}

	if p.opts.RequireEmailConfirmation && !user.Confirmed() {
		return nil, newAuthError(KindEmailNotConfirmed, MessageEmailNotConfirmed, ErrEmailNotConfirmed)
	}

	session, err := p.openSession(ctx, *user)
	if err != nil {
		return nil, newAuthError(KindProvider, "Sign in is unavailable right now.", err)
	}

	p.logger.Info("user signed in", "user_id", user.ID, "session_id", session.ID)
	p.emit(Event{Kind: EventSignedIn, SessionID: session.ID, UserID: user.ID, Session: session})
	return session, nil
}

// SignUp creates an account without signing in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if err := p.validateSignUp(email, password); err != nil {
		return nil, err
	}

	hash, err := p.hashPassword(password)
	if err != nil {
		return nil, newAuthError(KindProvider, "Sign up is unavailable right now.", err)
	}

	now := p.now()
	user := &User{Email: email}
	if !p.opts.RequireEmailConfirmation {
		confirmed := now.UTC().Truncate(time.Second)
		user.EmailConfirmedAt = &confirmed
	}

	if err := p.repo.createUser(ctx, user, hash, now); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, newAuthError(KindValidation, "An account with this email already exists.", err)
		}
		return nil, newAuthError(KindProvider, "Sign up is unavailable right now.", err)
	}

	p.logger.Info("user signed up", "user_id", user.ID, "confirmed", user.Confirmed())
	p.emit(Event{Kind: EventUserSignedUp, UserID: user.ID})
	return user, nil
}

func (p *LocalProvider) validateSignUp(email, password string) error {
	if email == "" || password == "" {
		return newAuthError(KindValidation, "Please fill in all fields", ErrInvalidEmail)
	}
	if len(email) > maxEmailLength {
		return newAuthError(KindValidation, "Please enter a valid email address.", ErrInvalidEmail)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return newAuthError(KindValidation, "Please enter a valid email address.", ErrInvalidEmail)
	}
	if utf8.RuneCountInString(password) < p.opts.MinPasswordLength {
		return newAuthError(KindValidation,
			fmt.Sprintf("Password should be at least %d characters.", p.opts.MinPasswordLength),
			ErrWeakPassword)
	}
	return nil
}

// SignOut revokes the session behind an access token. Expired tokens are
// accepted as long as the signature is valid.
func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := parseExpiredAccessToken(accessToken, p.opts.Secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	revoked, err := p.repo.revokeSession(ctx, claims.SessionID)
	if err != nil {
		return newAuthError(KindProvider, "Sign out failed.", err)
	}
	if !revoked {
		return ErrNoSession
	}

	p.logger.Info("user signed out", "user_id", claims.Subject, "session_id", claims.SessionID)
	p.emit(Event{Kind: EventSignedOut, SessionID: claims.SessionID, UserID: claims.Subject})
	return nil
}

// Refresh rotates the refresh token and issues a new access token.
func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	now := p.now()
	oldHash := hashToken(refreshToken)

	stored, err := p.repo.sessionByRefreshHash(ctx, oldHash)
	if err != nil {
		return nil, err
	}
	if stored.Revoked {
		return nil, ErrNoSession
	}
	if !now.Before(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, ErrTokenExpired)
	}

	user, err := p.repo.userByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}

	raw, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	expires := now.Add(p.opts.RefreshTTL)
	if err := p.repo.rotateRefresh(ctx, stored.ID, oldHash, hashToken(raw), expires, now); err != nil {
		return nil, err
	}

	access, accessExpires, err := issueAccessToken(*user, stored.ID, p.opts.Secret, p.opts.AccessTTL, now)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:           stored.ID,
		User:         *user,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    accessExpires,
	}
	p.logger.Debug("session refreshed", "session_id", stored.ID)
	p.emit(Event{Kind: EventTokenRefreshed, SessionID: stored.ID, UserID: user.ID, Session: session})
	return session, nil
}

// Subscribe registers a listener for session changes.
func (p *LocalProvider) Subscribe(fn Listener) Subscription {
	return p.events.subscribe(fn)
}

// ConfirmEmail marks an account's email as confirmed. Confirming twice is
// not an error.
func (p *LocalProvider) ConfirmEmail(ctx context.Context, email string) error {
	if err := p.repo.confirmEmail(ctx, normalizeEmail(email), p.now()); err != nil {
		return err
	}
	p.logger.Info("email confirmed", "email", normalizeEmail(email))
	return nil
}

// PurgeSessions deletes expired and revoked sessions.
func (p *LocalProvider) PurgeSessions(ctx context.Context) (int64, error) {
	return p.repo.deleteExpiredSessions(ctx, p.now())
}

// RunCleanup purges sessions every interval until ctx is cancelled.
func (p *LocalProvider) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeSessions(ctx)
			if err != nil {
				p.logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("purged sessions", "count", n)
			}
		}
	}
}

// Close stops all listener goroutines.
func (p *LocalProvider) Close() {
	p.events.close()
}

func (p *LocalProvider) openSession(ctx context.Context, user User) (*Session, error) {
	now := p.now()

	raw, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	stored := &storedSession{
		UserID:           user.ID,
		RefreshTokenHash: hashToken(raw),
		ExpiresAt:        now.Add(p.opts.RefreshTTL),
	}
	if err := p.repo.createSession(ctx, stored, now); err != nil {
		return nil, err
	}

	access, expires, err := issueAccessToken(user, stored.ID, p.opts.Secret, p.opts.AccessTTL, now)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:           stored.ID,
		User:         user,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    expires,
	}, nil
}

func (p *LocalProvider) emit(e Event) {
	e.At = p.now().UTC()
	p.events.emit(e)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
