package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// storedSession is a row in the sessions table.
type storedSession struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// repository persists users and sessions in SQLite.
type repository struct {
	db *sql.DB
}

const userColumns = "id, email, password_hash, email_confirmed_at, created_at"

func (r *repository) createUser(ctx context.Context, u *User, passwordHash string, now time.Time) error {
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}
	u.CreatedAt = now.UTC().Truncate(time.Second)
	ts := formatTime(now)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, email_confirmed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, passwordHash, nullTime(u.EmailConfirmedAt), ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// userByEmail returns the user and its password hash.
func (r *repository) userByEmail(ctx context.Context, email string) (*User, string, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

func (r *repository) userByID(ctx context.Context, id string) (*User, error) {
	u, _, err := r.scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	return u, err
}

func (r *repository) scanUser(row *sql.Row) (*User, string, error) {
	var u User
	var hash, createdAt string
	var confirmedAt sql.NullString

	if err := row.Scan(&u.ID, &u.Email, &hash, &confirmedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("getting user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	if confirmedAt.Valid {
		t := parseTime(confirmedAt.String)
		u.EmailConfirmedAt = &t
	}
	return &u, hash, nil
}

func (r *repository) confirmEmail(ctx context.Context, email string, now time.Time) error {
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET email_confirmed_at = COALESCE(email_confirmed_at, ?), updated_at = ? WHERE email = ?",
		ts, ts, email)
	if err != nil {
		return fmt.Errorf("confirming email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) createSession(ctx context.Context, s *storedSession, now time.Time) error {
	if s.ID == "" {
		s.ID = "ses-" + uuid.NewString()[:16]
	}
	s.CreatedAt = now.UTC().Truncate(time.Second)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		s.ID, s.UserID, s.RefreshTokenHash, formatTime(s.ExpiresAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

const sessionColumns = "id, user_id, refresh_token_hash, expires_at, revoked, created_at"

func (r *repository) sessionByID(ctx context.Context, id string) (*storedSession, error) {
	return scanSession(r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
}

func (r *repository) sessionByRefreshHash(ctx context.Context, hash string) (*storedSession, error) {
	return scanSession(r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE refresh_token_hash = ?", hash))
}

func scanSession(row *sql.Row) (*storedSession, error) {
	var s storedSession
	var expiresAt, createdAt string
	var revoked int

	if err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &expiresAt, &revoked, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}
	s.ExpiresAt = parseTime(expiresAt)
	s.CreatedAt = parseTime(createdAt)
	s.Revoked = revoked != 0
	return &s, nil
}

// rotateRefresh swaps the refresh token hash on a live session. It fails with
// ErrNoSession when the old hash no longer matches, so a token can be spent once.
func (r *repository) rotateRefresh(ctx context.Context, id, oldHash, newHash string, expires, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_hash = ?, expires_at = ?, refreshed_at = ?
		 WHERE id = ? AND refresh_token_hash = ? AND revoked = 0`,
		newHash, formatTime(expires), formatTime(now), id, oldHash)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ErrNoSession
	}
	return nil
}

func (r *repository) revokeSession(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE sessions SET revoked = 1 WHERE id = ? AND revoked = 0", id)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports rows affected
	return n > 0, nil
}

func (r *repository) deleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at < ? OR revoked = 1", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // written by formatTime
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// isUniqueViolation checks for a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
