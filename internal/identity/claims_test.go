package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func TestIssueAndParseAccessToken(t *testing.T) {
	now := time.Now()
	user := User{ID: "usr-001", Email: "ada@example.com"}

	token, expires, err := issueAccessToken(user, "ses-1", testSecret, 15*time.Minute, now)
	if err != nil {
		t.Fatalf("issueAccessToken() error = %v", err)
	}
	if !expires.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expires = %v, want %v", expires, now.Add(15*time.Minute))
	}

	claims, err := parseAccessToken(token, testSecret, now)
	if err != nil {
		t.Fatalf("parseAccessToken() error = %v", err)
	}
	if claims.Subject != "usr-001" || claims.SessionID != "ses-1" || claims.Email != "ada@example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
}

func TestParseAccessToken_Rejects(t *testing.T) {
	now := time.Now()
	user := User{ID: "usr-001"}
	valid, _, _ := issueAccessToken(user, "ses-1", testSecret, time.Minute, now)

	noSession, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString([]byte(testSecret))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001"},
		SessionID:        "ses-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		secret  string
		at      time.Time
		wantErr error
	}{
		{"wrong secret", valid, "another-secret-that-is-long-enough!!", now, ErrTokenInvalid},
		{"expired", valid, testSecret, now.Add(2 * time.Minute), ErrTokenExpired},
		{"garbage", "not-a-jwt", testSecret, now, ErrTokenInvalid},
		{"missing session", noSession, testSecret, now, ErrTokenInvalid},
		{"none algorithm", noneAlg, testSecret, now, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAccessToken(tt.token, tt.secret, tt.at)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseExpiredAccessToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	token, _, err := issueAccessToken(User{ID: "usr-001"}, "ses-1", testSecret, time.Minute, past)
	if err != nil {
		t.Fatalf("issueAccessToken() error = %v", err)
	}

	claims, err := parseExpiredAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("parseExpiredAccessToken() error = %v", err)
	}
	if claims.SessionID != "ses-1" {
		t.Errorf("SessionID = %q, want ses-1", claims.SessionID)
	}

	if _, err := parseExpiredAccessToken(token, "wrong-secret-wrong-secret-wrong-secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong secret error = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshTokenAndHash(t *testing.T) {
	a, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken() error = %v", err)
	}
	b, _ := newRefreshToken()

	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("refresh tokens should be unique")
	}
	if hashToken(a) == a || hashToken(a) != hashToken(a) {
		t.Error("hashToken should be deterministic and differ from input")
	}
}
