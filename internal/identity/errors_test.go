package identity

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{
			name: "invalid credentials",
			err:  newAuthError(KindInvalidCredentials, "whatever the provider said", ErrInvalidCredentials),
			want: "Invalid email or password. Please try again.",
		},
		{
			name: "email not confirmed",
			err:  newAuthError(KindEmailNotConfirmed, "", ErrEmailNotConfirmed),
			want: "Please confirm your email before signing in.",
		},
		{
			name: "wrapped invalid credentials",
			err:  fmt.Errorf("sign in: %w", newAuthError(KindInvalidCredentials, "", ErrInvalidCredentials)),
			want: MessageInvalidCredentials,
		},
		{
			name: "provider message passes through",
			err:  newAuthError(KindValidation, "An account with this email already exists.", ErrEmailTaken),
			want: "An account with this email already exists.",
		},
		{
			name: "provider error without message",
			err:  newAuthError(KindProvider, "", errors.New("database is locked")),
			want: "database is locked",
		},
		{
			name: "plain error",
			err:  errors.New("network down"),
			want: "network down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthError_UnwrapAndKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", newAuthError(KindEmailNotConfirmed, "", ErrEmailNotConfirmed))

	if !errors.Is(err, ErrEmailNotConfirmed) {
		t.Error("errors.Is should reach the sentinel")
	}
	if KindOf(err) != KindEmailNotConfirmed {
		t.Errorf("KindOf() = %q", KindOf(err))
	}
	if KindOf(errors.New("x")) != KindProvider {
		t.Error("non-AuthError should be KindProvider")
	}
}
