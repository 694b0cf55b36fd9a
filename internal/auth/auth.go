package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
)

const MinPasswordLength = 6

var (
	ErrEmailRequired     = errors.New("auth: email is required")
	ErrEmailInvalid      = errors.New("auth: email is invalid")
	ErrPasswordRequired  = errors.New("auth: password is required")
	ErrPasswordTooShort  = errors.New("auth: password must be at least 6 characters")
	ErrPasswordMismatch  = errors.New("auth: passwords do not match")
	ErrNotConfigured     = errors.New("auth: identity provider is not configured")
	ErrUnsupportedOAuth  = errors.New("auth: unsupported oauth provider")
	ErrAccessTokenNeeded = errors.New("auth: access token is required")
)

// User is the identity provider's view of an account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
}

// FullName returns the display name stored in the user metadata.
func (u *User) FullName() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	if v, ok := u.UserMetadata["full_name"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Session is an authenticated session issued by the identity provider.
type Session struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// WithoutTokens returns a copy safe to keep in server memory or logs.
func (s *Session) WithoutTokens() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.AccessToken = ""
	cp.RefreshToken = ""
	return &cp
}

// Identity is the verified caller attached to a request.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// ValidateCredentials applies the sign-up and sign-in form rules.
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrEmailInvalid
	}
	return ValidatePassword(password)
}

// ValidatePassword checks the minimum password rules.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidationError reports whether err is a caller input problem.
func ValidationError(err error) bool {
	for _, target := range []error{
		ErrEmailRequired, ErrEmailInvalid, ErrPasswordRequired, ErrPasswordTooShort,
		ErrPasswordMismatch, ErrUnsupportedOAuth, ErrAccessTokenNeeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
