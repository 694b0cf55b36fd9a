package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mediarelay/internal/auth"
)

// DefaultAudience is the aud claim Supabase puts on signed-in user tokens.
const DefaultAudience = "authenticated"

var (
	errNotConfigured  = errors.New("token verification is not configured")
	errMissingSubject = errors.New("token has no subject")
)

// TokenClaims is the subset of a Supabase access token the relay reads.
type TokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SupabaseJWKSURL returns the key set endpoint of a Supabase project.
func SupabaseJWKSURL(projectURL string) string {
	return SupabaseIssuer(projectURL) + "/.well-known/jwks.json"
}

// SupabaseIssuer returns the iss claim of tokens minted by a project.
func SupabaseIssuer(projectURL string) string {
	return strings.TrimRight(projectURL, "/") + "/auth/v1"
}

// SignJWT issues an HS256 token. Tests and local tooling use it to mint
// tokens that AuthJWT accepts.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verifier accepts tokens signed with the project's shared secret (HS256)
// or with one of its published asymmetric keys (RS256, ES256). Every token
// must carry exp, sub and the expected aud; iss is checked when Issuer is set.
type Verifier struct {
	Secret   string
	Keys     keyfunc.Keyfunc
	Issuer   string
	Audience string
	Now      func() time.Time
}

type VerifierOptions struct {
	ProjectURL string
	Secret     string
	Client     *http.Client
	Logger     zerolog.Logger

	// RefreshUnknownKID bounds key set refetches triggered by tokens naming
	// an unknown kid. nil allows one every five minutes.
	RefreshUnknownKID *rate.Limiter
}

// NewVerifier builds a Verifier for a Supabase project. With a project URL
// the published key set is fetched and refreshed in the background until
// ctx is done. The returned Verifier is usable even when err is non-nil.
func NewVerifier(ctx context.Context, opts VerifierOptions) (*Verifier, error) {
	v := &Verifier{Secret: opts.Secret, Audience: DefaultAudience}
	if opts.ProjectURL == "" {
		return v, nil
	}
	v.Issuer = SupabaseIssuer(opts.ProjectURL)

	logger := opts.Logger
	keys, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{SupabaseJWKSURL(opts.ProjectURL)}, keyfunc.Override{
		Client:            opts.Client,
		RateLimitWaitMax:  time.Second,
		RefreshUnknownKID: opts.RefreshUnknownKID,
		RefreshErrorHandlerFunc: func(u string) func(context.Context, error) {
			return func(_ context.Context, err error) {
				logger.Warn().Err(err).Str("url", u).Msg("signing key refresh failed")
			}
		},
	})
	if err != nil {
		return v, fmt.Errorf("signing key set: %w", err)
	}
	v.Keys = keys
	return v, nil
}

// Configured reports whether any verification method is available.
func (v *Verifier) Configured() bool {
	return v != nil && (v.Secret != "" || v.Keys != nil)
}

func (v *Verifier) Verify(ctx context.Context, token string) (*TokenClaims, error) {
	var methods []string
	if v.Secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if v.Keys != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg())
	}
	if len(methods) == 0 {
		return nil, errNotConfigured
	}

	audience := v.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Now))
	}

	claims := &TokenClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, v.keyfunc(ctx), opts...); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

func (v *Verifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
			return []byte(v.Secret), nil
		}
		return v.Keys.KeyfuncCtx(ctx)(t)
	}
}

// AuthJWT verifies Supabase access tokens and injects an auth.Identity.
// With required=false requests without a token pass through anonymously,
// but a token that is present must still be valid.
func AuthJWT(verifier *Verifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				if required {
					writeUnauthorized(w, "missing authorization")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !verifier.Configured() {
				writeUnauthorized(w, errNotConfigured.Error())
				return
			}
			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				UserID: claims.Subject,
				Email:  claims.Email,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "unauthorized"})
}
