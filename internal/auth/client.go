package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediarelay/internal/infra"
)

var oauthProviders = map[string]struct{}{
	"google": {},
	"apple":  {},
}

// Options configures the identity provider client.
type Options struct {
	BaseURL        string
	AnonKey        string
	RedirectURL    string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the hosted identity provider's REST API (Supabase GoTrue).
type Client struct {
	baseURL     string
	anonKey     string
	redirectURL string
	httpClient  *http.Client
	logger      *infra.Logger
}

// APIError is an error answer from the identity provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SignUpRequest creates a new account.
type SignUpRequest struct {
	Email      string
	Password   string
	FullName   string
	RedirectTo string
}

// SignUpResult holds the created user. Session is nil when the provider
// requires email confirmation first.
type SignUpResult struct {
	User    *User
	Session *Session
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		anonKey:     strings.TrimSpace(opts.AnonKey),
		redirectURL: strings.TrimSpace(opts.RedirectURL),
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Configured reports whether the client has a project URL and key.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.anonKey != ""
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	if err := ValidateCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"email":    strings.TrimSpace(req.Email),
		"password": req.Password,
	}
	if name := strings.TrimSpace(req.FullName); name != "" {
		payload["data"] = map[string]any{"full_name": name}
	}
	query := url.Values{}
	if redirect := c.redirect(req.RedirectTo); redirect != "" {
		query.Set("redirect_to", redirect)
	}
	raw, err := c.call(ctx, http.MethodPost, "/signup", query, "", payload)
	if err != nil {
		return nil, err
	}
	// Auto-confirmed projects answer with a session, others with the user.
	var session Session
	if err := json.Unmarshal(raw, &session); err == nil && session.AccessToken != "" {
		return &SignUpResult{User: session.User, Session: &session}, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("auth: decode signup: %w", err)
	}
	return &SignUpResult{User: &user}, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	payload := map[string]any{"email": strings.TrimSpace(email), "password": password}
	return c.token(ctx, "password", payload)
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrAccessTokenNeeded
	}
	return c.token(ctx, "refresh_token", map[string]any{"refresh_token": strings.TrimSpace(refreshToken)})
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return ErrAccessTokenNeeded
	}
	_, err := c.call(ctx, http.MethodPost, "/logout", nil, accessToken, nil)
	return err
}

func (c *Client) RecoverPassword(ctx context.Context, email, redirectTo string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	query := url.Values{}
	if redirect := c.redirect(redirectTo); redirect != "" {
		query.Set("redirect_to", redirect)
	}
	_, err := c.call(ctx, http.MethodPost, "/recover", query, "", map[string]any{"email": email})
	return err
}

func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	return c.updateUser(ctx, accessToken, map[string]any{"password": password})
}

// UpdateProfile merges metadata into the user's profile data.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, metadata map[string]any) (*User, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return c.updateUser(ctx, accessToken, map[string]any{"data": metadata})
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrAccessTokenNeeded
	}
	raw, err := c.call(ctx, http.MethodGet, "/user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("auth: decode user: %w", err)
	}
	return &user, nil
}

// OAuthURL returns the provider authorize URL the browser should open.
func (c *Client) OAuthURL(provider, redirectTo string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if _, ok := oauthProviders[provider]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOAuth, provider)
	}
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	query := url.Values{}
	query.Set("provider", provider)
	if redirect := c.redirect(redirectTo); redirect != "" {
		query.Set("redirect_to", redirect)
	}
	return c.baseURL + "/auth/v1/authorize?" + query.Encode(), nil
}

func (c *Client) updateUser(ctx context.Context, accessToken string, payload map[string]any) (*User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrAccessTokenNeeded
	}
	raw, err := c.call(ctx, http.MethodPut, "/user", nil, accessToken, payload)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("auth: decode user: %w", err)
	}
	return &user, nil
}

func (c *Client) token(ctx context.Context, grantType string, payload map[string]any) (*Session, error) {
	query := url.Values{}
	query.Set("grant_type", grantType)
	raw, err := c.call(ctx, http.MethodPost, "/token", query, "", payload)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("auth: decode session: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("auth: %s grant returned no access token", grantType)
	}
	return &session, nil
}

func (c *Client) redirect(override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return c.redirectURL
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, accessToken string, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	endpoint := c.baseURL + "/auth/v1" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("auth: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(accessToken))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, raw)
		c.logger.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Msg("auth: identity provider rejected request")
		return nil, apiErr
	}
	return raw, nil
}

func decodeError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			apiErr.Message = text
		}
		return apiErr
	}
	if msg := firstNonEmpty(detail.ErrorDescription, detail.Msg, detail.Message, detail.Error); msg != "" {
		apiErr.Message = msg
	}
	code := detail.ErrorCode
	if code == "" {
		if s, ok := detail.Code.(string); ok {
			code = s
		}
	}
	if code == "" {
		code = detail.Error
	}
	apiErr.Code = code
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
