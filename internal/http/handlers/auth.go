package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediarelay/internal/auth"
	"mediarelay/internal/middleware"
)

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FullName        string `json:"fullName"`
	RedirectTo      string `json:"redirectTo"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type recoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type profileRequest struct {
	FullName string         `json:"fullName"`
	Data     map[string]any `json:"data"`
}

func (a *App) AuthSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		a.authError(w, auth.ErrPasswordMismatch)
		return
	}
	res, err := a.Auth.SignUp(r.Context(), auth.SignUpRequest{
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		RedirectTo: req.RedirectTo,
	})
	if err != nil {
		a.authError(w, err)
		return
	}
	if res.Session != nil && res.Session.User != nil {
		a.Hub.Publish(res.Session.User.ID, auth.Event{Type: auth.EventSignedIn, Session: res.Session})
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":              true,
		"user":                 res.User,
		"session":              res.Session,
		"confirmationRequired": res.Session == nil,
	})
}

func (a *App) AuthSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !a.decode(w, r, &req) {
		return
	}
	session, err := a.Auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		a.authError(w, err)
		return
	}
	if session.User != nil {
		a.Hub.Publish(session.User.ID, auth.Event{Type: auth.EventSignedIn, Session: session})
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "session": session})
}

func (a *App) AuthRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decode(w, r, &req) {
		return
	}
	session, err := a.Auth.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		a.authError(w, err)
		return
	}
	if session.User != nil {
		a.Hub.Publish(session.User.ID, auth.Event{Type: auth.EventSignedIn, Session: session})
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "session": session})
}

func (a *App) AuthSignOut(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		a.authError(w, auth.ErrAccessTokenNeeded)
		return
	}
	userID := a.userIDFor(r, token)
	if err := a.Auth.SignOut(r.Context(), token); err != nil {
		a.authError(w, err)
		return
	}
	if userID != "" {
		a.Hub.Publish(userID, auth.Event{Type: auth.EventSignedOut})
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

func (a *App) AuthRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Auth.RecoverPassword(r.Context(), req.Email, req.RedirectTo); err != nil {
		a.authError(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	a.Hub.Publish(email, auth.Event{Type: auth.EventRecoveryRequested, Email: email})
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

func (a *App) AuthUpdatePassword(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		a.authError(w, auth.ErrAccessTokenNeeded)
		return
	}
	var req passwordRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		a.authError(w, auth.ErrPasswordMismatch)
		return
	}
	user, err := a.Auth.UpdatePassword(r.Context(), token, req.Password)
	if err != nil {
		a.authError(w, err)
		return
	}
	a.Hub.Publish(user.ID, auth.Event{Type: auth.EventUserUpdated, User: user})
	a.json(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (a *App) AuthUpdateProfile(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		a.authError(w, auth.ErrAccessTokenNeeded)
		return
	}
	var req profileRequest
	if !a.decode(w, r, &req) {
		return
	}
	meta := map[string]any{}
	for k, v := range req.Data {
		meta[k] = v
	}
	if name := strings.TrimSpace(req.FullName); name != "" {
		meta["full_name"] = name
	}
	user, err := a.Auth.UpdateProfile(r.Context(), token, meta)
	if err != nil {
		a.authError(w, err)
		return
	}
	a.Hub.Publish(user.ID, auth.Event{Type: auth.EventUserUpdated, User: user})
	a.json(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (a *App) AuthMe(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		a.authError(w, auth.ErrAccessTokenNeeded)
		return
	}
	user, err := a.Auth.GetUser(r.Context(), token)
	if err != nil {
		a.authError(w, err)
		return
	}
	sc, tracked := a.Hub.Lookup(user.ID)
	a.json(w, http.StatusOK, map[string]any{
		"user":     user,
		"fullName": user.FullName(),
		"signedIn": tracked && sc.SignedIn(),
	})
}

// AuthOAuth redirects the browser to the identity provider's authorize page.
// With ?format=json the URL is returned instead.
func (a *App) AuthOAuth(w http.ResponseWriter, r *http.Request) {
	target, err := a.Auth.OAuthURL(chi.URLParam(r, "provider"), r.URL.Query().Get("redirect_to"))
	if err != nil {
		a.authError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		a.json(w, http.StatusOK, map[string]string{"url": target})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// userIDFor prefers the verified identity and falls back to asking the
// identity provider who owns token.
func (a *App) userIDFor(r *http.Request, token string) string {
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		return id.UserID
	}
	user, err := a.Auth.GetUser(r.Context(), token)
	if err != nil {
		return ""
	}
	return user.ID
}

func (a *App) authError(w http.ResponseWriter, err error) {
	var apiErr *auth.APIError
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		a.error(w, http.StatusServiceUnavailable, "not_configured", "authentication is not configured")
	case errors.Is(err, auth.ErrAccessTokenNeeded):
		a.error(w, http.StatusUnauthorized, "unauthorized", "access token required")
	case auth.ValidationError(err):
		a.error(w, http.StatusBadRequest, "bad_request", strings.TrimPrefix(err.Error(), "auth: "))
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		code := apiErr.Code
		if code == "" {
			code = "auth_error"
		}
		a.error(w, status, code, apiErr.Message)
	default:
		a.Logger.Error().Err(err).Msg("identity provider call failed")
		a.error(w, http.StatusBadGateway, "upstream_error", "authentication request failed")
	}
}
