package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"rollcall.app/internal/auth"
)

const (
	refreshCookie     = "refresh_token"
	accessCookie      = "access_token"
	refreshCookiePath = "/v1/auth"
	maxRefreshCookie  = 7 * 24 * time.Hour
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (l loginRequest) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&l.Password, validation.Required, validation.Length(1, 1024)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Length(0, 8192)),
	)
}

type sessionResponse struct {
	User             auth.IdentityClaims `json:"user"`
	AccessToken      string              `json:"accessToken"`
	AccessExpiresAt  time.Time           `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time           `json:"refreshExpiresAt"`
	RefreshToken     string              `json:"refreshToken,omitempty"`
}

type verifyResponse struct {
	User      auth.IdentityClaims `json:"user"`
	Namespace string              `json:"namespace"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := auth.FromValidation(req.Validate()); err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}

	res, err := a.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}
	a.writeSession(w, http.StatusOK, res)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := a.refreshToken(w, r)
	if err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}
	if token == "" {
		respondMissingToken(w)
		return
	}
	res, err := a.service.Refresh(r.Context(), token)
	if err != nil {
		if isSessionError(err) {
			a.clearSessionCookies(w)
		}
		respondServiceError(w, r, a.logger, err)
		return
	}
	a.writeSession(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := a.refreshToken(w, r)
	if err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}
	if token != "" {
		// An unusable token already has no live session behind it.
		if err := a.service.Logout(r.Context(), token); err != nil && !isSessionError(err) {
			respondServiceError(w, r, a.logger, err)
			return
		}
	}
	a.clearSessionCookies(w)
	respondOK(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := accessToken(r)
	if token == "" {
		respondMissingToken(w)
		return
	}
	identity, namespace, err := a.service.Authenticate(token)
	if err != nil {
		respondServiceError(w, r, a.logger, err)
		return
	}
	respondOK(w, http.StatusOK, verifyResponse{User: identity, Namespace: namespace})
}

// refreshToken reads the refresh token from its cookie, falling back to a
// JSON body for non-browser clients. An empty body is not an error.
func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(refreshCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if r.ContentLength == 0 {
		return "", nil
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", bodyError(err)
	}
	if err := auth.FromValidation(req.Validate()); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.RefreshToken), nil
}

func (a *API) writeSession(w http.ResponseWriter, status int, res auth.LoginResult) {
	now := a.now()
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    res.Tokens.RefreshToken,
		Path:     refreshCookiePath,
		MaxAge:   cookieMaxAge(res.Tokens.RefreshExpiresAt.Sub(now), maxRefreshCookie),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    res.Tokens.AccessToken,
		Path:     "/",
		MaxAge:   cookieMaxAge(res.Tokens.AccessExpiresAt.Sub(now), maxRefreshCookie),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	body := sessionResponse{
		User:             res.Identity,
		AccessToken:      res.Tokens.AccessToken,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	}
	if a.cfg.RefreshInBody {
		body.RefreshToken = res.Tokens.RefreshToken
	}
	respondOK(w, status, body)
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{{refreshCookie, refreshCookiePath}, {accessCookie, "/"}} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.cfg.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func cookieMaxAge(ttl, limit time.Duration) int {
	if ttl > limit {
		ttl = limit
	}
	secs := int(ttl / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func isSessionError(err error) bool {
	var tokenErr *auth.TokenError
	return errors.As(err, &tokenErr) || errors.Is(err, auth.ErrRevoked)
}

func respondMissingToken(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required",
		map[string]any{"reason": "missing_token"})
}
