package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/transport"
	"github.com/frahmantamala/pentest-portal/pkg/logger"
)

type ServiceAPI interface {
	LocalLogin(ctx context.Context, dto LoginDTO) (*LoginResult, error)
	BeginLogin(ctx context.Context) (string, error)
	CompleteLogin(ctx context.Context, state, code string) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (*internal.Principal, error)
	Logout(ctx context.Context, token string) error
}

// CookieConfig controls the session cookie and post-login redirects.
type CookieConfig struct {
	Name          string
	Secure        bool
	PostLoginURL  string
	PostLogoutURL string
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Cookie  CookieConfig
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = "portal_session"
	}
	if cookie.PostLoginURL == "" {
		cookie.PostLoginURL = "/"
	}
	if cookie.PostLogoutURL == "" {
		cookie.PostLogoutURL = "/"
	}
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
		Cookie:      cookie,
	}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	result, err := h.Service.LocalLogin(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	h.WriteJSON(w, http.StatusOK, result)
}

// BeginOIDC handles GET /api/login.
func (h *Handler) BeginOIDC(w http.ResponseWriter, r *http.Request) {
	url, err := h.Service.BeginLogin(r.Context())
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback handles GET /api/callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		h.Logger.Warn("identity provider returned an error", "error", errParam, "description", q.Get("error_description"))
		h.HandleServiceError(w, r, internal.ErrUnauthenticated)
		return
	}

	result, err := h.Service.CompleteLogin(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	http.Redirect(w, r, h.Cookie.PostLoginURL, http.StatusFound)
}

// Logout handles GET /api/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.token(r); token != "" {
		if err := h.Service.Logout(r.Context(), token); err != nil {
			h.HandleServiceError(w, r, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.Cookie.PostLogoutURL, http.StatusFound)
}

// Middleware authenticates every request behind it and stores the caller in
// the context. Requests without a valid session get 401.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.token(r)
		if token == "" {
			h.HandleServiceError(w, r, internal.ErrUnauthenticated)
			return
		}

		p, err := h.Service.Authenticate(r.Context(), token)
		if err != nil {
			h.HandleServiceError(w, r, err)
			return
		}

		ctx := internal.ContextWithPrincipal(r.Context(), p)
		ctx = logger.WithPrincipal(ctx, p.UserID, string(p.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin guards admin-only route groups. It must run after Middleware.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.Principal(w, r)
		if !ok {
			return
		}
		if !p.IsAdmin() {
			h.HandleServiceError(w, r, internal.ErrAccessDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) token(r *http.Request) string {
	if token := h.ExtractTokenFromHeader(r); token != "" {
		return token
	}
	if c, err := r.Cookie(h.Cookie.Name); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
