package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"qbank/internal/app/apiresp"
)

type contextKey string

const userContextKey contextKey = "auth_user"

const tokenCookieName = "qbank_token"

// DevUser is injected on every request when authentication is disabled.
var DevUser = User{ID: 1, Username: "dev", FullName: "Development User", Role: RoleAdmin}

type Handler struct {
	svc      authenticator
	disabled bool
	guard    *failureGuard
}

type authenticator interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}

type HandlerConfig struct {
	Disabled bool
	// MaxFailures rejected tokens per client within FailureWindow before the
	// client gets 429 instead of a token check.
	MaxFailures   int
	FailureWindow time.Duration
}

func NewHandler(svc *Service, cfg HandlerConfig) *Handler {
	return &Handler{
		svc:      svc,
		disabled: cfg.Disabled,
		guard:    newFailureGuard(cfg.MaxFailures, cfg.FailureWindow),
	}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, user)
}

func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.disabled {
			u := DevUser
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), &u)))
			return
		}

		client := clientKey(r)
		if h.guard.blocked(client) {
			apiresp.WriteError(w, r, http.StatusTooManyRequests, ErrRateLimited.Error())
			return
		}

		token := readToken(r)
		user, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			if token != "" && errors.Is(err, ErrUnauthorized) {
				h.guard.fail(client)
			}
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.guard.reset(client)
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, exists := allowed[user.Role]; !exists {
				apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CurrentUser(ctx context.Context) (*User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// ContextWithUser injects an authenticated user into context.
// Useful for tests and internal handlers.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func readToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
		return ""
	}
	c, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// clientKey is the remote host; RealIP has already rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
