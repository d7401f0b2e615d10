package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
)

// AccessTokenCookie is the cookie the browser client carries the access token in.
const AccessTokenCookie = "token"

// Authenticator resolves an access token to the user it belongs to.
// *services.SessionService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type contextKey string

const userKey contextKey = "user"

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// CurrentUser returns the user attached by RequireAuth or OptionalAuth.
func CurrentUser(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

// ExtractToken reads the access token from the Authorization header and falls
// back to the token cookie.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if t := strings.TrimSpace(parts[1]); t != "" {
				return t
			}
		}
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func withUserLogger(ctx context.Context, u *models.User) context.Context {
	l := zerolog.Ctx(ctx).With().Str("user_id", u.ID.Hex()).Logger()
	return l.WithContext(WithUser(ctx, u))
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				respond.Error(w, r, apperrors.Unauthorized("Authentication required. Please log in."))
				return
			}
			user, err := a.Authenticate(r.Context(), token)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserLogger(r.Context(), user)))
		})
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func OptionalAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := a.Authenticate(r.Context(), token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("optional auth ignored token")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserLogger(r.Context(), user)))
		})
	}
}

// RequireRoles must run after RequireAuth.
func RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	required := strings.Join(names, " or ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				respond.Error(w, r, apperrors.Unauthorized("Authentication required."))
				return
			}
			if !user.Role.In(roles) {
				respond.Error(w, r, apperrors.Forbidden(
					fmt.Sprintf("Access denied. Required role: %s. Your role: %s", required, user.Role)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// QueryToken lets browser WebSocket clients, which cannot set headers, pass
// the access token as ?token=. It only applies when no header or cookie token
// is present and must run before RequireAuth.
func QueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ExtractToken(r) == "" {
			if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+t)
			}
		}
		next.ServeHTTP(w, r)
	})
}
