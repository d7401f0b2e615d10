package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/bugtracker-backend/internal/handlers"
	"github.com/AnshRaj112/bugtracker-backend/internal/metrics"
	"github.com/AnshRaj112/bugtracker-backend/internal/middleware"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
)

// Deps is everything the router needs. Security and RateLimiter are optional.
type Deps struct {
	Sessions *services.SessionService
	Users    *services.UserService
	Settings *services.SettingsService
	Events   handlers.SessionSubscriber
	Cookies  handlers.CookiePolicy

	AllowedOrigins []string
	TrustProxy     bool
	Security       *middleware.Security
	RateLimiter    *middleware.RedisRateLimiter

	Health map[string]handlers.Pinger
	Logger zerolog.Logger
}

// NewRouter wires the middleware stack and every route. /health and /metrics
// sit outside CORS and rate limiting.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)

	health := handlers.NewHealthHandler(d.Health)
	r.Get("/health", health.Live)
	r.Get("/health/ready", health.Ready)
	r.Handle("/metrics", metrics.Handler())

	auth := handlers.NewAuthHandler(d.Sessions, d.Cookies)
	users := handlers.NewUserHandler(d.Users)
	settings := handlers.NewSettingsHandler(d.Settings)
	stream := handlers.NewSessionStreamHandler(d.Events, d.AllowedOrigins)

	requireAuth := middleware.RequireAuth(d.Sessions)
	optionalAuth := middleware.OptionalAuth(d.Sessions)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(d.AllowedOrigins))
		if d.Security != nil {
			for _, mw := range d.Security.Chain() {
				r.Use(mw)
			}
		}
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", auth.Register)
				r.Post("/login", auth.Login)
				r.Post("/refresh", auth.Refresh)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/logout", auth.Logout)
					r.Get("/me", auth.Me)
					r.Put("/me", auth.UpdateMe)
					r.Put("/change-password", auth.ChangePassword)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requireAuth, adminOnly)
				r.Get("/", users.List)
				r.Post("/", users.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", users.Get)
					r.Put("/", users.Update)
					r.Delete("/", users.Delete)
					r.Patch("/toggle-status", users.ToggleStatus)
					r.Get("/auth-events", users.AuthEvents)
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.With(optionalAuth).Get("/", settings.List)
				r.With(optionalAuth).Get("/{key}", settings.Get)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth, adminOnly)
					r.Post("/", settings.Create)
					r.Put("/", settings.BulkUpdate)
					r.Put("/{key}", settings.Update)
					r.Delete("/{key}", settings.Delete)
				})
			})

			r.With(middleware.QueryToken, requireAuth).Get("/ws/session", stream.Stream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Fail(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
