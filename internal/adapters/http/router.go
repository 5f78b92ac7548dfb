package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/watchstack/tautulli-exporter/internal/application"
)

// Handler is the HTTP adapter entrypoint.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service       *application.Service
	limiter       *application.RateLimiter
	readyCheck    func(ctx context.Context) error
	secureCookies bool
	now           func() time.Time
}

// Options carries the transport-level knobs.
type Options struct {
	// ReadyCheck reports readiness for /readyz, typically a database ping.
	ReadyCheck    func(ctx context.Context) error
	SecureCookies bool
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, limiter *application.RateLimiter, opts Options) *Handler {
	return &Handler{
		service:       service,
		limiter:       limiter,
		readyCheck:    opts.ReadyCheck,
		secureCookies: opts.SecureCookies,
		now:           time.Now,
	}
}

// NewRouter registers the HTTP routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		// The per-class counters run before session resolution, so requests
		// with missing or forged tokens still count against the caller and
		// never reach the session store unthrottled.
		r.With(handler.rateLimit(application.RouteClassLogin)).
			Post("/auth/login", handler.login)

		r.With(
			handler.rateLimit(application.RouteClassPassword),
			handler.authMiddleware,
			handler.csrfMiddleware,
		).Post("/auth/password", handler.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(handler.rateLimit(application.RouteClassGeneral))
			r.Use(handler.authMiddleware)

			// Logout stays outside the CSRF and forced-change gates so a
			// session can always be abandoned.
			r.Post("/auth/logout", handler.logout)

			r.Group(func(r chi.Router) {
				r.Use(handler.csrfMiddleware)
				r.Use(handler.requirePasswordChanged)

				r.Get("/export", handler.exportCSV)
				r.Get("/history", handler.historyPreview)
				r.Get("/users/external", handler.listExternalUsers)

				r.Route("/accounts", func(r chi.Router) {
					r.Post("/", handler.createAccount)
					r.Get("/", handler.listAccounts)
					r.Patch("/{account_id}", handler.updateAccount)
					r.Post("/{account_id}/deactivate", handler.deactivateAccount)
					r.Delete("/{account_id}", handler.deleteAccount)
					r.Get("/{account_id}/logins", handler.listLoginAttempts)
				})

				r.Get("/settings/tautulli", handler.getSettings)
				r.Put("/settings/tautulli", handler.saveSettings)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.readyCheck != nil {
		if err := h.readyCheck(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependency check failed")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}
