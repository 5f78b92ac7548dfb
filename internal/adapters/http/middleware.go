package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/application"
	"github.com/watchstack/tautulli-exporter/internal/domain"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAuth      ctxKey = "auth"
	ctxKeyRawToken  ctxKey = "raw_token"
)

const (
	sessionCookieName = "session_token"
	csrfHeaderName    = "X-CSRF-Token"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

// rateLimit counts the request against the class window before the handler
// runs. The limited response carries Retry-After in whole seconds.
func (h *Handler) rateLimit(class application.RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h.limiter.Allow(r.Context(), readIP(r), class); err != nil {
				var limited *application.RateLimitedError
				if errors.As(err, &limited) {
					seconds := int(limited.RetryAfter.Round(time.Second).Seconds())
					if seconds < 1 {
						seconds = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(seconds))
				}
				writeMappedError(r.Context(), w, "rate_limit", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware resolves the session cookie (or a bearer token for
// non-browser clients) into the request context.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := rawTokenFromRequest(r)
		if raw == "" {
			writeMappedError(r.Context(), w, "authenticate", domain.ErrUnauthorized)
			return
		}
		auth, err := h.service.Resolve(r.Context(), raw)
		if err != nil {
			writeMappedError(r.Context(), w, "authenticate", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAuth, auth)
		ctx = context.WithValue(ctx, ctxKeyRawToken, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// csrfMiddleware rejects mutating cookie-authenticated requests whose CSRF
// header does not match the session. Bearer-token clients are exempt; a
// cross-site page cannot set the Authorization header.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if _, err := r.Cookie(sessionCookieName); err == nil {
				auth, ok := authFromContext(r.Context())
				header := r.Header.Get(csrfHeaderName)
				if !ok || subtle.ConstantTimeCompare([]byte(header), []byte(auth.Session.CSRFToken)) != 1 {
					logHTTPOperationError(r.Context(), "csrf_check", http.StatusForbidden, "CSRF_MISMATCH", "missing or invalid csrf token", nil)
					writeError(w, http.StatusForbidden, "CSRF_MISMATCH", "missing or invalid csrf token")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requirePasswordChanged blocks every capability until a forced password
// change has been completed. Password change and logout stay reachable.
func (h *Handler) requirePasswordChanged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := authFromContext(r.Context())
		if !ok {
			writeMappedError(r.Context(), w, "authenticate", domain.ErrUnauthorized)
			return
		}
		if auth.Account.MustChangePassword {
			writeMappedError(r.Context(), w, "password_gate", domain.ErrPasswordChangeRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func authFromContext(ctx context.Context) (application.Auth, bool) {
	auth, ok := ctx.Value(ctxKeyAuth).(application.Auth)
	return auth, ok
}

func rawTokenFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRawToken).(string); ok {
		return s
	}
	return ""
}

func rawTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrExportLimit):
		return http.StatusBadRequest, "EXPORT_LIMIT", err.Error()
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusBadRequest, "NOT_CONFIGURED", "tautulli connection is not configured"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrPasswordChangeRequired):
		return http.StatusForbidden, "PASSWORD_CHANGE_REQUIRED", "password change required before continuing"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "insufficient permissions"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrDuplicateUsername):
		return http.StatusConflict, "DUPLICATE_USERNAME", "username already exists"
	case errors.Is(err, domain.ErrLastAdmin):
		return http.StatusConflict, "LAST_ADMIN", err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	case errors.Is(err, domain.ErrExportUpstream), errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "history service unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
