package http

import (
	"net/http"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/application"
	"github.com/watchstack/tautulli-exporter/internal/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), application.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: readIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}

	h.setSessionCookie(w, res.Token, res.ExpiresAt)
	writeSuccess(w, http.StatusOK, map[string]any{
		"csrf_token":           res.CSRFToken,
		"expires_at":           res.ExpiresAt,
		"account":              res.Account,
		"must_change_password": res.MustChangePassword,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), rawTokenFromContext(r.Context())); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	h.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	auth, ok := authFromContext(r.Context())
	if !ok {
		writeMappedError(r.Context(), w, "change_password", domain.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}

	res, err := h.service.ChangePassword(r.Context(), auth, application.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}

	h.setSessionCookie(w, res.Token, auth.Session.ExpiresAt)
	writeSuccess(w, http.StatusOK, map[string]any{
		"csrf_token": res.CSRFToken,
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, raw string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    raw,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
