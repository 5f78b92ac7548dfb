package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/application"
	"github.com/watchstack/tautulli-exporter/internal/domain"
)

type createAccountRequest struct {
	Username             string   `json:"username"`
	Password             string   `json:"password"`
	Role                 string   `json:"role"`
	AllowedExternalUsers []string `json:"allowed_external_users"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_account", err)
		return
	}

	view, err := h.service.CreateAccount(r.Context(), auth.Account, application.CreateAccountInput{
		Username:             req.Username,
		Password:             req.Password,
		Role:                 req.Role,
		AllowedExternalUsers: req.AllowedExternalUsers,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "create_account", err)
		return
	}
	writeSuccess(w, http.StatusCreated, view)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	views, err := h.service.ListAccounts(r.Context(), auth.Account)
	if err != nil {
		writeMappedError(r.Context(), w, "list_accounts", err)
		return
	}
	writeSuccess(w, http.StatusOK, views)
}

type updateAccountRequest struct {
	Role                 *string   `json:"role"`
	IsActive             *bool     `json:"is_active"`
	AllowedExternalUsers *[]string `json:"allowed_external_users"`
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	accountID, err := accountIDParam(r)
	if err != nil {
		writeMappedError(r.Context(), w, "update_account", err)
		return
	}
	var req updateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_account", err)
		return
	}

	view, err := h.service.UpdateAccount(r.Context(), auth.Account, accountID, application.UpdateAccountInput{
		Role:                 req.Role,
		IsActive:             req.IsActive,
		AllowedExternalUsers: req.AllowedExternalUsers,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "update_account", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	accountID, err := accountIDParam(r)
	if err != nil {
		writeMappedError(r.Context(), w, "deactivate_account", err)
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), auth.Account, accountID); err != nil {
		writeMappedError(r.Context(), w, "deactivate_account", err)
		return
	}
	writeMessage(w, http.StatusOK, "account deactivated")
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	accountID, err := accountIDParam(r)
	if err != nil {
		writeMappedError(r.Context(), w, "delete_account", err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), auth.Account, accountID); err != nil {
		writeMappedError(r.Context(), w, "delete_account", err)
		return
	}
	writeMessage(w, http.StatusOK, "account deleted")
}

// listLoginAttempts serves the authentication audit trail of one account.
func (h *Handler) listLoginAttempts(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	accountID, err := accountIDParam(r)
	if err != nil {
		writeMappedError(r.Context(), w, "list_login_attempts", err)
		return
	}
	q := r.URL.Query()
	limit, err := parseIntParam("limit", q.Get("limit"), 0)
	if err != nil {
		writeMappedError(r.Context(), w, "list_login_attempts", err)
		return
	}
	offset, err := parseIntParam("offset", q.Get("offset"), 0)
	if err != nil {
		writeMappedError(r.Context(), w, "list_login_attempts", err)
		return
	}

	views, err := h.service.ListLoginAttempts(r.Context(), auth.Account, accountID, limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_login_attempts", err)
		return
	}
	writeSuccess(w, http.StatusOK, views)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	settings, err := h.service.TautulliSettings(r.Context(), auth.Account)
	if err != nil {
		writeMappedError(r.Context(), w, "get_settings", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"base_url":   settings.BaseURL,
		"api_key":    settings.APIKey,
		"updated_at": settings.UpdatedAt,
	})
}

type saveSettingsRequest struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	var req saveSettingsRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "save_settings", err)
		return
	}
	err := h.service.SaveTautulliSettings(r.Context(), auth.Account, domain.ConnectionSettings{
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "save_settings", err)
		return
	}
	writeMessage(w, http.StatusOK, "settings saved")
}

func accountIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "account_id")
	accountID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return accountID, nil
}
