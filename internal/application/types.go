package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

// Auth identifies the authenticated caller of a request. The middleware
// builds it once per request from the session cookie.
type Auth struct {
	Account domain.Account
	Session domain.Session
}

type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult hands the raw session token to the transport exactly once.
type LoginResult struct {
	Token              string
	CSRFToken          string
	ExpiresAt          time.Time
	Account            AccountView
	MustChangePassword bool
}

type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// ChangePasswordResult carries the rotated credentials for the surviving
// session.
type ChangePasswordResult struct {
	Token     string
	CSRFToken string
}

// AccountView is the externally visible account shape. It never carries the
// password hash.
type AccountView struct {
	AccountID            uuid.UUID `json:"account_id"`
	Username             string    `json:"username"`
	Role                 string    `json:"role"`
	IsActive             bool      `json:"is_active"`
	MustChangePassword   bool      `json:"must_change_password"`
	AllowedExternalUsers []string  `json:"allowed_external_users"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func accountView(a domain.Account) AccountView {
	allowed := a.AllowedExternalUsers
	if allowed == nil {
		allowed = []string{}
	}
	return AccountView{
		AccountID:            a.AccountID,
		Username:             a.Username,
		Role:                 string(a.Role),
		IsActive:             a.IsActive,
		MustChangePassword:   a.MustChangePassword,
		AllowedExternalUsers: allowed,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

type CreateAccountInput struct {
	Username             string
	Password             string
	Role                 string
	AllowedExternalUsers []string
}

// UpdateAccountInput mirrors ports.UpdateAccountParams at the use-case
// boundary; nil means "leave unchanged".
type UpdateAccountInput struct {
	Role                 *string
	IsActive             *bool
	AllowedExternalUsers *[]string
}

// ExportQuery is the caller-supplied export filter set.
type ExportQuery struct {
	// ExternalUser narrows the result to one Tautulli username. Non-admins
	// may only name users on their allow-list.
	ExternalUser string
	StartDate    time.Time
	EndDate      time.Time
	MediaType    string
	Limit        int
}

// HistoryRecordView is the JSON preview shape of one watch-history row.
type HistoryRecordView struct {
	Date            string `json:"date"`
	User            string `json:"user"`
	Title           string `json:"title"`
	MediaType       string `json:"media_type"`
	DurationMinutes int    `json:"duration_minutes"`
	PercentComplete int    `json:"percent_complete"`
	Status          string `json:"status"`
	IPAddress       string `json:"ip_address"`
}

type ExternalUserView struct {
	UserID       int64  `json:"user_id"`
	FriendlyName string `json:"friendly_name"`
}

// LoginAttemptView is one row of an account's authentication audit trail.
type LoginAttemptView struct {
	AttemptAt     time.Time `json:"attempt_at"`
	IPAddress     string    `json:"ip_address"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
}
