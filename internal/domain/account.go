package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the operator role attached to an account.
// Roles are a closed set; PermissionScope switches over them exhaustively.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ValidRole reports whether the given value is a known role.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleUser
}

// Account is the internal operator identity for this service.
// It is distinct from Tautulli's own user directory: AllowedExternalUsers
// names the Tautulli usernames a non-admin account may see.
type Account struct {
	AccountID            uuid.UUID
	Username             string
	PasswordHash         string
	Role                 Role
	IsActive             bool
	MustChangePassword   bool
	AllowedExternalUsers []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MaySee reports whether the account is allowed to see records for the
// given Tautulli username. Admins see everything; an empty allow-list
// yields nothing (fail closed).
func (a Account) MaySee(externalUsername string) bool {
	if a.Role == RoleAdmin {
		return true
	}
	for _, allowed := range a.AllowedExternalUsers {
		if allowed == externalUsername {
			return true
		}
	}
	return false
}

// Session models an authenticated browser session.
// Only the SHA-256 hash of the opaque token is persisted; the raw token is
// returned to the caller once at issuance and never stored or logged.
type Session struct {
	SessionID uuid.UUID
	AccountID uuid.UUID
	TokenHash string
	CSRFToken string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// LoginAttempt records authentication outcomes for audit.
// Failure reasons stay internal; login responses never distinguish them.
type LoginAttempt struct {
	ID            int64
	AccountID     *uuid.UUID
	AttemptAt     time.Time
	IPAddress     string
	Status        string
	FailureReason string
	UserAgent     string
}

// ConnectionSettings is the stored Tautulli connection configuration.
// There is a single row per deployment; the edit UI lives outside this core.
type ConnectionSettings struct {
	BaseURL   string
	APIKey    string
	UpdatedAt time.Time
}

// Configured reports whether enough is present to reach Tautulli.
func (c ConnectionSettings) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// ExternalUser is one entry of Tautulli's user directory.
type ExternalUser struct {
	UserID       int64
	FriendlyName string
}

// ExternalRecord is a single watch-history row as returned by Tautulli.
// Records are fetched live per request and never persisted here.
type ExternalRecord struct {
	SourceUsername  string
	WatchedAt       time.Time
	Title           string
	MediaType       string
	DurationMinutes int
	PercentComplete int
	ClientIP        string
}
