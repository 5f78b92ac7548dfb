package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

// CreateAccountParams carries everything needed to insert a new account.
// The password arrives pre-hashed; repositories never see plaintext.
type CreateAccountParams struct {
	Username             string
	PasswordHash         string
	Role                 domain.Role
	MustChangePassword   bool
	AllowedExternalUsers []string
	CreatedAt            time.Time
}

// UpdateAccountParams describes a partial account mutation. Nil fields are
// left untouched.
type UpdateAccountParams struct {
	Role                 *domain.Role
	IsActive             *bool
	AllowedExternalUsers *[]string
	UpdatedAt            time.Time
}

// AccountRepository owns all account rows and the last-admin invariant.
//
// Update, Deactivate, and Delete must run as a single transaction that
// counts the remaining active admins under row locks and fails with
// domain.ErrLastAdmin before applying a mutation that would leave zero.
// Deactivate and Delete also remove the account's sessions in the same
// transaction so a disabled account cannot keep an authenticated session.
type AccountRepository interface {
	Create(ctx context.Context, params CreateAccountParams) (domain.Account, error)
	GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error)
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, accountID uuid.UUID, params UpdateAccountParams) (domain.Account, error)
	SetPassword(ctx context.Context, accountID uuid.UUID, passwordHash string, clearMustChange bool, updatedAt time.Time) error
	Deactivate(ctx context.Context, accountID uuid.UUID, deactivatedAt time.Time) error
	Delete(ctx context.Context, accountID uuid.UUID) error
}

// SessionCreateParams is the insert shape for a new session.
type SessionCreateParams struct {
	AccountID uuid.UUID
	TokenHash string
	CSRFToken string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository persists opaque-token sessions.
// Lookups are by token hash; revocation is row deletion, which makes
// invalidation immediate without any side-channel state.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)
	RotateToken(ctx context.Context, sessionID uuid.UUID, tokenHash, csrfToken string) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) error
	// DeleteByAccountExcept removes every session of the account except the
	// one named, used when a password change keeps the current session alive.
	DeleteByAccountExcept(ctx context.Context, accountID, keepSessionID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LoginAttemptRepository stores the authentication audit trail.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LoginAttempt, error)
}

// SettingsRepository reads and writes the single Tautulli connection row.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.ConnectionSettings, error)
	Put(ctx context.Context, settings domain.ConnectionSettings) error
}
