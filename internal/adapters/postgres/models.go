package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID            uuid.UUID `gorm:"column:account_id;primaryKey"`
	Username             string    `gorm:"column:username"`
	PasswordHash         string    `gorm:"column:password_hash"`
	Role                 string    `gorm:"column:role"`
	IsActive             bool      `gorm:"column:is_active"`
	MustChangePassword   bool      `gorm:"column:must_change_password"`
	AllowedExternalUsers string    `gorm:"column:allowed_external_users"`
	CreatedAt            time.Time `gorm:"column:created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type sessionModel struct {
	SessionID uuid.UUID `gorm:"column:session_id;primaryKey"`
	AccountID uuid.UUID `gorm:"column:account_id"`
	TokenHash string    `gorm:"column:token_hash"`
	CSRFToken string    `gorm:"column:csrf_token"`
	IPAddress string    `gorm:"column:ip_address"`
	UserAgent string    `gorm:"column:user_agent"`
	CreatedAt time.Time `gorm:"column:created_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type loginAttemptModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID     *uuid.UUID `gorm:"column:account_id"`
	AttemptAt     time.Time  `gorm:"column:attempt_at"`
	IPAddress     string     `gorm:"column:ip_address"`
	Status        string     `gorm:"column:status"`
	FailureReason string     `gorm:"column:failure_reason"`
	UserAgent     string     `gorm:"column:user_agent"`
}

func (loginAttemptModel) TableName() string { return "login_attempts" }

type connectionSettingsModel struct {
	ID        int16     `gorm:"column:id;primaryKey"`
	BaseURL   string    `gorm:"column:base_url"`
	APIKey    string    `gorm:"column:api_key"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (connectionSettingsModel) TableName() string { return "connection_settings" }
