package postgres

import "gorm.io/gorm"

// Repositories bundles every Postgres-backed store for wiring.
type Repositories struct {
	Accounts      *AccountRepository
	Sessions      *SessionRepository
	LoginAttempts *LoginAttemptRepository
	Settings      *SettingsRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Accounts:      NewAccountRepository(db),
		Sessions:      NewSessionRepository(db),
		LoginAttempts: NewLoginAttemptRepository(db),
		Settings:      NewSettingsRepository(db),
	}
}
