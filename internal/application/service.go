// Package application contains the use-case layer: authentication, account
// administration, and the scoped export pipeline. It depends only on ports
// and domain; adapters are injected at bootstrap.
package application

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// Config carries the tunables the use cases need.
type Config struct {
	SessionTTL    time.Duration
	ExportMaxRows int
	// BootstrapUsername and BootstrapPassword seed the first admin account
	// when the accounts table is empty. The seeded account always carries
	// MustChangePassword.
	BootstrapUsername string
	BootstrapPassword string
}

// Dependencies lists everything the Service needs injected.
type Dependencies struct {
	Accounts      ports.AccountRepository
	Sessions      ports.SessionRepository
	LoginAttempts ports.LoginAttemptRepository
	Settings      ports.SettingsRepository
	History       ports.HistoryClient
	Hasher        ports.PasswordHasher
	Tokens        ports.TokenSource
	Logger        *slog.Logger
}

// Service implements the use cases behind the HTTP adapter.
type Service struct {
	accounts      ports.AccountRepository
	sessions      ports.SessionRepository
	loginAttempts ports.LoginAttemptRepository
	settings      ports.SettingsRepository
	history       ports.HistoryClient
	hasher        ports.PasswordHasher
	tokens        ports.TokenSource
	logger        *slog.Logger
	cfg           Config

	// dummyHash absorbs the password comparison for unknown usernames so
	// login timing does not reveal whether an account exists.
	dummyHash string

	nowFn func() time.Time
}

func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if deps.Accounts == nil || deps.Sessions == nil || deps.LoginAttempts == nil ||
		deps.Settings == nil || deps.History == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("application: missing dependency")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	if cfg.ExportMaxRows <= 0 {
		cfg.ExportMaxRows = 10000
	}

	dummyHash, err := deps.Hasher.Hash("decoy-credential-timing-pad")
	if err != nil {
		return nil, fmt.Errorf("application: prepare dummy hash: %w", err)
	}

	return &Service{
		accounts:      deps.Accounts,
		sessions:      deps.Sessions,
		loginAttempts: deps.LoginAttempts,
		settings:      deps.Settings,
		history:       deps.History,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		logger:        deps.Logger,
		cfg:           cfg,
		dummyHash:     dummyHash,
		nowFn:         time.Now,
	}, nil
}
