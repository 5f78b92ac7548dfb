package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// CreateAccount provisions a new operator account. Admin only.
func (s *Service) CreateAccount(ctx context.Context, actor domain.Account, input CreateAccountInput) (AccountView, error) {
	if actor.Role != domain.RoleAdmin {
		return AccountView{}, domain.ErrForbidden
	}
	username, err := domain.NormalizeUsername(input.Username)
	if err != nil {
		return AccountView{}, err
	}
	role := domain.Role(input.Role)
	if !domain.ValidRole(role) {
		return AccountView{}, fmt.Errorf("%w: role must be admin or user", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(input.Password, username); err != nil {
		return AccountView{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AccountView{}, fmt.Errorf("hash password: %w", err)
	}
	account, err := s.accounts.Create(ctx, ports.CreateAccountParams{
		Username:             username,
		PasswordHash:         hash,
		Role:                 role,
		MustChangePassword:   true,
		AllowedExternalUsers: input.AllowedExternalUsers,
		CreatedAt:            s.nowFn(),
	})
	if err != nil {
		return AccountView{}, err
	}

	s.logger.InfoContext(ctx, "account created",
		"operation", "create_account",
		"outcome", "success",
		"actor_id", actor.AccountID,
		"account_id", account.AccountID,
		"role", account.Role,
	)
	return accountView(account), nil
}

// ListAccounts returns every account. Admin only.
func (s *Service) ListAccounts(ctx context.Context, actor domain.Account) ([]AccountView, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView(a))
	}
	return views, nil
}

// UpdateAccount applies a partial mutation. Admin only; the repository
// enforces the last-admin invariant transactionally.
func (s *Service) UpdateAccount(ctx context.Context, actor domain.Account, accountID uuid.UUID, input UpdateAccountInput) (AccountView, error) {
	if actor.Role != domain.RoleAdmin {
		return AccountView{}, domain.ErrForbidden
	}

	params := ports.UpdateAccountParams{UpdatedAt: s.nowFn()}
	if input.Role != nil {
		role := domain.Role(*input.Role)
		if !domain.ValidRole(role) {
			return AccountView{}, fmt.Errorf("%w: role must be admin or user", domain.ErrInvalidInput)
		}
		params.Role = &role
	}
	params.IsActive = input.IsActive
	params.AllowedExternalUsers = input.AllowedExternalUsers

	account, err := s.accounts.Update(ctx, accountID, params)
	if err != nil {
		return AccountView{}, err
	}

	s.logger.InfoContext(ctx, "account updated",
		"operation", "update_account",
		"outcome", "success",
		"actor_id", actor.AccountID,
		"account_id", account.AccountID,
	)
	return accountView(account), nil
}

// DeactivateAccount disables an account and revokes its sessions. Admin only.
func (s *Service) DeactivateAccount(ctx context.Context, actor domain.Account, accountID uuid.UUID) error {
	if actor.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if err := s.accounts.Deactivate(ctx, accountID, s.nowFn()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account deactivated",
		"operation", "deactivate_account",
		"outcome", "success",
		"actor_id", actor.AccountID,
		"account_id", accountID,
	)
	return nil
}

// DeleteAccount removes an account and its sessions. Admin only.
func (s *Service) DeleteAccount(ctx context.Context, actor domain.Account, accountID uuid.UUID) error {
	if actor.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account deleted",
		"operation", "delete_account",
		"outcome", "success",
		"actor_id", actor.AccountID,
		"account_id", accountID,
	)
	return nil
}

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// ListLoginAttempts returns one account's authentication audit trail, newest
// first. Admin only.
func (s *Service) ListLoginAttempts(ctx context.Context, actor domain.Account, accountID uuid.UUID, limit, offset int) ([]LoginAttemptView, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	attempts, err := s.loginAttempts.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]LoginAttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, LoginAttemptView{
			AttemptAt:     a.AttemptAt,
			IPAddress:     a.IPAddress,
			Status:        a.Status,
			FailureReason: a.FailureReason,
			UserAgent:     a.UserAgent,
		})
	}
	return views, nil
}

// EnsureBootstrapAdmin seeds the first admin account when the accounts table
// is empty, so a fresh deployment can be administered at all. The seeded
// password must be changed on first login.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context) error {
	count, err := s.accounts.Count(ctx)
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	username, err := domain.NormalizeUsername(s.cfg.BootstrapUsername)
	if err != nil {
		return fmt.Errorf("bootstrap username: %w", err)
	}
	hash, err := s.hasher.Hash(s.cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	account, err := s.accounts.Create(ctx, ports.CreateAccountParams{
		Username:           username,
		PasswordHash:       hash,
		Role:               domain.RoleAdmin,
		MustChangePassword: true,
		CreatedAt:          s.nowFn(),
	})
	if err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}

	s.logger.WarnContext(ctx, "bootstrap admin seeded, change the password on first login",
		"operation", "bootstrap_admin",
		"outcome", "success",
		"account_id", account.AccountID,
		"username", account.Username,
	)
	return nil
}
