package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

const (
	attemptStatusSuccess = "success"
	attemptStatusFailure = "failure"

	failureUnknownUser   = "unknown_username"
	failureWrongPassword = "wrong_password"
	failureInactive      = "account_inactive"
)

// Login authenticates a username and password and issues a fresh session.
// All credential failures collapse to domain.ErrInvalidCredentials; the audit
// row and the structured log keep the real reason.
func (s *Service) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	username, err := domain.NormalizeUsername(input.Username)
	if err != nil {
		return LoginResult{}, err
	}
	if input.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		// Burn a comparison anyway so response timing matches the
		// known-username path.
		_ = s.hasher.Compare(s.dummyHash, input.Password)
		s.recordAttempt(ctx, nil, input, failureUnknownUser)
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.hasher.Compare(account.PasswordHash, input.Password); err != nil {
		s.recordAttempt(ctx, &account.AccountID, input, failureWrongPassword)
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	if !account.IsActive {
		s.recordAttempt(ctx, &account.AccountID, input, failureInactive)
		s.logger.WarnContext(ctx, "login rejected",
			"operation", "login",
			"outcome", "failure",
			"error", domain.ErrAccountInactive,
			"account_id", account.AccountID,
		)
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	raw, hash, err := s.tokens.NewToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session token: %w", err)
	}
	csrf, err := s.tokens.NewCSRFToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue csrf token: %w", err)
	}

	now := s.nowFn()
	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		AccountID: account.AccountID,
		TokenHash: hash,
		CSRFToken: csrf,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	s.recordAttempt(ctx, &account.AccountID, input, "")
	s.logger.InfoContext(ctx, "login succeeded",
		"operation", "login",
		"outcome", "success",
		"account_id", account.AccountID,
		"session_id", session.SessionID,
	)

	return LoginResult{
		Token:              raw,
		CSRFToken:          csrf,
		ExpiresAt:          session.ExpiresAt,
		Account:            accountView(account),
		MustChangePassword: account.MustChangePassword,
	}, nil
}

// Resolve validates a raw session token and loads its account. Expired
// sessions are deleted on sight rather than by a background job.
func (s *Service) Resolve(ctx context.Context, rawToken string) (Auth, error) {
	if rawToken == "" {
		return Auth{}, domain.ErrUnauthorized
	}
	session, err := s.sessions.GetByTokenHash(ctx, s.tokens.HashToken(rawToken))
	if errors.Is(err, domain.ErrNotFound) {
		return Auth{}, domain.ErrUnauthorized
	}
	if err != nil {
		return Auth{}, err
	}
	if session.Expired(s.nowFn()) {
		_ = s.sessions.Delete(ctx, session.SessionID)
		return Auth{}, domain.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = s.sessions.Delete(ctx, session.SessionID)
		return Auth{}, domain.ErrUnauthorized
	}
	if err != nil {
		return Auth{}, err
	}
	if !account.IsActive {
		_ = s.sessions.DeleteByAccount(ctx, account.AccountID)
		return Auth{}, domain.ErrUnauthorized
	}

	return Auth{Account: account, Session: session}, nil
}

// Logout revokes the session behind the raw token. Unknown and already
// revoked tokens succeed, so repeated logouts are harmless.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	session, err := s.sessions.GetByTokenHash(ctx, s.tokens.HashToken(rawToken))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, session.SessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.logger.InfoContext(ctx, "logout",
		"operation", "logout",
		"outcome", "success",
		"session_id", session.SessionID,
	)
	return nil
}

// ChangePassword verifies the old password, applies the policy to the new
// one, rehashes, clears the forced-change flag, revokes every other session
// of the account, and rotates the current session's token pair.
//
// The old password is verified even when the account is in the forced-change
// state; a stolen session cookie alone must not be enough to take over the
// account.
func (s *Service) ChangePassword(ctx context.Context, auth Auth, input ChangePasswordInput) (ChangePasswordResult, error) {
	if err := s.hasher.Compare(auth.Account.PasswordHash, input.OldPassword); err != nil {
		return ChangePasswordResult{}, domain.ErrInvalidCredentials
	}
	if err := domain.ValidatePassword(input.NewPassword, auth.Account.Username); err != nil {
		return ChangePasswordResult{}, err
	}
	if input.NewPassword == input.OldPassword {
		return ChangePasswordResult{}, fmt.Errorf("%w: new password must differ from the old one", domain.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return ChangePasswordResult{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.SetPassword(ctx, auth.Account.AccountID, hash, true, s.nowFn()); err != nil {
		return ChangePasswordResult{}, err
	}
	if err := s.sessions.DeleteByAccountExcept(ctx, auth.Account.AccountID, auth.Session.SessionID); err != nil {
		return ChangePasswordResult{}, err
	}

	raw, tokenHash, err := s.tokens.NewToken()
	if err != nil {
		return ChangePasswordResult{}, fmt.Errorf("rotate session token: %w", err)
	}
	csrf, err := s.tokens.NewCSRFToken()
	if err != nil {
		return ChangePasswordResult{}, fmt.Errorf("rotate csrf token: %w", err)
	}
	if err := s.sessions.RotateToken(ctx, auth.Session.SessionID, tokenHash, csrf); err != nil {
		return ChangePasswordResult{}, err
	}

	s.logger.InfoContext(ctx, "password changed",
		"operation", "change_password",
		"outcome", "success",
		"account_id", auth.Account.AccountID,
	)
	return ChangePasswordResult{Token: raw, CSRFToken: csrf}, nil
}

func (s *Service) recordAttempt(ctx context.Context, accountID *uuid.UUID, input LoginInput, failureReason string) {
	status := attemptStatusSuccess
	if failureReason != "" {
		status = attemptStatusFailure
	}
	attempt := domain.LoginAttempt{
		AccountID:     accountID,
		AttemptAt:     s.nowFn(),
		IPAddress:     input.IPAddress,
		Status:        status,
		FailureReason: failureReason,
		UserAgent:     input.UserAgent,
	}
	if err := s.loginAttempts.Insert(ctx, attempt); err != nil {
		// The attempt log is best effort; a failed audit insert must not
		// block authentication.
		s.logger.ErrorContext(ctx, "record login attempt",
			"operation", "record_login_attempt",
			"outcome", "failure",
			"error", err,
		)
	}
}
