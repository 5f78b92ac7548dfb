package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// SessionRepository is the GORM-backed ports.SessionRepository.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	model := sessionModel{
		SessionID: uuid.New(),
		AccountID: params.AccountID,
		TokenHash: params.TokenHash,
		CSRFToken: params.CSRFToken,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sessionToDomain(model), nil
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	var model sessionModel
	err := r.db.WithContext(ctx).First(&model, "token_hash = ?", tokenHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return sessionToDomain(model), nil
}

func (r *SessionRepository) RotateToken(ctx context.Context, sessionID uuid.UUID, tokenHash, csrfToken string) error {
	result := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"token_hash": tokenHash,
			"csrf_token": csrfToken,
		})
	if result.Error != nil {
		return fmt.Errorf("rotate session token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&sessionModel{}, "session_id = ?", sessionID)
	if result.Error != nil {
		return fmt.Errorf("delete session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	err := r.db.WithContext(ctx).Delete(&sessionModel{}, "account_id = ?", accountID).Error
	if err != nil {
		return fmt.Errorf("delete account sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByAccountExcept(ctx context.Context, accountID, keepSessionID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Delete(&sessionModel{}, "account_id = ? AND session_id <> ?", accountID, keepSessionID).Error
	if err != nil {
		return fmt.Errorf("delete other sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&sessionModel{}, "expires_at <= ?", now)
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
