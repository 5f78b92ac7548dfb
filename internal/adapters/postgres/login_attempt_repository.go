package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// LoginAttemptRepository is the GORM-backed ports.LoginAttemptRepository.
type LoginAttemptRepository struct {
	db *gorm.DB
}

func NewLoginAttemptRepository(db *gorm.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

var _ ports.LoginAttemptRepository = (*LoginAttemptRepository)(nil)

func (r *LoginAttemptRepository) Insert(ctx context.Context, attempt domain.LoginAttempt) error {
	model := loginAttemptModel{
		AccountID:     attempt.AccountID,
		AttemptAt:     attempt.AttemptAt,
		IPAddress:     attempt.IPAddress,
		Status:        attempt.Status,
		FailureReason: attempt.FailureReason,
		UserAgent:     attempt.UserAgent,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

func (r *LoginAttemptRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LoginAttempt, error) {
	var models []loginAttemptModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("attempt_at desc").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	attempts := make([]domain.LoginAttempt, 0, len(models))
	for _, m := range models {
		attempts = append(attempts, attemptToDomain(m))
	}
	return attempts, nil
}
