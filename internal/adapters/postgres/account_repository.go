package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// AccountRepository is the GORM-backed ports.AccountRepository.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) Create(ctx context.Context, params ports.CreateAccountParams) (domain.Account, error) {
	allowed, err := allowedToJSON(params.AllowedExternalUsers)
	if err != nil {
		return domain.Account{}, fmt.Errorf("encode allowed users: %w", err)
	}
	model := accountModel{
		AccountID:            uuid.New(),
		Username:             params.Username,
		PasswordHash:         params.PasswordHash,
		Role:                 string(params.Role),
		IsActive:             true,
		MustChangePassword:   params.MustChangePassword,
		AllowedExternalUsers: allowed,
		CreatedAt:            params.CreatedAt,
		UpdatedAt:            params.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Account{}, domain.ErrDuplicateUsername
		}
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return accountToDomain(model)
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	var model accountModel
	err := r.db.WithContext(ctx).First(&model, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}
	return accountToDomain(model)
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	var model accountModel
	err := r.db.WithContext(ctx).First(&model, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account by username: %w", err)
	}
	return accountToDomain(model)
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	var models []accountModel
	if err := r.db.WithContext(ctx).Order("username asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts := make([]domain.Account, 0, len(models))
	for _, m := range models {
		account, err := accountToDomain(m)
		if err != nil {
			return nil, fmt.Errorf("decode account %s: %w", m.AccountID, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&accountModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

func (r *AccountRepository) Update(ctx context.Context, accountID uuid.UUID, params ports.UpdateAccountParams) (domain.Account, error) {
	var updated accountModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model accountModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "account_id = ?", accountID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		// Demoting or deactivating an active admin needs the invariant check
		// before the row changes.
		demotes := params.Role != nil && *params.Role != domain.RoleAdmin
		disables := params.IsActive != nil && !*params.IsActive
		if model.Role == string(domain.RoleAdmin) && model.IsActive && (demotes || disables) {
			if err := ensureNotLastAdmin(tx, accountID); err != nil {
				return err
			}
		}

		if params.Role != nil {
			model.Role = string(*params.Role)
		}
		if params.IsActive != nil {
			model.IsActive = *params.IsActive
		}
		if params.AllowedExternalUsers != nil {
			allowed, err := allowedToJSON(*params.AllowedExternalUsers)
			if err != nil {
				return fmt.Errorf("encode allowed users: %w", err)
			}
			model.AllowedExternalUsers = allowed
		}
		model.UpdatedAt = params.UpdatedAt

		if err := tx.Save(&model).Error; err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if disables {
			if err := tx.Delete(&sessionModel{}, "account_id = ?", accountID).Error; err != nil {
				return fmt.Errorf("delete sessions: %w", err)
			}
		}
		updated = model
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return accountToDomain(updated)
}

func (r *AccountRepository) SetPassword(ctx context.Context, accountID uuid.UUID, passwordHash string, clearMustChange bool, updatedAt time.Time) error {
	updates := map[string]any{
		"password_hash": passwordHash,
		"updated_at":    updatedAt,
	}
	if clearMustChange {
		updates["must_change_password"] = false
	}
	result := r.db.WithContext(ctx).Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Deactivate(ctx context.Context, accountID uuid.UUID, deactivatedAt time.Time) error {
	active := false
	_, err := r.Update(ctx, accountID, ports.UpdateAccountParams{
		IsActive:  &active,
		UpdatedAt: deactivatedAt,
	})
	return err
}

func (r *AccountRepository) Delete(ctx context.Context, accountID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model accountModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "account_id = ?", accountID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if model.Role == string(domain.RoleAdmin) && model.IsActive {
			if err := ensureNotLastAdmin(tx, accountID); err != nil {
				return err
			}
		}
		if err := tx.Delete(&sessionModel{}, "account_id = ?", accountID).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := tx.Delete(&accountModel{}, "account_id = ?", accountID).Error; err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}

// ensureNotLastAdmin locks every other active admin row and fails with
// domain.ErrLastAdmin when none remain. The locks hold until the enclosing
// transaction commits, so two concurrent demotions cannot interleave.
func ensureNotLastAdmin(tx *gorm.DB, excludeID uuid.UUID) error {
	var others []accountModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("role = ? AND is_active = ? AND account_id <> ?", string(domain.RoleAdmin), true, excludeID).
		Find(&others).Error
	if err != nil {
		return fmt.Errorf("lock admins: %w", err)
	}
	if len(others) == 0 {
		return domain.ErrLastAdmin
	}
	return nil
}
