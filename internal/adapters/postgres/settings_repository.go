package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// SettingsRepository holds the single Tautulli connection row.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

var _ ports.SettingsRepository = (*SettingsRepository)(nil)

func (r *SettingsRepository) Get(ctx context.Context) (domain.ConnectionSettings, error) {
	var model connectionSettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = 1").Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ConnectionSettings{}, domain.ErrNotConfigured
	}
	if err != nil {
		return domain.ConnectionSettings{}, fmt.Errorf("select settings: %w", err)
	}
	return domain.ConnectionSettings{
		BaseURL:   model.BaseURL,
		APIKey:    model.APIKey,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

func (r *SettingsRepository) Put(ctx context.Context, settings domain.ConnectionSettings) error {
	model := connectionSettingsModel{
		ID:        1,
		BaseURL:   settings.BaseURL,
		APIKey:    settings.APIKey,
		UpdatedAt: settings.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_url", "api_key", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
