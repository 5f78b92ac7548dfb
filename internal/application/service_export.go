package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/export"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// upstreamRetryBackoff spaces the single retry after a transient Tautulli
// failure.
const upstreamRetryBackoff = 500 * time.Millisecond

// ExportRecords runs the scoped export pipeline and returns the rows to
// stream: validate the limit, load the connection settings, fetch from
// Tautulli with one retry, scope to the caller, then apply the caller
// filters. The transport layer renders the result.
func (s *Service) ExportRecords(ctx context.Context, account domain.Account, query ExportQuery) ([]domain.ExternalRecord, error) {
	if query.Limit <= 0 || query.Limit > s.cfg.ExportMaxRows {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrExportLimit, s.cfg.ExportMaxRows)
	}
	if !query.StartDate.IsZero() && !query.EndDate.IsZero() && query.EndDate.Before(query.StartDate) {
		return nil, fmt.Errorf("%w: end date precedes start date", domain.ErrInvalidInput)
	}
	// A non-admin can only ask for usernames already inside their scope.
	if query.ExternalUser != "" && !account.MaySee(query.ExternalUser) {
		return nil, domain.ErrForbidden
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, domain.ErrNotConfigured
	}

	// The result limit is a caller filter like the user filter, applied
	// after scoping. Pushing it upstream would cap the fetch before the
	// caller's allow-list is applied.
	records, err := s.fetchWithRetry(ctx, cfg, ports.HistoryQuery{
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
		MediaType: query.MediaType,
	})
	if err != nil {
		return nil, err
	}

	records = scopeRecords(account, records)
	if query.ExternalUser != "" {
		filtered := records[:0]
		for _, record := range records {
			if record.SourceUsername == query.ExternalUser {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}
	if len(records) > query.Limit {
		records = records[:query.Limit]
	}

	s.logger.InfoContext(ctx, "export prepared",
		"operation", "export",
		"outcome", "success",
		"account_id", account.AccountID,
		"rows", len(records),
	)
	return records, nil
}

// HistoryPreview returns the same scoped rows as the CSV export, shaped for
// a JSON response.
func (s *Service) HistoryPreview(ctx context.Context, account domain.Account, query ExportQuery) ([]HistoryRecordView, error) {
	records, err := s.ExportRecords(ctx, account, query)
	if err != nil {
		return nil, err
	}
	views := make([]HistoryRecordView, 0, len(records))
	for _, r := range records {
		views = append(views, HistoryRecordView{
			Date:            r.WatchedAt.Format("2006-01-02 15:04:05"),
			User:            r.SourceUsername,
			Title:           r.Title,
			MediaType:       r.MediaType,
			DurationMinutes: r.DurationMinutes,
			PercentComplete: r.PercentComplete,
			Status:          export.Status(r.PercentComplete),
			IPAddress:       r.ClientIP,
		})
	}
	return views, nil
}

// ListExternalUsers returns the Tautulli user directory scoped to the
// caller. Non-admins only see the names on their allow-list.
func (s *Service) ListExternalUsers(ctx context.Context, account domain.Account) ([]ExternalUserView, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, domain.ErrNotConfigured
	}
	users, err := s.history.ListUsers(ctx, cfg)
	if err != nil {
		return nil, err
	}
	scoped := scopeUsers(account, users)
	views := make([]ExternalUserView, 0, len(scoped))
	for _, u := range scoped {
		views = append(views, ExternalUserView{UserID: u.UserID, FriendlyName: u.FriendlyName})
	}
	return views, nil
}

// TautulliSettings exposes the stored connection settings to admins. The API
// key is returned as saved; only admins reach this path.
func (s *Service) TautulliSettings(ctx context.Context, actor domain.Account) (domain.ConnectionSettings, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.ConnectionSettings{}, domain.ErrForbidden
	}
	return s.settings.Get(ctx)
}

// SaveTautulliSettings validates the settings against a live server before
// persisting them. Admin only.
func (s *Service) SaveTautulliSettings(ctx context.Context, actor domain.Account, settings domain.ConnectionSettings) error {
	if actor.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if settings.BaseURL == "" || settings.APIKey == "" {
		return fmt.Errorf("%w: base url and api key are required", domain.ErrInvalidInput)
	}
	if err := s.history.TestConnection(ctx, settings); err != nil {
		return err
	}
	settings.UpdatedAt = s.nowFn()
	if err := s.settings.Put(ctx, settings); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "connection settings saved",
		"operation", "save_settings",
		"outcome", "success",
		"actor_id", actor.AccountID,
	)
	return nil
}

// fetchWithRetry calls Tautulli and retries exactly once on a transient
// failure. A second failure surfaces as domain.ErrExportUpstream.
func (s *Service) fetchWithRetry(ctx context.Context, cfg domain.ConnectionSettings, query ports.HistoryQuery) ([]domain.ExternalRecord, error) {
	var records []domain.ExternalRecord
	backoff := retry.WithMaxRetries(1, retry.NewConstant(upstreamRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = s.history.FetchHistory(ctx, cfg, query)
		if errors.Is(fetchErr, domain.ErrUpstreamUnavailable) {
			s.logger.WarnContext(ctx, "upstream fetch failed, retrying",
				"operation", "export",
				"outcome", "retry",
				"error", fetchErr,
			)
			return retry.RetryableError(fetchErr)
		}
		return fetchErr
	})
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportUpstream, err)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}
