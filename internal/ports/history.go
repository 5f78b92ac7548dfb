package ports

import (
	"context"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

// HistoryQuery carries the caller-supplied filters pushed to or applied
// around the Tautulli fetch. Zero values mean "no filter".
type HistoryQuery struct {
	StartDate time.Time
	EndDate   time.Time
	MediaType string
	// Length caps how many rows come back; zero or negative drains the
	// full history. The adapter paginates upstream calls either way.
	Length int
}

// HistoryClient is the external collaborator boundary: Tautulli owns the
// canonical watch history and user directory, queried live and never
// mirrored. Transient connectivity problems surface as
// domain.ErrUpstreamUnavailable so the caller can decide about retries; the
// client itself never retries.
type HistoryClient interface {
	ListUsers(ctx context.Context, cfg domain.ConnectionSettings) ([]domain.ExternalUser, error)
	FetchHistory(ctx context.Context, cfg domain.ConnectionSettings, query HistoryQuery) ([]domain.ExternalRecord, error)
	// TestConnection verifies the settings reach a live Tautulli server.
	TestConnection(ctx context.Context, cfg domain.ConnectionSettings) error
}
