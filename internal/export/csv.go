// Package export renders watch-history records as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

// completedThreshold is the percent watched at which a play counts as a
// full view rather than a partial one.
const completedThreshold = 90

var header = []string{
	"Date",
	"User",
	"Title",
	"Media Type",
	"Duration",
	"Percent Complete",
	"Status",
	"IP Address",
}

// WriteCSV streams records to w, header first, checking ctx between rows so
// a disconnected download stops the encode promptly. Rows are written in the
// order given; callers decide ordering upstream.
func WriteCSV(ctx context.Context, w io.Writer, records []domain.ExternalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(row(record)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(r domain.ExternalRecord) []string {
	return []string{
		r.WatchedAt.Format("2006-01-02 15:04:05"),
		r.SourceUsername,
		r.Title,
		r.MediaType,
		strconv.Itoa(r.DurationMinutes),
		strconv.Itoa(r.PercentComplete),
		Status(r.PercentComplete),
		r.ClientIP,
	}
}

// Status derives the watch status label from percent complete.
func Status(percentComplete int) string {
	if percentComplete >= completedThreshold {
		return "Completed"
	}
	return "Partial"
}
