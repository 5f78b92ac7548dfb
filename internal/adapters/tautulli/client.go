// Package tautulli implements the HTTP client for Tautulli's v2 API.
//
// Tautulli exposes a single endpoint, /api/v2, selecting the command via a
// cmd query parameter. All responses share an envelope with a result field;
// anything other than "success" is treated as an upstream failure.
package tautulli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// pageSize mirrors Tautulli's practical page limit for get_history.
const pageSize = 1000

// Client talks to one Tautulli server per call; the connection settings are
// passed in rather than held, so a settings change takes effect immediately.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client around the given http.Client. A nil client gets
// a 30 second timeout default.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

var _ ports.HistoryClient = (*Client)(nil)

type apiEnvelope struct {
	Response struct {
		Result  string          `json:"result"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"response"`
}

type userPayload struct {
	UserID       int64  `json:"user_id"`
	FriendlyName string `json:"friendly_name"`
}

type historyPayload struct {
	RecordsFiltered int                 `json:"recordsFiltered"`
	Data            []historyRowPayload `json:"data"`
}

type historyRowPayload struct {
	User            string      `json:"user"`
	Date            int64       `json:"date"`
	FullTitle       string      `json:"full_title"`
	MediaType       string      `json:"media_type"`
	Duration        int         `json:"duration"`
	PercentComplete json.Number `json:"percent_complete"`
	IPAddress       string      `json:"ip_address"`
}

func (c *Client) ListUsers(ctx context.Context, cfg domain.ConnectionSettings) ([]domain.ExternalUser, error) {
	raw, err := c.call(ctx, cfg, "get_user_names", nil)
	if err != nil {
		return nil, err
	}
	var payload []userPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode user list: %v", domain.ErrUpstreamUnavailable, err)
	}
	users := make([]domain.ExternalUser, 0, len(payload))
	for _, u := range payload {
		users = append(users, domain.ExternalUser{
			UserID:       u.UserID,
			FriendlyName: u.FriendlyName,
		})
	}
	return users, nil
}

func (c *Client) FetchHistory(ctx context.Context, cfg domain.ConnectionSettings, query ports.HistoryQuery) ([]domain.ExternalRecord, error) {
	want := query.Length

	var records []domain.ExternalRecord
	for start := 0; ; start += pageSize {
		params := url.Values{}
		params.Set("length", strconv.Itoa(pageSize))
		params.Set("start", strconv.Itoa(start))
		params.Set("order_column", "date")
		params.Set("order_dir", "desc")
		if query.MediaType != "" {
			params.Set("media_type", query.MediaType)
		}

		raw, err := c.call(ctx, cfg, "get_history", params)
		if err != nil {
			return nil, err
		}
		var payload historyPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode history page: %v", domain.ErrUpstreamUnavailable, err)
		}

		for _, row := range payload.Data {
			record := rowToRecord(row)
			// Date bounds are filtered here: get_history has no range
			// parameters, only ordering.
			if !query.StartDate.IsZero() && record.WatchedAt.Before(query.StartDate) {
				continue
			}
			if !query.EndDate.IsZero() && record.WatchedAt.After(query.EndDate) {
				continue
			}
			records = append(records, record)
			if want > 0 && len(records) >= want {
				return records, nil
			}
		}

		if len(payload.Data) < pageSize {
			break
		}
	}
	return records, nil
}

func (c *Client) TestConnection(ctx context.Context, cfg domain.ConnectionSettings) error {
	_, err := c.call(ctx, cfg, "get_server_info", nil)
	return err
}

// call performs one API request and unwraps the response envelope.
func (c *Client) call(ctx context.Context, cfg domain.ConnectionSettings, cmd string, params url.Values) (json.RawMessage, error) {
	if !cfg.Configured() {
		return nil, domain.ErrNotConfigured
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", cfg.APIKey)
	params.Set("cmd", cmd)

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/v2?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, cmd, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrUpstreamUnavailable, cmd, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", domain.ErrUpstreamUnavailable, cmd, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode %s envelope: %v", domain.ErrUpstreamUnavailable, cmd, err)
	}
	if envelope.Response.Result != "success" {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrUpstreamUnavailable, cmd, envelope.Response.Message)
	}
	return envelope.Response.Data, nil
}

func rowToRecord(row historyRowPayload) domain.ExternalRecord {
	percent := 0
	if v, err := row.PercentComplete.Int64(); err == nil {
		percent = int(v)
	} else if f, err := row.PercentComplete.Float64(); err == nil {
		percent = int(f)
	}
	return domain.ExternalRecord{
		SourceUsername:  row.User,
		WatchedAt:       time.Unix(row.Date, 0).UTC(),
		Title:           row.FullTitle,
		MediaType:       row.MediaType,
		DurationMinutes: row.Duration / 60,
		PercentComplete: percent,
		ClientIP:        row.IPAddress,
	}
}
