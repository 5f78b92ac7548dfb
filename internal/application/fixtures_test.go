package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

type fakeAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: make(map[uuid.UUID]domain.Account)}
}

func (f *fakeAccounts) Create(_ context.Context, params ports.CreateAccountParams) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Username == params.Username {
			return domain.Account{}, domain.ErrDuplicateUsername
		}
	}
	account := domain.Account{
		AccountID:            uuid.New(),
		Username:             params.Username,
		PasswordHash:         params.PasswordHash,
		Role:                 params.Role,
		IsActive:             true,
		MustChangePassword:   params.MustChangePassword,
		AllowedExternalUsers: params.AllowedExternalUsers,
		CreatedAt:            params.CreatedAt,
		UpdatedAt:            params.CreatedAt,
	}
	f.byID[account.AccountID] = account
	return account, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, accountID uuid.UUID) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Username == username {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccounts) List(_ context.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	accounts := make([]domain.Account, 0, len(f.byID))
	for _, a := range f.byID {
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (f *fakeAccounts) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

func (f *fakeAccounts) otherActiveAdminsLocked(excludeID uuid.UUID) int {
	n := 0
	for _, a := range f.byID {
		if a.AccountID != excludeID && a.Role == domain.RoleAdmin && a.IsActive {
			n++
		}
	}
	return n
}

func (f *fakeAccounts) Update(_ context.Context, accountID uuid.UUID, params ports.UpdateAccountParams) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	demotes := params.Role != nil && *params.Role != domain.RoleAdmin
	disables := params.IsActive != nil && !*params.IsActive
	if account.Role == domain.RoleAdmin && account.IsActive && (demotes || disables) {
		if f.otherActiveAdminsLocked(accountID) == 0 {
			return domain.Account{}, domain.ErrLastAdmin
		}
	}
	if params.Role != nil {
		account.Role = *params.Role
	}
	if params.IsActive != nil {
		account.IsActive = *params.IsActive
	}
	if params.AllowedExternalUsers != nil {
		account.AllowedExternalUsers = *params.AllowedExternalUsers
	}
	account.UpdatedAt = params.UpdatedAt
	f.byID[accountID] = account
	return account, nil
}

func (f *fakeAccounts) SetPassword(_ context.Context, accountID uuid.UUID, passwordHash string, clearMustChange bool, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.PasswordHash = passwordHash
	if clearMustChange {
		account.MustChangePassword = false
	}
	account.UpdatedAt = updatedAt
	f.byID[accountID] = account
	return nil
}

func (f *fakeAccounts) Deactivate(ctx context.Context, accountID uuid.UUID, deactivatedAt time.Time) error {
	active := false
	_, err := f.Update(ctx, accountID, ports.UpdateAccountParams{IsActive: &active, UpdatedAt: deactivatedAt})
	return err
}

func (f *fakeAccounts) Delete(_ context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	if account.Role == domain.RoleAdmin && account.IsActive && f.otherActiveAdminsLocked(accountID) == 0 {
		return domain.ErrLastAdmin
	}
	delete(f.byID, accountID)
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[uuid.UUID]domain.Session)}
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := domain.Session{
		SessionID: uuid.New(),
		AccountID: params.AccountID,
		TokenHash: params.TokenHash,
		CSRFToken: params.CSRFToken,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	f.byID[session.SessionID] = session
	return session, nil
}

func (f *fakeSessions) GetByTokenHash(_ context.Context, tokenHash string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.TokenHash == tokenHash {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (f *fakeSessions) RotateToken(_ context.Context, sessionID uuid.UUID, tokenHash, csrfToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	session.TokenHash = tokenHash
	session.CSRFToken = csrfToken
	f.byID[sessionID] = session
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[sessionID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.byID, sessionID)
	return nil
}

func (f *fakeSessions) DeleteByAccount(_ context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.AccountID == accountID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeSessions) DeleteByAccountExcept(_ context.Context, accountID, keepSessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.AccountID == accountID && id != keepSessionID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for id, s := range f.byID {
		if s.Expired(now) {
			delete(f.byID, id)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakeLoginAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (f *fakeLoginAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeLoginAttempts) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Newest first, like the real repository.
	var out []domain.LoginAttempt
	for i := len(f.attempts) - 1; i >= 0; i-- {
		a := f.attempts[i]
		if a.AccountID != nil && *a.AccountID == accountID {
			out = append(out, a)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLoginAttempts) last() (domain.LoginAttempt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.attempts) == 0 {
		return domain.LoginAttempt{}, false
	}
	return f.attempts[len(f.attempts)-1], true
}

type fakeSettings struct {
	mu       sync.Mutex
	settings domain.ConnectionSettings
	saved    bool
}

func (f *fakeSettings) Get(_ context.Context) (domain.ConnectionSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.saved {
		return domain.ConnectionSettings{}, domain.ErrNotConfigured
	}
	return f.settings, nil
}

func (f *fakeSettings) Put(_ context.Context, settings domain.ConnectionSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = settings
	f.saved = true
	return nil
}

type fakeHistory struct {
	mu           sync.Mutex
	users        []domain.ExternalUser
	records      []domain.ExternalRecord
	failuresLeft int
	fetchCalls   int
	testErr      error
}

func (f *fakeHistory) ListUsers(_ context.Context, _ domain.ConnectionSettings) ([]domain.ExternalUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, domain.ErrUpstreamUnavailable
	}
	return f.users, nil
}

func (f *fakeHistory) FetchHistory(_ context.Context, _ domain.ConnectionSettings, query ports.HistoryQuery) ([]domain.ExternalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, domain.ErrUpstreamUnavailable
	}
	var out []domain.ExternalRecord
	for _, r := range f.records {
		if query.MediaType != "" && r.MediaType != query.MediaType {
			continue
		}
		if !query.StartDate.IsZero() && r.WatchedAt.Before(query.StartDate) {
			continue
		}
		if !query.EndDate.IsZero() && r.WatchedAt.After(query.EndDate) {
			continue
		}
		out = append(out, r)
		if query.Length > 0 && len(out) >= query.Length {
			break
		}
	}
	return out, nil
}

func (f *fakeHistory) TestConnection(_ context.Context, _ domain.ConnectionSettings) error {
	return f.testErr
}

// fakeHasher keeps passwords recoverable so tests can assert without bcrypt
// cost.
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return fmt.Errorf("hash mismatch")
	}
	return nil
}

type fakeTokens struct {
	mu sync.Mutex
	n  int
}

func (f *fakeTokens) NewToken() (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	raw := fmt.Sprintf("token-%d", f.n)
	return raw, f.HashToken(raw), nil
}

func (f *fakeTokens) HashToken(raw string) string {
	return "hash-" + raw
}

func (f *fakeTokens) NewCSRFToken() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("csrf-%d", f.n), nil
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	f.counts[key]++
	return f.counts[key], window / 2, nil
}

type fixture struct {
	service  *Service
	accounts *fakeAccounts
	sessions *fakeSessions
	attempts *fakeLoginAttempts
	settings *fakeSettings
	history  *fakeHistory
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := newFakeAccounts()
	sessions := newFakeSessions()
	attempts := &fakeLoginAttempts{}
	settings := &fakeSettings{}
	history := &fakeHistory{}

	svc, err := NewService(Dependencies{
		Accounts:      accounts,
		Sessions:      sessions,
		LoginAttempts: attempts,
		Settings:      settings,
		History:       history,
		Hasher:        fakeHasher{},
		Tokens:        &fakeTokens{},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{
		SessionTTL:        8 * time.Hour,
		ExportMaxRows:     10000,
		BootstrapUsername: "admin",
		BootstrapPassword: "admin",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.nowFn = func() time.Time { return now }

	return &fixture{
		service:  svc,
		accounts: accounts,
		sessions: sessions,
		attempts: attempts,
		settings: settings,
		history:  history,
		now:      now,
	}
}

func (f *fixture) seedAccount(t *testing.T, username, password string, role domain.Role, allowed []string) domain.Account {
	t.Helper()
	account, err := f.accounts.Create(context.Background(), ports.CreateAccountParams{
		Username:             strings.ToLower(username),
		PasswordHash:         "hashed:" + password,
		Role:                 role,
		AllowedExternalUsers: allowed,
		CreatedAt:            f.now,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", username, err)
	}
	return account
}

func (f *fixture) seedSettings() {
	_ = f.settings.Put(context.Background(), domain.ConnectionSettings{
		BaseURL: "http://tautulli.local:8181",
		APIKey:  "apikey",
	})
}

func (f *fixture) login(t *testing.T, username, password string) LoginResult {
	t.Helper()
	res, err := f.service.Login(context.Background(), LoginInput{
		Username:  username,
		Password:  password,
		IPAddress: "127.0.0.1",
		UserAgent: "unit-test",
	})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res
}
