package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

func TestLoginIssuesSessionAndAuditRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedAccount(t, "alice", "Sup3rsecret", domain.RoleUser, []string{"alice_plex"})

	res := f.login(t, "Alice", "Sup3rsecret")
	if res.Token == "" || res.CSRFToken == "" {
		t.Fatalf("expected token and csrf token, got %+v", res)
	}
	if got, want := res.ExpiresAt, f.now.Add(8*time.Hour); !got.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got, want)
	}

	auth, err := f.service.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if auth.Account.Username != "alice" {
		t.Fatalf("resolved account %q, want alice", auth.Account.Username)
	}

	attempt, ok := f.attempts.last()
	if !ok || attempt.Status != attemptStatusSuccess {
		t.Fatalf("expected success audit row, got %+v", attempt)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	account := f.seedAccount(t, "bob", "Sup3rsecret", domain.RoleUser, nil)

	cases := []struct {
		name     string
		username string
		password string
		reason   string
	}{
		{"unknown username", "nobody", "whatever1", failureUnknownUser},
		{"wrong password", "bob", "wrong-password1", failureWrongPassword},
	}
	for _, tc := range cases {
		_, err := f.service.Login(context.Background(), LoginInput{
			Username: tc.username, Password: tc.password, IPAddress: "127.0.0.1",
		})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%s: err = %v, want ErrInvalidCredentials", tc.name, err)
		}
		attempt, ok := f.attempts.last()
		if !ok || attempt.FailureReason != tc.reason {
			t.Fatalf("%s: audit reason = %+v, want %s", tc.name, attempt, tc.reason)
		}
	}

	// An inactive account gets the same response, with the real reason kept
	// in the audit trail and the log only.
	if err := f.accounts.Deactivate(context.Background(), account.AccountID, f.now); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	var logs bytes.Buffer
	f.service.logger = slog.New(slog.NewTextHandler(&logs, nil))
	_, err := f.service.Login(context.Background(), LoginInput{
		Username: "bob", Password: "Sup3rsecret", IPAddress: "127.0.0.1",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("inactive login err = %v, want ErrInvalidCredentials", err)
	}
	attempt, _ := f.attempts.last()
	if attempt.FailureReason != failureInactive {
		t.Fatalf("inactive audit reason = %q, want %s", attempt.FailureReason, failureInactive)
	}
	if !strings.Contains(logs.String(), domain.ErrAccountInactive.Error()) {
		t.Fatalf("log should record the inactive cause, got:\n%s", logs.String())
	}
}

func TestResolveExpiredSessionIsPurged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedAccount(t, "carol", "Sup3rsecret", domain.RoleUser, nil)
	res := f.login(t, "carol", "Sup3rsecret")

	f.service.nowFn = func() time.Time { return f.now.Add(9 * time.Hour) }

	if _, err := f.service.Resolve(context.Background(), res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("resolve after expiry err = %v, want ErrUnauthorized", err)
	}
	if f.sessions.count() != 0 {
		t.Fatalf("expired session should have been deleted")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedAccount(t, "dave", "Sup3rsecret", domain.RoleUser, nil)
	res := f.login(t, "dave", "Sup3rsecret")

	for i := 0; i < 2; i++ {
		if err := f.service.Logout(context.Background(), res.Token); err != nil {
			t.Fatalf("logout #%d: %v", i+1, err)
		}
	}
	if _, err := f.service.Resolve(context.Background(), res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("token should be dead after logout, got %v", err)
	}
}

func TestChangePasswordRotatesAndRevokesOtherSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedAccount(t, "erin", "Oldpassw0rd", domain.RoleUser, nil)

	first := f.login(t, "erin", "Oldpassw0rd")
	second := f.login(t, "erin", "Oldpassw0rd")

	auth, err := f.service.Resolve(context.Background(), second.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	res, err := f.service.ChangePassword(context.Background(), auth, ChangePasswordInput{
		OldPassword: "Oldpassw0rd",
		NewPassword: "Brandnewpass1",
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	// The other session is revoked, the old token of this session is dead,
	// and the rotated token still works.
	if _, err := f.service.Resolve(context.Background(), first.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("other session should be revoked, got %v", err)
	}
	if _, err := f.service.Resolve(context.Background(), second.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("pre-rotation token should be dead, got %v", err)
	}
	rotated, err := f.service.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("rotated token: %v", err)
	}
	if rotated.Session.CSRFToken != res.CSRFToken {
		t.Fatalf("csrf token was not rotated alongside the session token")
	}
	if rotated.Account.MustChangePassword {
		t.Fatalf("must_change_password should be cleared")
	}

	if _, err := f.service.Login(context.Background(), LoginInput{Username: "erin", Password: "Oldpassw0rd"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password should no longer authenticate")
	}
	f.login(t, "erin", "Brandnewpass1")
}

func TestChangePasswordRequiresOldPasswordAndPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedAccount(t, "frank", "Oldpassw0rd", domain.RoleUser, nil)
	res := f.login(t, "frank", "Oldpassw0rd")
	auth, err := f.service.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := f.service.ChangePassword(context.Background(), auth, ChangePasswordInput{
		OldPassword: "not-the-password",
		NewPassword: "Brandnewpass1",
	}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong old password err = %v, want ErrInvalidCredentials", err)
	}

	for _, weak := range []string{"short1", "alllowercase", "12345678", "frank"} {
		if _, err := f.service.ChangePassword(context.Background(), auth, ChangePasswordInput{
			OldPassword: "Oldpassw0rd",
			NewPassword: weak,
		}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("weak password %q err = %v, want ErrInvalidInput", weak, err)
		}
	}

	if _, err := f.service.ChangePassword(context.Background(), auth, ChangePasswordInput{
		OldPassword: "Oldpassw0rd",
		NewPassword: "Oldpassw0rd",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unchanged password err = %v, want ErrInvalidInput", err)
	}
}
