package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

func TestCreateAccountRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := f.seedAccount(t, "root", "Adminpass1", domain.RoleAdmin, nil)
	user := f.seedAccount(t, "plain", "Userpass1", domain.RoleUser, nil)

	if _, err := f.service.CreateAccount(context.Background(), user, CreateAccountInput{
		Username: "newbie", Password: "Newbiepass1", Role: "user",
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin create err = %v, want ErrForbidden", err)
	}

	view, err := f.service.CreateAccount(context.Background(), admin, CreateAccountInput{
		Username:             "Newbie",
		Password:             "Newbiepass1",
		Role:                 "user",
		AllowedExternalUsers: []string{"newbie_plex"},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if view.Username != "newbie" {
		t.Fatalf("username not normalized: %q", view.Username)
	}
	if !view.MustChangePassword {
		t.Fatalf("admin-provisioned accounts must change their password")
	}

	if _, err := f.service.CreateAccount(context.Background(), admin, CreateAccountInput{
		Username: "NEWBIE", Password: "Otherpass1", Role: "user",
	}); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("duplicate username err = %v, want ErrDuplicateUsername", err)
	}

	if _, err := f.service.CreateAccount(context.Background(), admin, CreateAccountInput{
		Username: "weirdrole", Password: "Somepass12", Role: "superuser",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("invalid role err = %v, want ErrInvalidInput", err)
	}
}

func TestLastAdminCannotBeRemoved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := f.seedAccount(t, "root", "Adminpass1", domain.RoleAdmin, nil)

	if err := f.service.DeactivateAccount(context.Background(), admin, admin.AccountID); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("deactivate last admin err = %v, want ErrLastAdmin", err)
	}
	if err := f.service.DeleteAccount(context.Background(), admin, admin.AccountID); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("delete last admin err = %v, want ErrLastAdmin", err)
	}
	role := "user"
	if _, err := f.service.UpdateAccount(context.Background(), admin, admin.AccountID, UpdateAccountInput{
		Role: &role,
	}); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("demote last admin err = %v, want ErrLastAdmin", err)
	}

	// With a second active admin the same mutations go through.
	f.seedAccount(t, "root2", "Adminpass2", domain.RoleAdmin, nil)
	if _, err := f.service.UpdateAccount(context.Background(), admin, admin.AccountID, UpdateAccountInput{
		Role: &role,
	}); err != nil {
		t.Fatalf("demote with second admin: %v", err)
	}
}

func TestDeactivateRevokesSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := f.seedAccount(t, "root", "Adminpass1", domain.RoleAdmin, nil)
	f.seedAccount(t, "gina", "Userpass12", domain.RoleUser, nil)

	res := f.login(t, "gina", "Userpass12")
	auth, err := f.service.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if err := f.service.DeactivateAccount(context.Background(), admin, auth.Account.AccountID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.service.Resolve(context.Background(), res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("deactivated account session should not resolve, got %v", err)
	}
}

func TestEnsureBootstrapAdminSeedsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.EnsureBootstrapAdmin(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	admin, err := f.accounts.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if admin.Role != domain.RoleAdmin || !admin.MustChangePassword {
		t.Fatalf("seeded admin = %+v, want admin role with forced change", admin)
	}

	// A second run against a non-empty table is a no-op.
	if err := f.service.EnsureBootstrapAdmin(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	count, _ := f.accounts.Count(ctx)
	if count != 1 {
		t.Fatalf("account count = %d, want 1", count)
	}
}

func TestListLoginAttemptsIsAdminOnlyAudit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := f.seedAccount(t, "root", "Adminpass1", domain.RoleAdmin, nil)
	user := f.seedAccount(t, "alice", "Userpass12", domain.RoleUser, nil)

	// One failed and one successful login for alice.
	if _, err := f.service.Login(context.Background(), LoginInput{
		Username: "alice", Password: "wrong-password1", IPAddress: "10.0.0.9",
	}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("failed login err = %v, want ErrInvalidCredentials", err)
	}
	f.login(t, "alice", "Userpass12")

	if _, err := f.service.ListLoginAttempts(context.Background(), user, user.AccountID, 0, 0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin audit err = %v, want ErrForbidden", err)
	}

	attempts, err := f.service.ListLoginAttempts(context.Background(), admin, user.AccountID, 0, 0)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	// Newest first: the successful login precedes the failure.
	if attempts[0].Status != attemptStatusSuccess {
		t.Fatalf("newest attempt status = %q, want %s", attempts[0].Status, attemptStatusSuccess)
	}
	if attempts[1].Status != attemptStatusFailure || attempts[1].FailureReason != failureWrongPassword {
		t.Fatalf("older attempt = %+v, want a %s failure", attempts[1], failureWrongPassword)
	}

	page, err := f.service.ListLoginAttempts(context.Background(), admin, user.AccountID, 1, 1)
	if err != nil {
		t.Fatalf("paged audit: %v", err)
	}
	if len(page) != 1 || page[0].Status != attemptStatusFailure {
		t.Fatalf("page = %+v, want just the older failure", page)
	}

	if _, err := f.service.ListLoginAttempts(context.Background(), admin, uuid.New(), 0, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown account audit err = %v, want ErrNotFound", err)
	}
}
