package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the username or the password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is surfaced to callers as ErrInvalidCredentials; it
	// exists so the audit trail and logs can record the real cause.
	ErrAccountInactive = errors.New("account inactive")
	// ErrPasswordChangeRequired gates every capability-bearing operation while
	// an account still carries its bootstrap or admin-reset password.
	ErrPasswordChangeRequired = errors.New("password change required")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrRateLimited            = errors.New("rate limited")
	// ErrLastAdmin rejects any account mutation that would leave the service
	// with zero active admins and therefore no way to administer it.
	ErrLastAdmin = errors.New("cannot remove the last active admin account")
	// ErrDuplicateUsername reports a case-insensitive username collision.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrExportUpstream is the terminal export failure after the single
	// retry against Tautulli has also failed.
	ErrExportUpstream = errors.New("upstream history service failed")
	// ErrExportLimit rejects export limits outside the configured bounds
	// before any upstream call is made.
	ErrExportLimit = errors.New("export limit out of range")
	// ErrUpstreamUnavailable is the transient connection failure returned by
	// the Tautulli adapter; the export pipeline retries it once.
	ErrUpstreamUnavailable = errors.New("history service unavailable")
	// ErrNotConfigured means the Tautulli connection settings have not been
	// saved yet, so no upstream call can be attempted.
	ErrNotConfigured = errors.New("tautulli connection is not configured")
)
