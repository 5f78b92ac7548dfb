package application

import "github.com/watchstack/tautulli-exporter/internal/domain"

// scopeRecords drops every record the account may not see. Admins pass
// everything through; other roles keep only rows whose source username is on
// the allow-list. Upstream ordering is preserved.
//
// Scoping runs before any caller-supplied filter so a filter cannot be used
// to probe usernames outside the caller's scope.
func scopeRecords(account domain.Account, records []domain.ExternalRecord) []domain.ExternalRecord {
	if account.Role == domain.RoleAdmin {
		return records
	}
	scoped := make([]domain.ExternalRecord, 0, len(records))
	for _, record := range records {
		if account.MaySee(record.SourceUsername) {
			scoped = append(scoped, record)
		}
	}
	return scoped
}

// scopeUsers filters the Tautulli user directory the same way.
func scopeUsers(account domain.Account, users []domain.ExternalUser) []domain.ExternalUser {
	if account.Role == domain.RoleAdmin {
		return users
	}
	scoped := make([]domain.ExternalUser, 0, len(users))
	for _, user := range users {
		if account.MaySee(user.FriendlyName) {
			scoped = append(scoped, user)
		}
	}
	return scoped
}
