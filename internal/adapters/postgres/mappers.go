package postgres

import (
	"encoding/json"

	"github.com/watchstack/tautulli-exporter/internal/domain"
)

func accountToDomain(m accountModel) (domain.Account, error) {
	allowed := []string{}
	if m.AllowedExternalUsers != "" {
		if err := json.Unmarshal([]byte(m.AllowedExternalUsers), &allowed); err != nil {
			return domain.Account{}, err
		}
	}
	return domain.Account{
		AccountID:            m.AccountID,
		Username:             m.Username,
		PasswordHash:         m.PasswordHash,
		Role:                 domain.Role(m.Role),
		IsActive:             m.IsActive,
		MustChangePassword:   m.MustChangePassword,
		AllowedExternalUsers: allowed,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}, nil
}

func allowedToJSON(allowed []string) (string, error) {
	if allowed == nil {
		allowed = []string{}
	}
	raw, err := json.Marshal(allowed)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func sessionToDomain(m sessionModel) domain.Session {
	return domain.Session{
		SessionID: m.SessionID,
		AccountID: m.AccountID,
		TokenHash: m.TokenHash,
		CSRFToken: m.CSRFToken,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func attemptToDomain(m loginAttemptModel) domain.LoginAttempt {
	return domain.LoginAttempt{
		ID:            m.ID,
		AccountID:     m.AccountID,
		AttemptAt:     m.AttemptAt,
		IPAddress:     m.IPAddress,
		Status:        m.Status,
		FailureReason: m.FailureReason,
		UserAgent:     m.UserAgent,
	}
}
