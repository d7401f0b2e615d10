package models

import (
	"time"

	"github.com/google/uuid"
)

type AuthEventType string

const (
	EventRegister              AuthEventType = "register"
	EventLoginSuccess          AuthEventType = "login_success"
	EventLoginFailure          AuthEventType = "login_failure"
	EventAccountLocked         AuthEventType = "account_locked"
	EventLoginRejectedLocked   AuthEventType = "login_rejected_locked"
	EventLoginRejectedInactive AuthEventType = "login_rejected_inactive"
	EventTokenRefreshed        AuthEventType = "token_refreshed"
	EventRefreshRejected       AuthEventType = "refresh_rejected"
	EventLogout                AuthEventType = "logout"
	EventPasswordChanged       AuthEventType = "password_changed"
	EventPasswordChangeFailed  AuthEventType = "password_change_failed"
	EventUserCreated           AuthEventType = "user_created"
	EventUserDeactivated       AuthEventType = "user_deactivated"
	EventUserActivated         AuthEventType = "user_activated"
)

// AuthEvent is one row of the authentication audit trail.
type AuthEvent struct {
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	UserID    string        `json:"userId,omitempty"`
	Email     string        `json:"email,omitempty"`
	Event     AuthEventType `json:"event"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}
