package domain

import "time"

// AuthEventType represents the type of auth event
type AuthEventType string

const (
	AuthEventUserRegistered  AuthEventType = "auth.user.registered"
	AuthEventUserLoggedIn    AuthEventType = "auth.user.logged_in"
	AuthEventUserLoggedOut   AuthEventType = "auth.user.logged_out"
	AuthEventSessionsRevoked AuthEventType = "auth.user.sessions_revoked"
	AuthEventPasswordChanged AuthEventType = "auth.user.password_changed"
	AuthEventRoleChanged     AuthEventType = "auth.user.role_changed"
	AuthEventEmailVerified   AuthEventType = "auth.user.email_verified"
)

// AuthEvent is published for downstream services. It never carries secrets.
type AuthEvent struct {
	EventID    string            `json:"event_id"`
	EventType  AuthEventType     `json:"event_type"`
	UserID     string            `json:"user_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Version    int               `json:"version"`
	Data       map[string]string `json:"data,omitempty"`
}

// NewAuthEvent creates a new auth event
func NewAuthEvent(eventType AuthEventType, userID, eventID string, data map[string]string) *AuthEvent {
	return &AuthEvent{
		EventID:    eventID,
		EventType:  eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Version:    1,
		Data:       data,
	}
}

// Key returns the partition key, keeping one user's events ordered
func (e *AuthEvent) Key() string {
	return e.UserID
}
