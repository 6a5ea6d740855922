package types

import "fmt"

// SessionStatus represents the lifecycle state of a quiz session
type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "created"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// AllSessionStatuses returns all valid session statuses
func AllSessionStatuses() []SessionStatus {
	return []SessionStatus{
		SessionStatusCreated,
		SessionStatusActive,
		SessionStatusCompleted,
		SessionStatusAbandoned,
	}
}

// IsValid checks if the session status is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusCreated,
		SessionStatusActive,
		SessionStatusCompleted,
		SessionStatusAbandoned:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed.
// Abandoned is irreversible; a new session must be created to resume.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusAbandoned
}

// String returns the string representation of the session status
func (s SessionStatus) String() string {
	return string(s)
}

// ParseSessionStatus parses a string into a SessionStatus
func ParseSessionStatus(s string) (SessionStatus, error) {
	status := SessionStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid session status: %s", s)
	}
	return status, nil
}
