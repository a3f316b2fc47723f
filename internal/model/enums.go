package model

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusResolved SessionStatus = "resolved"
)

// ValidStatus reports whether s is one of the known session statuses.
func ValidStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusPending, SessionStatusActive, SessionStatusResolved:
		return true
	}
	return false
}

// CanTransition validates the automatic lifecycle path: pending promotes to
// active on the first agent reply, and any non-terminal status can be
// resolved. The manual override in SessionService deliberately bypasses this.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionStatusPending:
		return to == SessionStatusActive || to == SessionStatusResolved
	case SessionStatusActive:
		return to == SessionStatusResolved
	}
	return false
}

type MessageKind string

const (
	MessageKindNormal      MessageKind = "normal"
	MessageKindSystemClose MessageKind = "system_close"
)
