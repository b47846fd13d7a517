package model

import "time"

// SessionStatus is the lifecycle state of an EventSub WebSocket session.
type SessionStatus string

const (
	StatusConnecting      SessionStatus = "connecting"
	StatusAwaitingWelcome SessionStatus = "awaiting_welcome"
	StatusActive          SessionStatus = "active"
	StatusReconnecting    SessionStatus = "reconnecting"
	StatusClosing         SessionStatus = "closing"
	StatusDisconnected    SessionStatus = "disconnected"
)

// Session is a server-assigned EventSub WebSocket session. Sessions are
// superseded on reconnect, never mutated: during a make-before-break
// handover the old and new sessions coexist briefly.
type Session struct {
	ID               string
	KeepaliveTimeout time.Duration
	Status           SessionStatus
	ConnectedAt      time.Time
}

// ReadDeadline returns the keepalive timeout plus the given grace
// period, falling back to def when the server announced no timeout.
func (s *Session) ReadDeadline(grace, def time.Duration) time.Duration {
	if s == nil || s.KeepaliveTimeout <= 0 {
		return def + grace
	}
	return s.KeepaliveTimeout + grace
}
