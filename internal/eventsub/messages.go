// Package eventsub implements the EventSub WebSocket session protocol:
// the welcome/keepalive/reconnect/notification/revocation envelope
// handling and a make-before-break reconnect that loses no
// notifications.
package eventsub

import (
	"encoding/json"
	"time"
)

// Envelope message types pushed by the EventSub server.
const (
	TypeSessionWelcome   = "session_welcome"
	TypeSessionKeepalive = "session_keepalive"
	TypeSessionReconnect = "session_reconnect"
	TypeNotification     = "notification"
	TypeRevocation       = "revocation"
)

// Metadata describes one envelope.
type Metadata struct {
	MessageID        string    `json:"message_id"`
	MessageType      string    `json:"message_type"`
	MessageTimestamp time.Time `json:"message_timestamp"`
}

// SessionPayload is the session object carried by welcome and
// reconnect envelopes.
type SessionPayload struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
	ConnectedAt             string `json:"connected_at"`
}

// SubscriptionPayload identifies the subscription a notification or
// revocation belongs to.
type SubscriptionPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Payload is the variant body of an envelope; which fields are set
// depends on the message type.
type Payload struct {
	Session      *SessionPayload      `json:"session,omitempty"`
	Subscription *SubscriptionPayload `json:"subscription,omitempty"`
	Event        json.RawMessage      `json:"event,omitempty"`
}

// Envelope is one EventSub WebSocket message.
type Envelope struct {
	Metadata Metadata `json:"metadata"`
	Payload  Payload  `json:"payload"`
}
