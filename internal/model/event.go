package model

// Event identifies a notable gateway occurrence for logging and
// dispatch purposes.
type Event string

const (
	EventReady            Event = "READY"
	EventSessionWelcome   Event = "SESSION_WELCOME"
	EventSessionReconnect Event = "SESSION_RECONNECT"
	EventRevocation       Event = "REVOCATION"
	EventChatConnected    Event = "CHAT_CONNECTED"
	EventChatMessage      Event = "CHAT_MESSAGE"
	EventWhisper          Event = "WHISPER"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventStreamOnline     Event = "STREAM_ONLINE"
	EventStreamOffline    Event = "STREAM_OFFLINE"
)
