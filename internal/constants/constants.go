// Package constants defines Twitch API endpoints, default timeout and
// retry values, EventSub close codes, and chat protocol defaults used
// throughout the gateway.
package constants

import "time"

const (
	// EventSubURL is the default Twitch EventSub WebSocket endpoint.
	EventSubURL = "wss://eventsub.wss.twitch.tv/ws"
	// ChatURL is the Twitch IRC-over-WebSocket chat endpoint.
	ChatURL = "wss://irc-ws.chat.twitch.tv:443"
	// HelixURL is the base Twitch Helix REST API endpoint.
	HelixURL = "https://api.twitch.tv/helix"
	// OAuthValidateURL is the Twitch OAuth2 token validation endpoint.
	OAuthValidateURL = "https://id.twitch.tv/oauth2/validate"
	// OAuthTokenURL is the Twitch OAuth2 token exchange endpoint.
	OAuthTokenURL = "https://id.twitch.tv/oauth2/token"
)

// DefaultUserAgent is the user-agent string sent on all HTTP and
// WebSocket requests.
const DefaultUserAgent = "twitch-gateway-go/1.0 (+https://github.com/availex/twitch-gateway-go)"

const (
	// DefaultHTTPTimeout is the default timeout for REST requests.
	DefaultHTTPTimeout = 15 * time.Second
	// MaxRESTAttempts is the number of attempts for a single REST call.
	// Only server-side (5xx) and connection-reset failures are retried.
	MaxRESTAttempts = 3
	// RESTBackoffStep is the linear backoff unit between REST retries
	// (attempt number × step).
	RESTBackoffStep = 5 * time.Second
	// SubscribeWorkers is the number of concurrent workers used for the
	// initial subscription creation batch.
	SubscribeWorkers = 5
)

const (
	// ReconnectBackoffStep is the linear backoff unit between WebSocket
	// reconnect attempts (retry counter × step).
	ReconnectBackoffStep = 5 * time.Second
	// EventRetryCycle bounds the event channel's retry counter. The
	// counter free-runs 1..EventRetryCycle while the reconnect loop is
	// active and wraps back to 1.
	EventRetryCycle = 12
	// ChatRetryCycle bounds the chat channel's retry counter.
	ChatRetryCycle = 6
	// KeepaliveGrace is added to the server-announced keepalive timeout
	// to form the event channel's read deadline.
	KeepaliveGrace = 10 * time.Second
	// DefaultKeepaliveTimeout is used before the session welcome has
	// announced the real keepalive interval.
	DefaultKeepaliveTimeout = 30 * time.Second
	// WelcomeTimeout bounds the wait for a session welcome envelope.
	WelcomeTimeout = 60 * time.Second
)

const (
	// TokenRefreshLead is how long before expiry the proactive refresh
	// fires.
	TokenRefreshLead = 5 * time.Minute
	// TokenRefreshCap bounds the proactive refresh sleep when the token
	// has no refresh path. Some first-party tokens report expires_in=0,
	// so the scheduler must not sleep forever.
	TokenRefreshCap = 59 * time.Minute
	// TokenRefreshDedupWindow is the window within which a second
	// refresh request is treated as already satisfied by the previous
	// one (single-flight across the proactive and reactive paths).
	TokenRefreshDedupWindow = 30 * time.Second
)

const (
	// ChatSendMinInterval is the default minimum spacing between
	// outbound chat lines. It is a lower bound, not an average.
	ChatSendMinInterval = 1450 * time.Millisecond
	// ChatSendQueueSize is the capacity of the outbound chat queue.
	// Producers block when the queue is full.
	ChatSendQueueSize = 10
	// ChatMaxInFlight bounds the number of concurrently pending sends.
	ChatMaxInFlight = 10
)

// EventSub WebSocket close codes.
const (
	// CloseInternalError indicates a server-side failure.
	CloseInternalError = 4000
	// CloseClientSentTraffic indicates the client sent a non-pong
	// inbound message.
	CloseClientSentTraffic = 4001
	// CloseFailedPing indicates the client failed the ping/pong
	// exchange.
	CloseFailedPing = 4002
	// CloseUnusedConnection indicates no subscription was created
	// within the grace window. Fatal: retrying without a subscription
	// hits the same wall.
	CloseUnusedConnection = 4003
	// CloseReconnectGraceExpired indicates the client did not complete
	// a requested reconnect in time.
	CloseReconnectGraceExpired = 4004
	// CloseNetworkTimeout indicates a transport-level timeout.
	CloseNetworkTimeout = 4005
	// CloseNetworkError indicates a transport-level failure.
	CloseNetworkError = 4006
	// CloseInvalidReconnect indicates the client reconnected to an
	// invalid reconnect URL.
	CloseInvalidReconnect = 4007
)
