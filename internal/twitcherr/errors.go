// Package twitcherr defines the error taxonomy shared by the REST
// gateway and both WebSocket channels. Channel reconnect loops classify
// failures with errors.Is/As against these types to decide between
// retrying with backoff and propagating a fatal condition.
package twitcherr

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed indicates an operation that requires a live
	// authenticated session was attempted without one.
	ErrSessionClosed = errors.New("session closed: no valid token available")

	// ErrInvalidCredentials indicates the token is invalid and no
	// refresh path remains. Fatal.
	ErrInvalidCredentials = errors.New("invalid credentials: token rejected and no refresh path available")

	// ErrUnauthorized indicates an authorization failure that survived
	// one re-auth attempt. Fatal for the operation or channel.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWebsocketUnused indicates the server closed the EventSub
	// socket because no subscription was created in time (close code
	// 4003). Never retried.
	ErrWebsocketUnused = errors.New("websocket closed as unused: no subscriptions were created")

	// ErrEndOfResults signals a paginator has no further pages.
	ErrEndOfResults = errors.New("end of results")
)

// HTTPError is a non-2xx REST response mapped to its status class.
type HTTPError struct {
	Status  int
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("twitch API error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err wraps an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool { return IsStatus(err, 403) }

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return IsStatus(err, 404) }

// IsBadRequest reports whether err is a 400 response.
func IsBadRequest(err error) bool { return IsStatus(err, 400) }

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool { return IsStatus(err, 429) }

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status >= 500
}

// RevocationError is a subscription revocation pushed by the server.
// Fatal reports whether the revocation terminates the event channel.
type RevocationError struct {
	SubscriptionID string
	EventType      string
	Status         string
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("subscription %s (%s) revoked: %s", e.SubscriptionID, e.EventType, e.Status)
}

// Fatal reports whether the revocation status terminates the channel.
// authorization_revoked and user_removed cannot be recovered by
// reconnecting; version_removed only retires one descriptor.
func (e *RevocationError) Fatal() bool {
	return e.Status == "authorization_revoked" || e.Status == "user_removed"
}
