package eventsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jonboulle/clockwork"

	"github.com/availex/twitch-gateway-go/internal/constants"
	"github.com/availex/twitch-gateway-go/internal/jsonutil"
	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
	"github.com/availex/twitch-gateway-go/internal/rest"
	"github.com/availex/twitch-gateway-go/internal/token"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

// Dispatcher receives decoded notifications and lifecycle events.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload any)
}

// closeCodeText names the provider close codes for logging.
var closeCodeText = map[websocket.StatusCode]string{
	constants.CloseInternalError:         "internal server error",
	constants.CloseClientSentTraffic:     "client sent inbound traffic",
	constants.CloseFailedPing:            "client failed ping-pong",
	constants.CloseUnusedConnection:      "connection unused",
	constants.CloseReconnectGraceExpired: "reconnect grace time expired",
	constants.CloseNetworkTimeout:        "network timeout",
	constants.CloseNetworkError:          "network error",
	constants.CloseInvalidReconnect:      "invalid reconnect URL",
}

// reconnectSignal carries the server-assigned reconnect URL out of a
// failed in-session handover so the outer loop dials it immediately,
// without backoff.
type reconnectSignal struct {
	URL string
	Err error
}

func (e *reconnectSignal) Error() string {
	return fmt.Sprintf("reconnect handover to %s failed: %v", e.URL, e.Err)
}

func (e *reconnectSignal) Unwrap() error { return e.Err }

// Options configures a Channel.
type Options struct {
	URL       string
	Reconnect bool
	Clock     clockwork.Clock

	// OnReady is invoked after every welcome once the session is active
	// and subscriptions are in place.
	OnReady func(session model.Session)
}

// Channel owns one EventSub WebSocket connection and its reconnect
// loop. Subscriptions are created once per new session; a
// server-requested reconnect resumes the session and does not
// re-subscribe.
type Channel struct {
	gw         *rest.Gateway
	token      token.Provider
	dispatcher Dispatcher
	descs      []model.Descriptor
	log        *logger.Logger
	clock      clockwork.Clock
	url        string
	reconnect  bool
	onReady    func(model.Session)

	mu            sync.RWMutex
	session       *model.Session
	lastMessageID string
}

// New creates an event channel subscribing to the given descriptors.
func New(gw *rest.Gateway, tok token.Provider, disp Dispatcher, descs []model.Descriptor, log *logger.Logger, opts Options) *Channel {
	if opts.URL == "" {
		opts.URL = constants.EventSubURL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Channel{
		gw:         gw,
		token:      tok,
		dispatcher: disp,
		descs:      descs,
		log:        log,
		clock:      opts.Clock,
		url:        opts.URL,
		reconnect:  opts.Reconnect,
		onReady:    opts.OnReady,
	}
}

// Session returns a snapshot of the current session, or nil when
// disconnected.
func (c *Channel) Session() *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	snapshot := *c.session
	return &snapshot
}

func (c *Channel) setSession(s *model.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Channel) setStatus(status model.SessionStatus) {
	c.mu.Lock()
	if c.session != nil {
		c.session.Status = status
	}
	c.mu.Unlock()
}

// Run connects and serves envelopes until the context is canceled or a
// fatal condition occurs. Transient failures reconnect with a linear
// backoff whose counter free-runs 1..12 and wraps.
func (c *Channel) Run(ctx context.Context) error {
	retry := 0
	dialURL := c.url
	resume := false

	for {
		err := c.runSession(ctx, dialURL, resume)
		c.setSession(nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var sig *reconnectSignal
		if errors.As(err, &sig) && sig.URL != dialURL {
			// Dial the server-assigned URL once, immediately. A signal
			// for the URL just dialed, or a failure of the direct dial
			// itself, falls back to the default endpoint with backoff.
			c.log.Warn("Reconnect handover failed, dialing reconnect URL directly", "error", sig.Err)
			dialURL = sig.URL
			resume = true
			retry = 0
			continue
		}

		if isFatal(err) {
			return err
		}
		if !c.reconnect || c.gw.IsForceClosed() {
			return err
		}

		retry = retry%constants.EventRetryCycle + 1
		backoff := time.Duration(retry) * constants.ReconnectBackoffStep
		c.log.Warn("Event channel disconnected, reconnecting",
			"retry", retry, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(backoff):
		}
		dialURL = c.url
		resume = false
	}
}

// isFatal reports whether the error must not be retried.
func isFatal(err error) bool {
	if errors.Is(err, twitcherr.ErrWebsocketUnused) ||
		errors.Is(err, twitcherr.ErrUnauthorized) ||
		errors.Is(err, twitcherr.ErrInvalidCredentials) ||
		errors.Is(err, twitcherr.ErrSessionClosed) {
		return true
	}
	var rev *twitcherr.RevocationError
	return errors.As(err, &rev) && rev.Fatal()
}

// runSession dials, performs the welcome handshake, subscribes when
// the session is new, and serves envelopes until the socket dies.
func (c *Channel) runSession(ctx context.Context, dialURL string, resume bool) error {
	c.setSession(&model.Session{Status: model.StatusConnecting})

	conn, err := c.gw.DialWebSocket(ctx, dialURL)
	if err != nil {
		return err
	}
	// conn is reassigned on handover; close whichever socket is current.
	defer func() {
		c.setStatus(model.StatusClosing)
		conn.Close(websocket.StatusNormalClosure, "shutting down")
	}()

	c.setStatus(model.StatusAwaitingWelcome)
	sess, err := c.awaitWelcome(ctx, conn)
	if err != nil {
		return err
	}
	c.setSession(sess)
	c.log.Event(ctx, model.EventSessionWelcome, "Event session established",
		"session", sess.ID, "keepalive", sess.KeepaliveTimeout, "resumed", resume)

	if !resume {
		userID := c.token.UserID()
		if err := c.gw.CreateSubscriptions(ctx, userID, userID, sess.ID, c.descs); err != nil {
			return err
		}
	}
	if c.onReady != nil {
		c.onReady(*sess)
	}

	for {
		env, err := c.readEnvelope(ctx, conn, sess)
		if err != nil {
			return c.classifyReadError(err)
		}

		switch env.Metadata.MessageType {
		case TypeSessionKeepalive:
			// Liveness signal only; receiving it resets the read
			// deadline on the next loop iteration.

		case TypeNotification:
			c.handleNotification(ctx, env)

		case TypeRevocation:
			if err := c.handleRevocation(ctx, env); err != nil {
				return err
			}

		case TypeSessionReconnect:
			newConn, newSess, err := c.handover(ctx, conn, sess, env)
			if err != nil {
				return err
			}
			conn.Close(websocket.StatusNormalClosure, "superseded by reconnect session")
			conn = newConn
			sess = newSess
			c.setSession(sess)
			if c.onReady != nil {
				c.onReady(*sess)
			}

		default:
			c.log.Debug("Ignoring unknown envelope type",
				"type", env.Metadata.MessageType, "id", env.Metadata.MessageID)
		}
	}
}

// awaitWelcome reads the first envelope, which must be a session
// welcome, and converts it to a session.
func (c *Channel) awaitWelcome(ctx context.Context, conn *websocket.Conn) (*model.Session, error) {
	readCtx, cancel := context.WithTimeout(ctx, constants.WelcomeTimeout)
	defer cancel()

	var env Envelope
	if err := wsjson.Read(readCtx, conn, &env); err != nil {
		return nil, fmt.Errorf("waiting for session welcome: %w", err)
	}
	if env.Metadata.MessageType != TypeSessionWelcome || env.Payload.Session == nil {
		return nil, fmt.Errorf("expected session welcome, got %q", env.Metadata.MessageType)
	}

	s := env.Payload.Session
	return &model.Session{
		ID:               s.ID,
		KeepaliveTimeout: time.Duration(s.KeepaliveTimeoutSeconds) * time.Second,
		Status:           model.StatusActive,
		ConnectedAt:      c.clock.Now(),
	}, nil
}

// readEnvelope reads one envelope under the session's keepalive
// deadline. A silent server past the deadline surfaces as a read error
// and triggers a reconnect.
func (c *Channel) readEnvelope(ctx context.Context, conn *websocket.Conn, sess *model.Session) (Envelope, error) {
	deadline := sess.ReadDeadline(constants.KeepaliveGrace, constants.DefaultKeepaliveTimeout)
	readCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var env Envelope
	err := wsjson.Read(readCtx, conn, &env)
	if err != nil && ctx.Err() == nil && readCtx.Err() != nil {
		return env, fmt.Errorf("no keepalive within %s: %w", deadline, err)
	}
	return env, err
}

// classifyReadError maps a socket failure to the retry taxonomy. Close
// code 4003 means no subscription was ever attached, so reconnecting
// cannot help.
func (c *Channel) classifyReadError(err error) error {
	code := websocket.CloseStatus(err)
	if code == constants.CloseUnusedConnection {
		return fmt.Errorf("close code %d (%s): %w", code, closeCodeText[code], twitcherr.ErrWebsocketUnused)
	}
	if text, ok := closeCodeText[code]; ok {
		return fmt.Errorf("close code %d (%s): %w", code, text, err)
	}
	return err
}

// handleNotification decodes a notification and hands its event to the
// dispatcher. Consecutive duplicate message ids are dropped.
func (c *Channel) handleNotification(ctx context.Context, env Envelope) {
	if env.Payload.Subscription == nil {
		c.log.Warn("Notification without subscription payload", "id", env.Metadata.MessageID)
		return
	}

	c.mu.Lock()
	if env.Metadata.MessageID != "" && env.Metadata.MessageID == c.lastMessageID {
		c.mu.Unlock()
		c.log.Debug("Dropping duplicate notification", "id", env.Metadata.MessageID)
		return
	}
	c.lastMessageID = env.Metadata.MessageID
	c.mu.Unlock()

	name := model.EventNameForType(env.Payload.Subscription.Type)
	c.log.Debug("Notification received",
		"event", name,
		"broadcaster", jsonutil.StringFromRaw(env.Payload.Event, "broadcaster_user_login"))
	c.dispatcher.Dispatch(ctx, name, env.Payload.Event)
}

// handleRevocation retires or terminates based on the revocation
// status. version_removed retires a single subscription; the
// authorization statuses end the channel.
func (c *Channel) handleRevocation(ctx context.Context, env Envelope) error {
	sub := env.Payload.Subscription
	if sub == nil {
		return nil
	}
	rev := &twitcherr.RevocationError{
		SubscriptionID: sub.ID,
		EventType:      sub.Type,
		Status:         sub.Status,
	}
	c.log.Event(ctx, model.EventRevocation, "Subscription revoked",
		"type", sub.Type, "status", sub.Status)
	c.dispatcher.Dispatch(ctx, "revocation", rev)

	if rev.Fatal() {
		return rev
	}
	return nil
}

// handover performs the make-before-break reconnect: dial the
// server-assigned URL and wait for its welcome while the old socket
// keeps delivering. The caller closes the old socket after the new
// session is live.
func (c *Channel) handover(ctx context.Context, oldConn *websocket.Conn, oldSess *model.Session, env Envelope) (*websocket.Conn, *model.Session, error) {
	if env.Payload.Session == nil || env.Payload.Session.ReconnectURL == "" {
		return nil, nil, errors.New("session reconnect without a reconnect URL")
	}
	reconnectURL := env.Payload.Session.ReconnectURL
	c.setStatus(model.StatusReconnecting)
	c.log.Event(ctx, model.EventSessionReconnect, "Server requested reconnect", "session", oldSess.ID)

	// Keep draining the old socket so nothing sent during the grace
	// window is lost.
	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	go c.drain(drainCtx, oldConn, oldSess)

	newConn, err := c.gw.DialWebSocket(ctx, reconnectURL)
	if err != nil {
		return nil, nil, &reconnectSignal{URL: reconnectURL, Err: err}
	}

	newSess, err := c.awaitWelcome(ctx, newConn)
	if err != nil {
		newConn.Close(websocket.StatusNormalClosure, "welcome failed")
		return nil, nil, &reconnectSignal{URL: reconnectURL, Err: err}
	}
	return newConn, newSess, nil
}

// drain serves notifications from the superseded socket until it is
// closed or the handover completes.
func (c *Channel) drain(ctx context.Context, conn *websocket.Conn, sess *model.Session) {
	for {
		env, err := c.readEnvelope(ctx, conn, sess)
		if err != nil {
			return
		}
		if env.Metadata.MessageType == TypeNotification {
			c.handleNotification(ctx, env)
		}
	}
}
