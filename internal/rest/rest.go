// Package rest implements the HTTP gateway to the Twitch Helix API:
// bounded retry on transient failures, a single retry-after-reauth path
// on token invalidation, WebSocket dialing, and EventSub subscription
// management.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/availex/twitch-gateway-go/internal/constants"
	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/token"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

// Route identifies one Helix REST call.
type Route struct {
	Method string
	Path   string
	Query  url.Values
}

// URL joins the route onto the API base.
func (r Route) URL(base string) string {
	u := base + "/" + strings.TrimPrefix(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

// Options configures a Gateway.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Clock      clockwork.Clock
}

// Gateway is the Helix HTTP client shared by the channels. It is safe
// for concurrent use.
type Gateway struct {
	httpClient *http.Client
	transport  *http.Transport
	baseURL    string
	token      token.Provider
	log        *logger.Logger
	clock      clockwork.Clock

	mu          sync.RWMutex
	forceClosed bool
}

// New creates a Gateway with a pooled transport and the given token
// provider.
func New(tok token.Provider, log *logger.Logger, opts Options) *Gateway {
	if opts.BaseURL == "" {
		opts.BaseURL = constants.HelixURL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: transport,
			Timeout:   constants.DefaultHTTPTimeout,
		}
	}

	return &Gateway{
		httpClient: httpClient,
		transport:  transport,
		baseURL:    opts.BaseURL,
		token:      tok,
		log:        log,
		clock:      opts.Clock,
	}
}

// Close marks the gateway as terminally closed and releases pooled
// connections. Channels consult IsForceClosed to stop reconnecting.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.forceClosed = true
	g.mu.Unlock()
	g.transport.CloseIdleConnections()
}

// IsForceClosed reports whether Close has been called.
func (g *Gateway) IsForceClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.forceClosed
}

// Do executes a REST call with up to three attempts. Only server-side
// (5xx) and connection-reset failures consume a retry slot; a 401 with
// an invalid-token body triggers one validate-and-replay cycle that
// does not. The decoded JSON body is written into out when non-nil.
func (g *Gateway) Do(ctx context.Context, route Route, body any, out any) error {
	if g.IsForceClosed() {
		return fmt.Errorf("gateway closed: %w", twitcherr.ErrSessionClosed)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body for %s: %w", route.Path, err)
		}
	}

	corr := uuid.NewString()[:8]
	reauthed := false

	for attempt := 1; attempt <= constants.MaxRESTAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * constants.RESTBackoffStep
			g.log.Warn("Retrying request",
				"corr", corr, "path", route.Path,
				"attempt", fmt.Sprintf("%d/%d", attempt, constants.MaxRESTAttempts),
				"backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-g.clock.After(backoff):
			}
		}

		respBody, status, err := g.doOnce(ctx, route, payload, corr)
		if err != nil {
			if isConnReset(err) && attempt < constants.MaxRESTAttempts {
				g.log.Debug("Connection reset, will retry", "corr", corr, "path", route.Path, "error", err)
				continue
			}
			return fmt.Errorf("%s %s: %w", route.Method, route.Path, err)
		}

		switch {
		case status >= 200 && status < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("decoding response for %s: %w", route.Path, err)
				}
			}
			return nil

		case status == http.StatusUnauthorized:
			if !reauthed {
				// One re-auth cycle, then one replay. Does not consume
				// a retry slot.
				reauthed = true
				attempt--
				g.log.Warn("Token rejected, revalidating before replay", "corr", corr, "path", route.Path)
				if err := g.token.Validate(ctx, true); err != nil {
					return fmt.Errorf("re-auth for %s: %w", route.Path, err)
				}
				continue
			}
			return fmt.Errorf("%s rejected twice: %w", route.Path, twitcherr.ErrUnauthorized)

		case status >= 500:
			if attempt < constants.MaxRESTAttempts {
				continue
			}
			return httpError(status, respBody)

		default:
			return httpError(status, respBody)
		}
	}

	return fmt.Errorf("%s %s: exhausted retries", route.Method, route.Path)
}

// DialWebSocket opens an authenticated WebSocket. It requires a live
// token and an open gateway.
func (g *Gateway) DialWebSocket(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	if g.IsForceClosed() || g.token.AccessToken() == "" {
		return nil, twitcherr.ErrSessionClosed
	}

	header := http.Header{}
	header.Set("User-Agent", constants.DefaultUserAgent)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	conn.SetReadLimit(512 << 10)
	return conn, nil
}

func (g *Gateway) doOnce(ctx context.Context, route Route, payload []byte, corr string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, route.URL(g.baseURL), reader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Client-Id", g.token.ClientID())
	req.Header.Set("Authorization", "Bearer "+g.token.AccessToken())
	req.Header.Set("User-Agent", constants.DefaultUserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}

	g.log.Debug("Request completed",
		"corr", corr, "method", route.Method, "path", route.Path, "status", resp.StatusCode)
	return respBody, resp.StatusCode, nil
}

func httpError(status int, body []byte) error {
	var parsed struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)
	return &twitcherr.HTTPError{Status: status, Code: parsed.Status, Message: parsed.Message}
}

func isConnReset(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}
