// Package token implements the OAuth2 token lifecycle: validation,
// single-flight refresh, and a proactive background refresh scheduler.
// The access token underpins both WebSocket channels, so all mutation
// happens here and consumers only ever read.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/availex/twitch-gateway-go/internal/constants"
	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

// State is an immutable snapshot of the current token.
type State struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Login        string
	Scopes       []string
}

// Expiring reports whether the token carries a real expiry. Some
// first-party tokens report expires_in=0 and never expire.
func (s State) Expiring() bool { return !s.ExpiresAt.IsZero() }

// Options configures an Authority.
type Options struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string

	// ValidateURL and TokenURL default to the public OAuth2 endpoints.
	ValidateURL string
	TokenURL    string

	HTTPClient *http.Client
	Clock      clockwork.Clock
}

// Authority holds the token state and is its sole mutator. It is safe
// for concurrent use.
type Authority struct {
	mu    sync.RWMutex
	state State

	// refreshMu serializes refresh attempts from the proactive
	// scheduler and reactive 401 handlers.
	refreshMu       sync.Mutex
	lastRefresh     time.Time
	refreshDisabled bool

	clientID     string
	clientSecret string
	validateURL  string
	tokenURL     string

	httpClient *http.Client
	clock      clockwork.Clock
	log        *logger.Logger

	listeners []func(State)
}

// New creates an Authority from the given options.
func New(opts Options, log *logger.Logger) *Authority {
	if opts.ValidateURL == "" {
		opts.ValidateURL = constants.OAuthValidateURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = constants.OAuthTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Authority{
		state: State{
			AccessToken:  opts.AccessToken,
			RefreshToken: opts.RefreshToken,
		},
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		validateURL:  opts.ValidateURL,
		tokenURL:     opts.TokenURL,
		httpClient:   opts.HTTPClient,
		clock:        opts.Clock,
		log:          log,
	}
}

// AccessToken returns the current access token.
func (a *Authority) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.AccessToken
}

// ClientID returns the OAuth client id.
func (a *Authority) ClientID() string { return a.clientID }

// UserID returns the authenticated user's id, empty before the first
// successful validation.
func (a *Authority) UserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.UserID
}

// Login returns the authenticated user's login name.
func (a *Authority) Login() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Login
}

// Snapshot returns a copy of the current token state.
func (a *Authority) Snapshot() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// OnRefresh registers fn to be called with the new state after every
// successful refresh, e.g. to persist tokens externally.
func (a *Authority) OnRefresh(fn func(State)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Validate checks the access token against the validation endpoint.
// On rejection with generate set and a refresh path available, it
// refreshes once and validates exactly once more. Repeated failure is
// twitcherr.ErrInvalidCredentials.
func (a *Authority) Validate(ctx context.Context, generate bool) error {
	err := a.validateOnce(ctx)
	if err == nil {
		return nil
	}
	if !twitcherr.IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	if !generate || !a.canRefresh() {
		return fmt.Errorf("%w: %v", twitcherr.ErrInvalidCredentials, err)
	}

	if err := a.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: refresh failed: %v", twitcherr.ErrInvalidCredentials, err)
	}
	if err := a.validateOnce(ctx); err != nil {
		return fmt.Errorf("%w: token still rejected after refresh: %v", twitcherr.ErrInvalidCredentials, err)
	}
	return nil
}

// Refresh exchanges the refresh token for a new access token,
// overwrites the state, and notifies listeners. A 400 response marks
// the refresh token as permanently invalid. Refreshes are
// single-flight: a request arriving within the dedup window of a
// completed refresh is treated as satisfied by it.
func (a *Authority) Refresh(ctx context.Context) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	if a.clock.Since(a.lastRefresh) < constants.TokenRefreshDedupWindow && !a.lastRefresh.IsZero() {
		a.log.Debug("Skipping refresh, another refresh just completed")
		return nil
	}

	a.mu.RLock()
	refreshToken := a.state.RefreshToken
	disabled := a.refreshDisabled
	a.mu.RUnlock()

	if disabled || refreshToken == "" || a.clientSecret == "" {
		return fmt.Errorf("no refresh path available: %w", twitcherr.ErrInvalidCredentials)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// The refresh token itself is dead.
		a.mu.Lock()
		a.refreshDisabled = true
		a.state.RefreshToken = ""
		a.mu.Unlock()
		a.log.Error("Refresh token rejected, disabling token refresh")
		return &twitcherr.HTTPError{Status: resp.StatusCode, Message: "refresh token rejected"}
	}
	if resp.StatusCode != http.StatusOK {
		return &twitcherr.HTTPError{Status: resp.StatusCode, Message: "token refresh failed"}
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding refresh response: %w", err)
	}

	a.mu.Lock()
	a.state.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		a.state.RefreshToken = result.RefreshToken
	}
	if result.ExpiresIn > 0 {
		a.state.ExpiresAt = a.clock.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	state := a.state
	listeners := append([]func(State){}, a.listeners...)
	a.mu.Unlock()

	a.lastRefresh = a.clock.Now()
	a.log.Info("Access token refreshed", "expires_at", state.ExpiresAt.Format(time.RFC3339))

	for _, fn := range listeners {
		fn(state)
	}
	return nil
}

// retryPause spaces keep-alive iterations when the token is inside the
// refresh lead window but refreshing did not move the expiry out.
const retryPause = 30 * time.Second

// KeepAlive proactively refreshes the token before expiry. It runs
// until the context is cancelled; failures other than a rejected
// refresh token are logged and the loop continues with the old token.
func (a *Authority) KeepAlive(ctx context.Context) error {
	first := true
	for {
		sleep := a.nextRefreshIn()
		if !first && sleep < retryPause {
			// A failed refresh leaves the old expiry in place; pace the
			// retries instead of hammering the endpoints until expiry.
			sleep = retryPause
		}
		first = false
		a.log.Debug("Token keep-alive scheduled", "sleep", sleep.Round(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(sleep):
		}

		if a.canRefresh() {
			if err := a.Refresh(ctx); err != nil {
				if twitcherr.IsBadRequest(err) {
					a.log.Error("Proactive refresh failed permanently", "error", err)
				} else {
					a.log.Warn("Proactive refresh failed, keeping old token", "error", err)
				}
			}
		}

		if err := a.Validate(ctx, false); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Warn("Token revalidation failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.clock.After(retryPause):
			}
		}
	}
}

func (a *Authority) canRefresh() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.refreshDisabled && a.state.RefreshToken != "" && a.clientSecret != ""
}

// nextRefreshIn computes the sleep until the next proactive refresh:
// five minutes before expiry, capped at 59 minutes when the token has
// no usable expiry or no refresh path.
func (a *Authority) nextRefreshIn() time.Duration {
	a.mu.RLock()
	expiresAt := a.state.ExpiresAt
	a.mu.RUnlock()

	if expiresAt.IsZero() {
		return constants.TokenRefreshCap
	}

	sleep := a.clock.Until(expiresAt) - constants.TokenRefreshLead
	if sleep < 0 {
		sleep = 0
	}
	if !a.canRefresh() && sleep > constants.TokenRefreshCap {
		sleep = constants.TokenRefreshCap
	}
	return sleep
}

// validateOnce calls the validation endpoint a single time and updates
// the identity and expiry on success.
func (a *Authority) validateOnce(ctx context.Context) error {
	a.mu.RLock()
	accessToken := a.state.AccessToken
	a.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.validateURL, nil)
	if err != nil {
		return fmt.Errorf("creating validate request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("validating token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &twitcherr.HTTPError{Status: resp.StatusCode, Message: "token validation failed"}
	}

	var result struct {
		ClientID  string   `json:"client_id"`
		Login     string   `json:"login"`
		UserID    string   `json:"user_id"`
		Scopes    []string `json:"scopes"`
		ExpiresIn int      `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding validate response: %w", err)
	}

	a.mu.Lock()
	a.state.Login = result.Login
	a.state.UserID = result.UserID
	a.state.Scopes = result.Scopes
	if result.ExpiresIn > 0 {
		a.state.ExpiresAt = a.clock.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	} else {
		// Legacy first-party tokens report expires_in=0 and cannot be
		// refreshed; drop the refresh path and treat as non-expiring.
		a.state.ExpiresAt = time.Time{}
		a.state.RefreshToken = ""
	}
	a.mu.Unlock()

	return nil
}
