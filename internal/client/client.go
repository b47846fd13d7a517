// Package client wires the token authority, REST gateway, event
// channel, and chat channel into one supervised gateway for a single
// account.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/availex/twitch-gateway-go/internal/cache"
	"github.com/availex/twitch-gateway-go/internal/chat"
	"github.com/availex/twitch-gateway-go/internal/config"
	"github.com/availex/twitch-gateway-go/internal/dispatch"
	"github.com/availex/twitch-gateway-go/internal/eventsub"
	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
	"github.com/availex/twitch-gateway-go/internal/rest"
	"github.com/availex/twitch-gateway-go/internal/token"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

const userCacheTTL = 10 * time.Minute

// Client is the top-level gateway for one Twitch account.
type Client struct {
	cfg      *config.Config
	log      *logger.Logger
	clock    clockwork.Clock
	auth     *token.Authority
	gw       *rest.Gateway
	registry *dispatch.Registry
	events   *eventsub.Channel
	chat     *chat.Channel

	userCache *cache.Cache[string, model.User]

	readyOnce sync.Once
	readyCh   chan struct{}
}

// New builds a Client from configuration. Event handlers must be
// registered on Registry() before Run, since the subscription set is
// computed from them once at startup.
func New(cfg *config.Config, log *logger.Logger) *Client {
	clock := clockwork.NewRealClock()

	auth := token.New(token.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		Clock:        clock,
	}, log)

	gw := rest.New(auth, log, rest.Options{Clock: clock})

	return &Client{
		cfg:       cfg,
		log:       log,
		clock:     clock,
		auth:      auth,
		gw:        gw,
		registry:  dispatch.New(log),
		userCache: cache.New[string, model.User](userCacheTTL, 512, clock),
		readyCh:   make(chan struct{}),
	}
}

// Registry returns the event registry for handler registration.
func (c *Client) Registry() *dispatch.Registry { return c.registry }

// Token returns the token authority.
func (c *Client) Token() *token.Authority { return c.auth }

// REST returns the underlying REST gateway.
func (c *Client) REST() *rest.Gateway { return c.gw }

// Session returns the current event session snapshot, nil when the
// event channel is down or not started.
func (c *Client) Session() *model.Session {
	if c.events == nil {
		return nil
	}
	return c.events.Session()
}

// Rooms returns the currently joined chat rooms.
func (c *Client) Rooms() map[string]model.ChatRoom {
	if c.chat == nil {
		return nil
	}
	return c.chat.Rooms()
}

// Say queues a chat message for the given room.
func (c *Client) Say(ctx context.Context, room, text string) error {
	if c.chat == nil {
		return errors.New("chat channel not running")
	}
	return c.chat.Say(ctx, room, text)
}

// Reply queues a threaded chat reply.
func (c *Client) Reply(ctx context.Context, room, parentID, text string) error {
	if c.chat == nil {
		return errors.New("chat channel not running")
	}
	return c.chat.Reply(ctx, room, parentID, text)
}

// JoinRoom joins an additional chat room at runtime.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	if c.chat == nil {
		return errors.New("chat channel not running")
	}
	return c.chat.Join(ctx, room)
}

// PartRoom leaves a chat room.
func (c *Client) PartRoom(ctx context.Context, room string) error {
	if c.chat == nil {
		return errors.New("chat channel not running")
	}
	return c.chat.Part(ctx, room)
}

// FollowedChannels lists every channel the authenticated user follows,
// walking the paginated endpoint to exhaustion.
func (c *Client) FollowedChannels(ctx context.Context) ([]model.FollowedChannel, error) {
	p := c.gw.GetFollowedChannels(c.auth.UserID())
	var channels []model.FollowedChannel
	for {
		page, err := p.Next(ctx)
		if errors.Is(err, twitcherr.ErrEndOfResults) {
			return channels, nil
		}
		if err != nil {
			return nil, err
		}
		channels = append(channels, page...)
	}
}

// UserByLogin resolves a user by login name, serving repeat lookups
// from a short-lived cache.
func (c *Client) UserByLogin(ctx context.Context, login string) (model.User, error) {
	if u, ok := c.userCache.Get(login); ok {
		return u, nil
	}

	users, err := c.gw.GetUsers(ctx, []string{login})
	if err != nil {
		return model.User{}, err
	}
	if len(users) == 0 {
		return model.User{}, fmt.Errorf("user %q not found", login)
	}
	c.userCache.Set(login, users[0])
	return users[0], nil
}

// WaitUntilReady blocks until the first event session is live and
// subscriptions are in place, or the context ends.
func (c *Client) WaitUntilReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run validates credentials, starts the token keep-alive and both
// channels, and blocks until the context ends or a credential failure
// takes the account down. A fatal failure of one channel that does not
// invalidate the token stops that channel only.
func (c *Client) Run(ctx context.Context) error {
	if err := c.auth.Validate(ctx, true); err != nil {
		return fmt.Errorf("initial credential check: %w", err)
	}
	c.log.Info("Authenticated", "login", c.auth.Login(), "user_id", c.auth.UserID())

	c.auth.OnRefresh(func(s token.State) {
		c.log.Event(ctx, model.EventTokenRefreshed, "Token refreshed")
		c.registry.Dispatch(ctx, "token_refreshed", nil)
	})

	descs, unknown := model.BuildDescriptors(append(c.cfg.Events, c.registry.SubscribableEvents()...))
	for _, name := range unknown {
		c.log.Warn("Ignoring unknown event name in config", "event", name)
	}

	reconnect := c.cfg.ShouldReconnect()
	c.events = eventsub.New(c.gw, c.auth, c.registry, descs, c.log, eventsub.Options{
		Reconnect: reconnect,
		Clock:     c.clock,
		OnReady: func(sess model.Session) {
			c.readyOnce.Do(func() {
				c.log.Event(ctx, model.EventReady, "Gateway ready", "session", sess.ID)
				c.registry.Dispatch(ctx, "ready", sess)
				close(c.readyCh)
			})
		},
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.auth.KeepAlive(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	})

	g.Go(func() error {
		return c.superviseChannel(ctx, "events", c.events.Run)
	})

	if len(c.cfg.Chat.Rooms) > 0 {
		c.chat = chat.New(c.gw, c.auth, c.registry, c.log, chat.Options{
			Reconnect:   reconnect,
			Rooms:       c.cfg.Chat.Rooms,
			QueueSize:   c.cfg.Chat.QueueSize,
			MaxInFlight: c.cfg.Chat.MaxInFlight,
			MinInterval: c.cfg.Chat.MinSendInterval,
			Clock:       c.clock,
		})
		g.Go(func() error {
			return c.superviseChannel(ctx, "chat", c.chat.Run)
		})
	}

	err := g.Wait()
	c.gw.Close()
	return err
}

// superviseChannel runs one channel to completion. Credential failures
// propagate and take the whole client down; any other terminal error
// is contained to the channel that hit it.
func (c *Client) superviseChannel(ctx context.Context, name string, run func(context.Context) error) error {
	err := run(ctx)
	if err == nil || ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, twitcherr.ErrInvalidCredentials) || errors.Is(err, twitcherr.ErrUnauthorized) {
		return fmt.Errorf("%s channel: %w", name, err)
	}
	c.log.Error("Channel stopped", "channel", name, "error", err)
	return nil
}

// Close releases the REST gateway and stops reconnect attempts.
func (c *Client) Close() {
	c.gw.Close()
}
