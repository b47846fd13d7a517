package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/availex/twitch-gateway-go/internal/constants"
	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
	"github.com/availex/twitch-gateway-go/internal/rest"
	"github.com/availex/twitch-gateway-go/internal/token"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

// Dispatcher receives chat events.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload any)
}

// capRequest is the capability set requested on every connection.
const capRequest = "CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands"

// fatalNotices are NOTICE texts that indicate the credentials are bad.
// Reconnecting with the same token would fail the same way.
var fatalNotices = []string{
	"login authentication failed",
	"login unsuccessful",
	"improperly formatted auth",
	"invalid nick",
}

// Options configures a chat Channel.
type Options struct {
	URL         string
	Reconnect   bool
	Rooms       []string
	QueueSize   int
	MaxInFlight int
	MinInterval time.Duration
	Clock       clockwork.Clock

	// OnConnected is invoked after each successful authentication.
	OnConnected func()
}

// Channel owns the IRC-over-WebSocket chat connection: authentication,
// the joined-room map, inbound routing, and the rate-limited outbound
// queue. One Channel serves all configured rooms.
type Channel struct {
	gw         *rest.Gateway
	token      token.Provider
	dispatcher Dispatcher
	log        *logger.Logger
	clock      clockwork.Clock
	url        string
	reconnect  bool
	wantRooms  []string
	sender     *sender
	onReady    func()

	mu    sync.RWMutex
	conn  *websocket.Conn
	rooms map[string]model.ChatRoom
}

// New creates a chat channel that joins the given rooms on connect.
func New(gw *rest.Gateway, tok token.Provider, disp Dispatcher, log *logger.Logger, opts Options) *Channel {
	if opts.URL == "" {
		opts.URL = constants.ChatURL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = constants.ChatSendQueueSize
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = constants.ChatMaxInFlight
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = constants.ChatSendMinInterval
	}

	rooms := make([]string, 0, len(opts.Rooms))
	for _, r := range opts.Rooms {
		rooms = append(rooms, strings.ToLower(strings.TrimPrefix(r, "#")))
	}

	c := &Channel{
		gw:         gw,
		token:      tok,
		dispatcher: disp,
		log:        log,
		clock:      opts.Clock,
		url:        opts.URL,
		reconnect:  opts.Reconnect,
		wantRooms:  rooms,
		onReady:    opts.OnConnected,
		rooms:      make(map[string]model.ChatRoom),
	}
	c.sender = newSender(c.writeLine, opts.Clock, log, opts.QueueSize, opts.MaxInFlight, opts.MinInterval)
	return c
}

// Rooms returns a snapshot of the joined rooms keyed by login name.
func (c *Channel) Rooms() map[string]model.ChatRoom {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]model.ChatRoom, len(c.rooms))
	for k, v := range c.rooms {
		snapshot[k] = v
	}
	return snapshot
}

// Say queues a plain message for the given room.
func (c *Channel) Say(ctx context.Context, room, text string) error {
	return c.send(ctx, model.OutboundMessage{Room: normalizeRoom(room), Text: text})
}

// Reply queues a threaded reply to the given parent message.
func (c *Channel) Reply(ctx context.Context, room, parentID, text string) error {
	return c.send(ctx, model.OutboundMessage{Room: normalizeRoom(room), ReplyTo: parentID, Text: text})
}

// Join joins an additional room and remembers it for future
// reconnects.
func (c *Channel) Join(ctx context.Context, room string) error {
	room = normalizeRoom(room)
	c.mu.Lock()
	if !contains(c.wantRooms, room) {
		c.wantRooms = append(c.wantRooms, room)
	}
	c.mu.Unlock()
	return c.writeLine(ctx, "JOIN #"+room)
}

// Part leaves a room and drops it from the rejoin set.
func (c *Channel) Part(ctx context.Context, room string) error {
	room = normalizeRoom(room)
	c.mu.Lock()
	for i, r := range c.wantRooms {
		if r == room {
			c.wantRooms = append(c.wantRooms[:i], c.wantRooms[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return c.writeLine(ctx, "PART #"+room)
}

func contains(rooms []string, room string) bool {
	for _, r := range rooms {
		if r == room {
			return true
		}
	}
	return false
}

func (c *Channel) send(ctx context.Context, msg model.OutboundMessage) error {
	c.mu.RLock()
	_, joined := c.rooms[msg.Room]
	c.mu.RUnlock()
	if !joined {
		return fmt.Errorf("room %q is not joined", msg.Room)
	}
	return c.sender.enqueue(ctx, msg)
}

// Run connects and serves the chat protocol until the context is
// canceled or a fatal condition occurs. Recoverable disconnects retry
// with a linear backoff whose counter free-runs 1..6 and wraps.
func (c *Channel) Run(ctx context.Context) error {
	senderCtx, stopSender := context.WithCancel(ctx)
	defer stopSender()
	go c.sender.run(senderCtx)

	retry := 0
	for {
		err := c.runConnection(ctx)
		c.teardown()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isFatalChat(err) {
			return err
		}
		if !c.reconnect || c.gw.IsForceClosed() {
			return err
		}

		retry = retry%constants.ChatRetryCycle + 1
		backoff := time.Duration(retry) * constants.ReconnectBackoffStep
		c.log.Warn("Chat disconnected, reconnecting", "retry", retry, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(backoff):
		}
	}
}

func isFatalChat(err error) bool {
	return errors.Is(err, twitcherr.ErrUnauthorized) ||
		errors.Is(err, twitcherr.ErrInvalidCredentials) ||
		errors.Is(err, twitcherr.ErrSessionClosed)
}

// runConnection dials, authenticates, and serves lines until the
// socket dies or a protocol condition ends it.
func (c *Channel) runConnection(ctx context.Context) error {
	if c.token.AccessToken() == "" {
		return fmt.Errorf("chat connect without a token: %w", twitcherr.ErrSessionClosed)
	}

	conn, err := c.gw.DialWebSocket(ctx, c.url)
	if err != nil {
		return err
	}
	c.setConn(conn)
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	if err := c.authenticate(ctx, conn); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("chat read: %w", err)
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			if err := c.handleLine(ctx, conn, parseIRC(line)); err != nil {
				return err
			}
		}
	}
}

// authenticate runs the CAP/PASS/NICK handshake. The server answers a
// bad token with a NOTICE, which handleLine surfaces as fatal.
func (c *Channel) authenticate(ctx context.Context, conn *websocket.Conn) error {
	login := strings.ToLower(c.token.Login())
	lines := []string{
		capRequest,
		"PASS oauth:" + c.token.AccessToken(),
		"NICK " + login,
	}
	for _, line := range lines {
		if err := writeRaw(ctx, conn, line); err != nil {
			return fmt.Errorf("chat handshake: %w", err)
		}
	}
	return nil
}

// handleLine routes one inbound IRC message.
func (c *Channel) handleLine(ctx context.Context, conn *websocket.Conn, msg ircMessage) error {
	switch msg.Command {
	case "PING":
		// Answered immediately, outside the rate limiter.
		return writeRaw(ctx, conn, "PONG :"+msg.Text)

	case "GLOBALUSERSTATE":
		// Authentication is final once the global user state arrives;
		// the 001 numeric alone can still be followed by an auth NOTICE.
		c.log.Event(ctx, model.EventChatConnected, "Chat authenticated", "login", c.token.Login())
		c.dispatcher.Dispatch(ctx, "chat_connected", nil)
		if c.onReady != nil {
			c.onReady()
		}
		return c.joinAll(ctx, conn)

	case "USERSTATE":
		// USERSTATE confirms the join; the JOIN echo only arrives when
		// the membership capability was granted. It also follows every
		// sent message, so only the first one per room counts.
		if msg.Channel != "" && c.confirmRoom(msg.Channel) {
			c.log.Info("Joined room", "room", msg.Channel)
			c.dispatcher.Dispatch(ctx, "room_joined", msg.Channel)
		}

	case "PRIVMSG":
		c.handlePrivmsg(ctx, msg)

	case "WHISPER":
		c.log.Event(ctx, model.EventWhisper, "Whisper received", "from", msg.Nick)
		c.dispatcher.Dispatch(ctx, "whisper_received", model.Whisper{
			UserID:      msg.Tags["user-id"],
			UserLogin:   msg.Nick,
			DisplayName: msg.Tags["display-name"],
			Text:        msg.Text,
		})

	case "PART":
		if msg.Nick == strings.ToLower(c.token.Login()) {
			c.removeRoom(msg.Channel)
			c.log.Info("Left room", "room", msg.Channel)
			c.dispatcher.Dispatch(ctx, "room_left", msg.Channel)
		}

	case "ROOMSTATE":
		c.setRoomID(msg.Channel, msg.Tags["room-id"])

	case "NOTICE":
		return c.handleNotice(msg)

	case "RECONNECT":
		return errors.New("server requested chat reconnect")

	case "001", "JOIN", "CAP", "353", "366":
		c.log.Debug("Chat control line", "command", msg.Command)

	default:
		c.log.Debug("Unhandled chat line", "command", msg.Command)
	}
	return nil
}

func (c *Channel) handlePrivmsg(ctx context.Context, msg ircMessage) {
	chatMsg := model.ChatMessage{
		ID:           msg.Tags["id"],
		Channel:      msg.Channel,
		UserID:       msg.Tags["user-id"],
		UserLogin:    msg.Nick,
		DisplayName:  msg.Tags["display-name"],
		Text:         msg.Text,
		Badges:       parseBadges(msg.Tags["badges"]),
		Color:        msg.Tags["color"],
		IsModerator:  msg.Tags["mod"] == "1",
		IsSubscriber: msg.Tags["subscriber"] == "1",
		SentAt:       tagTimestamp(msg.Tags),
	}
	c.dispatcher.Dispatch(ctx, "chat_message", chatMsg)
}

// handleNotice classifies a NOTICE: authentication failures are fatal,
// tagged server notices (rate limiting, missing permissions, suspended
// rooms) are informational, and untagged unknown notices surface as a
// permission error.
func (c *Channel) handleNotice(msg ircMessage) error {
	text := strings.ToLower(msg.Text)
	for _, fatal := range fatalNotices {
		if strings.Contains(text, fatal) {
			return fmt.Errorf("chat notice %q: %w", msg.Text, twitcherr.ErrUnauthorized)
		}
	}

	if msg.Tags["msg-id"] != "" ||
		strings.Contains(text, "sending messages too quickly") ||
		strings.Contains(text, "permission") {
		c.log.Info("Chat notice", "room", msg.Channel, "msg-id", msg.Tags["msg-id"], "text", msg.Text)
		return nil
	}

	return fmt.Errorf("chat notice %q: %w", msg.Text,
		&twitcherr.HTTPError{Status: 403, Message: msg.Text})
}

// joinAll issues a single JOIN for every remembered room.
func (c *Channel) joinAll(ctx context.Context, conn *websocket.Conn) error {
	c.mu.RLock()
	channels := make([]string, len(c.wantRooms))
	for i, room := range c.wantRooms {
		channels[i] = "#" + room
	}
	c.mu.RUnlock()

	if len(channels) == 0 {
		return nil
	}
	sort.Strings(channels)
	return writeRaw(ctx, conn, "JOIN "+strings.Join(channels, ","))
}

// confirmRoom records a server-confirmed join. It reports whether the
// room was newly added.
func (c *Channel) confirmRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = model.ChatRoom{BroadcasterName: room, JoinedAt: c.clock.Now()}
	return true
}

func (c *Channel) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *Channel) setRoomID(room, id string) {
	c.mu.Lock()
	if r, ok := c.rooms[room]; ok && id != "" {
		r.BroadcasterID = id
		c.rooms[room] = r
	}
	c.mu.Unlock()
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// teardown clears the connection and the room map after a disconnect.
func (c *Channel) teardown() {
	c.mu.Lock()
	c.conn = nil
	c.rooms = make(map[string]model.ChatRoom)
	c.mu.Unlock()
}

// writeLine is the sender's write hook; it targets whatever connection
// is current at send time.
func (c *Channel) writeLine(ctx context.Context, line string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("chat not connected")
	}
	return writeRaw(ctx, conn, line)
}

func writeRaw(ctx context.Context, conn *websocket.Conn, line string) error {
	return conn.Write(ctx, websocket.MessageText, []byte(line+"\r\n"))
}

func normalizeRoom(room string) string {
	return strings.ToLower(strings.TrimPrefix(room, "#"))
}
