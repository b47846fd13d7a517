package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/availex/twitch-gateway-go/internal/model"
	"github.com/availex/twitch-gateway-go/internal/rest"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

type stubToken struct {
	access string
}

func (s stubToken) AccessToken() string                { return s.access }
func (stubToken) ClientID() string                     { return "cid" }
func (stubToken) UserID() string                       { return "12345" }
func (stubToken) Login() string                        { return "Tester" }
func (stubToken) Validate(context.Context, bool) error { return nil }

type dispatched struct {
	name    string
	payload any
}

type recordingDispatcher struct {
	ch chan dispatched
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{ch: make(chan dispatched, 16)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, name string, payload any) {
	d.ch <- dispatched{name: name, payload: payload}
}

func (d *recordingDispatcher) await(t *testing.T, name string) dispatched {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-d.ch:
			if ev.name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", name)
		}
	}
}

func writeLines(ctx context.Context, conn *websocket.Conn, lines ...string) error {
	return conn.Write(ctx, websocket.MessageText, []byte(strings.Join(lines, "\r\n")+"\r\n"))
}

// newIRCServer runs script against each accepted connection, with the
// lines the client sends fed through inbound.
func newIRCServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn, inbound <-chan string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		inbound := make(chan string, 32)
		go func() {
			defer close(inbound)
			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					return
				}
				for _, line := range strings.Split(string(data), "\r\n") {
					if line != "" {
						inbound <- line
					}
				}
			}
		}()

		script(ctx, conn, inbound)
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func awaitLine(t *testing.T, inbound <-chan string, prefix string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-inbound:
			if !ok {
				t.Fatalf("connection closed waiting for %q", prefix)
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line %q", prefix)
		}
	}
}

func chatGateway(t *testing.T) *rest.Gateway {
	t.Helper()
	return rest.New(stubToken{access: "tok"}, senderLogger(t), rest.Options{})
}

func TestChatAuthJoinAndMessage(t *testing.T) {
	srv := newIRCServer(t, func(ctx context.Context, conn *websocket.Conn, inbound <-chan string) {
		awaitLine(t, inbound, "CAP REQ")
		pass := awaitLine(t, inbound, "PASS ")
		assert.Equal(t, "PASS oauth:tok", pass)
		nick := awaitLine(t, inbound, "NICK ")
		assert.Equal(t, "NICK tester", nick)

		writeLines(ctx, conn,
			":tmi.twitch.tv 001 tester :Welcome, GLHF!",
			"@display-name=Tester;user-id=12345 :tmi.twitch.tv GLOBALUSERSTATE",
		)

		join := awaitLine(t, inbound, "JOIN ")
		assert.Equal(t, "JOIN #roomone,#roomtwo", join)

		// No JOIN echo: the membership capability may be withheld, the
		// USERSTATE per room is the authoritative confirmation.
		writeLines(ctx, conn,
			"@mod=0 :tmi.twitch.tv USERSTATE #roomone",
			"@mod=0 :tmi.twitch.tv USERSTATE #roomtwo",
			"@room-id=777 :tmi.twitch.tv ROOMSTATE #roomone",
			"@badges=subscriber/1;display-name=Viewer;id=m-1;subscriber=1;user-id=55 :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #roomone :hello there",
		)
	})

	disp := newRecordingDispatcher()
	c := New(chatGateway(t), stubToken{access: "tok"}, disp, senderLogger(t), Options{
		URL:   strings.Replace(srv.URL, "http://", "ws://", 1),
		Rooms: []string{"RoomOne", "#roomtwo"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	disp.await(t, "chat_connected")
	disp.await(t, "room_joined")

	ev := disp.await(t, "chat_message")
	msg, ok := ev.payload.(model.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "roomone", msg.Channel)
	assert.Equal(t, "viewer", msg.UserLogin)
	assert.Equal(t, "hello there", msg.Text)
	assert.True(t, msg.IsSubscriber)

	require.Eventually(t, func() bool {
		rooms := c.Rooms()
		r, ok := rooms["roomone"]
		return ok && r.BroadcasterID == "777" && len(rooms) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestUserstateConfirmsJoinOnce(t *testing.T) {
	srv := newIRCServer(t, func(ctx context.Context, conn *websocket.Conn, inbound <-chan string) {
		awaitLine(t, inbound, "NICK ")
		writeLines(ctx, conn, ":tmi.twitch.tv GLOBALUSERSTATE")
		awaitLine(t, inbound, "JOIN ")

		// USERSTATE repeats after every sent message; only the first
		// one per room is a join confirmation.
		writeLines(ctx, conn,
			"@mod=0 :tmi.twitch.tv USERSTATE #roomone",
			"@mod=1 :tmi.twitch.tv USERSTATE #roomone",
		)
	})

	disp := newRecordingDispatcher()
	c := New(chatGateway(t), stubToken{access: "tok"}, disp, senderLogger(t), Options{
		URL:   strings.Replace(srv.URL, "http://", "ws://", 1),
		Rooms: []string{"roomone"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx) //nolint:errcheck

	disp.await(t, "room_joined")

	select {
	case ev := <-disp.ch:
		assert.NotEqual(t, "room_joined", ev.name)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Len(t, c.Rooms(), 1)
}

func TestChatAnswersPing(t *testing.T) {
	gotPong := make(chan string, 1)
	srv := newIRCServer(t, func(ctx context.Context, conn *websocket.Conn, inbound <-chan string) {
		awaitLine(t, inbound, "NICK ")
		writeLines(ctx, conn, ":tmi.twitch.tv 001 tester :Welcome, GLHF!")
		writeLines(ctx, conn, "PING :tmi.twitch.tv")
		gotPong <- awaitLine(t, inbound, "PONG ")
	})

	c := New(chatGateway(t), stubToken{access: "tok"}, newRecordingDispatcher(), senderLogger(t), Options{
		URL: strings.Replace(srv.URL, "http://", "ws://", 1),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx) //nolint:errcheck

	select {
	case pong := <-gotPong:
		assert.Equal(t, "PONG :tmi.twitch.tv", pong)
	case <-time.After(5 * time.Second):
		t.Fatal("no PONG received")
	}
}

func TestChatAuthFailureIsFatal(t *testing.T) {
	srv := newIRCServer(t, func(ctx context.Context, conn *websocket.Conn, inbound <-chan string) {
		awaitLine(t, inbound, "NICK ")
		writeLines(ctx, conn, ":tmi.twitch.tv NOTICE * :Login authentication failed")
	})

	c := New(chatGateway(t), stubToken{access: "bad"}, newRecordingDispatcher(), senderLogger(t), Options{
		URL:       strings.Replace(srv.URL, "http://", "ws://", 1),
		Reconnect: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.Run(ctx)
	require.ErrorIs(t, err, twitcherr.ErrUnauthorized)
}

func TestChatWithoutTokenFailsFast(t *testing.T) {
	c := New(chatGateway(t), stubToken{}, newRecordingDispatcher(), senderLogger(t), Options{
		Reconnect: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx)
	require.ErrorIs(t, err, twitcherr.ErrSessionClosed)
}

func TestSayRequiresJoinedRoom(t *testing.T) {
	c := New(chatGateway(t), stubToken{access: "tok"}, newRecordingDispatcher(), senderLogger(t), Options{})

	err := c.Say(context.Background(), "nowhere", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not joined")
}
