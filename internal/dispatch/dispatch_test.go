package dispatch

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/availex/twitch-gateway-go/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)
	return log
}

func TestOnRejectsUnknownEvent(t *testing.T) {
	r := New(testLogger(t))

	err := r.On("no_such_event", func(context.Context, any) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event")

	require.NoError(t, r.On("stream_online", func(context.Context, any) {}))
	require.NoError(t, r.On("ready", func(context.Context, any) {}))
}

func TestOnCustomAcceptsAnyName(t *testing.T) {
	r := New(testLogger(t))
	r.OnCustom("drop.entitlement.grant", func(context.Context, any) {})
	assert.Equal(t, []string{"drop.entitlement.grant"}, r.SubscribableEvents())
}

func TestDispatchInvokesAllHandlers(t *testing.T) {
	r := New(testLogger(t))
	got := make(chan any, 2)

	require.NoError(t, r.On("stream_online", func(_ context.Context, payload any) {
		got <- payload
	}))
	require.NoError(t, r.On("stream_online", func(_ context.Context, payload any) {
		got <- payload
	}))

	r.Dispatch(context.Background(), "stream_online", "payload")

	for i := 0; i < 2; i++ {
		select {
		case payload := <-got:
			assert.Equal(t, "payload", payload)
		case <-time.After(5 * time.Second):
			t.Fatal("handler was not invoked")
		}
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	r := New(testLogger(t))
	after := make(chan struct{})

	require.NoError(t, r.On("stream_online", func(context.Context, any) {
		defer close(after)
		panic("handler exploded")
	}))

	r.Dispatch(context.Background(), "stream_online", nil)

	select {
	case <-after:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestSubscribableEventsExcludesLifecycle(t *testing.T) {
	r := New(testLogger(t))
	require.NoError(t, r.On("ready", func(context.Context, any) {}))
	require.NoError(t, r.On("chat_connected", func(context.Context, any) {}))
	require.NoError(t, r.On("stream_offline", func(context.Context, any) {}))
	require.NoError(t, r.On("follow", func(context.Context, any) {}))

	assert.Equal(t, []string{"follow", "stream_offline"}, r.SubscribableEvents())
}
