package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

type stubToken struct {
	mu        sync.Mutex
	access    string
	validated atomic.Int32
	renewTo   string
}

func (s *stubToken) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *stubToken) ClientID() string { return "cid" }
func (s *stubToken) UserID() string   { return "12345" }
func (s *stubToken) Login() string    { return "tester" }

func (s *stubToken) Validate(_ context.Context, _ bool) error {
	s.validated.Add(1)
	if s.renewTo != "" {
		s.mu.Lock()
		s.access = s.renewTo
		s.mu.Unlock()
	}
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)
	return log
}

func TestDoDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cid", r.Header.Get("Client-Id"))
		json.NewEncoder(w).Encode(map[string]any{"data": []string{"a", "b"}})
	}))
	defer srv.Close()

	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: srv.URL})

	var out struct {
		Data []string `json:"data"`
	}
	err := gw.Do(context.Background(), Route{Method: http.MethodGet, Path: "users"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Data)
}

func TestDoRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: srv.URL, Clock: clock})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- gw.Do(ctx, Route{Method: http.MethodGet, Path: "users"}, nil, nil)
	}()

	// Two backoff sleeps before the third, successful attempt.
	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Minute)
	}

	require.NoError(t, <-done)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: srv.URL, Clock: clock})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- gw.Do(ctx, Route{Method: http.MethodGet, Path: "users"}, nil, nil)
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Minute)
	}

	err := <-done
	require.Error(t, err)
	assert.True(t, twitcherr.IsServerError(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoReauthReplaysOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer renewed" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tok := &stubToken{access: "stale", renewTo: "renewed"}
	gw := New(tok, testLogger(t), Options{BaseURL: srv.URL})

	err := gw.Do(context.Background(), Route{Method: http.MethodGet, Path: "users"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tok.validated.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoSecondUnauthorizedIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tok := &stubToken{access: "stale", renewTo: "still-bad"}
	gw := New(tok, testLogger(t), Options{BaseURL: srv.URL})

	err := gw.Do(context.Background(), Route{Method: http.MethodGet, Path: "users"}, nil, nil)
	require.ErrorIs(t, err, twitcherr.ErrUnauthorized)
	assert.Equal(t, int32(1), tok.validated.Load())
}

func TestDoAfterCloseFailsFast(t *testing.T) {
	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: "http://unreachable.invalid"})
	gw.Close()

	err := gw.Do(context.Background(), Route{Method: http.MethodGet, Path: "users"}, nil, nil)
	require.ErrorIs(t, err, twitcherr.ErrSessionClosed)
	assert.True(t, gw.IsForceClosed())
}

func TestDoMapsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"status": 404, "message": "no such thing"})
	}))
	defer srv.Close()

	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: srv.URL})

	err := gw.Do(context.Background(), Route{Method: http.MethodGet, Path: "users"}, nil, nil)
	require.Error(t, err)
	assert.True(t, twitcherr.IsNotFound(err))
	assert.Contains(t, err.Error(), "no such thing")
}

func TestDialWebSocketWithoutToken(t *testing.T) {
	gw := New(&stubToken{}, testLogger(t), Options{})

	_, err := gw.DialWebSocket(context.Background(), "ws://127.0.0.1:0")
	require.ErrorIs(t, err, twitcherr.ErrSessionClosed)
}

func TestPaginator(t *testing.T) {
	pages := [][]int{{1, 2}, {3}}
	p := NewPaginator(func(_ context.Context, cursor string) (Page[int], error) {
		switch cursor {
		case "":
			return Page[int]{Items: pages[0], Cursor: "next"}, nil
		case "next":
			return Page[int]{Items: pages[1]}, nil
		default:
			t.Fatalf("unexpected cursor %q", cursor)
			return Page[int]{}, nil
		}
	})

	ctx := context.Background()

	first, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, first)

	second, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, second)

	_, err = p.Next(ctx)
	require.ErrorIs(t, err, twitcherr.ErrEndOfResults)

	p.Reset("")
	again, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, again)
}
