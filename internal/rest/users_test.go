package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

func TestGetUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"tester"}, r.URL.Query()["login"])
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "12345", "login": "tester", "display_name": "Tester"}},
		})
	}))
	defer srv.Close()

	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: srv.URL})

	users, err := gw.GetUsers(context.Background(), []string{"tester"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "12345", users[0].ID)
}

func TestGetFollowedChannelsPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/followed", r.URL.Path)
		assert.Equal(t, "12345", r.URL.Query().Get("user_id"))

		switch r.URL.Query().Get("after") {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"broadcaster_id": "1", "broadcaster_login": "one"},
					{"broadcaster_id": "2", "broadcaster_login": "two"},
				},
				"pagination": map[string]any{"cursor": "page-2"},
			})
		case "page-2":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"broadcaster_id": "3", "broadcaster_login": "three"},
				},
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	gw := New(&stubToken{access: "tok"}, testLogger(t), Options{BaseURL: srv.URL})
	ctx := context.Background()

	p := gw.GetFollowedChannels("12345")

	first, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "one", first[0].BroadcasterLogin)

	second, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "three", second[0].BroadcasterLogin)

	_, err = p.Next(ctx)
	require.ErrorIs(t, err, twitcherr.ErrEndOfResults)
}
