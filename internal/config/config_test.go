package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
username: tester
client_id: cid
access_token: tok
chat:
  rooms: [roomone]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tester", cfg.Username)
	assert.Equal(t, []string{"roomone"}, cfg.Chat.Rooms)
	assert.Equal(t, 1450*time.Millisecond, cfg.Chat.MinSendInterval)
	assert.Equal(t, 10, cfg.Chat.QueueSize)
	assert.Equal(t, 10, cfg.Chat.MaxInFlight)
	assert.Equal(t, ":8080", cfg.Status.Addr)
	assert.True(t, cfg.ShouldReconnect())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "env-cid")
	t.Setenv("TWITCH_ACCESS_TOKEN", "env-tok")

	path := writeConfig(t, `
client_id: file-cid
access_token: file-tok
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-cid", cfg.ClientID)
	assert.Equal(t, "env-tok", cfg.AccessToken)
}

func TestLoadReconnectDisabled(t *testing.T) {
	path := writeConfig(t, `
client_id: cid
access_token: tok
reconnect: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.ShouldReconnect())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing client id",
			cfg:     Config{AccessToken: "tok"},
			wantErr: "client_id",
		},
		{
			name:    "no token at all",
			cfg:     Config{ClientID: "cid"},
			wantErr: "access_token or refresh_token",
		},
		{
			name:    "refresh token without secret",
			cfg:     Config{ClientID: "cid", RefreshToken: "refresh"},
			wantErr: "client_secret",
		},
		{
			name: "refresh token with secret",
			cfg:  Config{ClientID: "cid", RefreshToken: "refresh", ClientSecret: "secret"},
		},
		{
			name: "access token only",
			cfg:  Config{ClientID: "cid", AccessToken: "tok"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
