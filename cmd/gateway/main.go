// Command gateway is the entry point for the Twitch gateway daemon. It
// loads configuration, starts the client with its event and chat
// channels, and manages graceful shutdown via OS signals.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/availex/twitch-gateway-go/internal/client"
	"github.com/availex/twitch-gateway-go/internal/config"
	"github.com/availex/twitch-gateway-go/internal/jsonutil"
	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
	"github.com/availex/twitch-gateway-go/internal/server"
)

func main() {
	configFile := flag.String("config", config.DefaultConfigFile, "Path to the configuration file")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL env)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	flag.Parse()

	// Secrets may live in a .env file next to the binary.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch {
	case *logLevel != "":
		level = logger.ParseLevel(*logLevel)
	case os.Getenv("LOG_LEVEL") != "":
		level = logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	case cfg.Log.Level != "":
		level = logger.ParseLevel(cfg.Log.Level)
	}

	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	logCfg := logger.DefaultConfig()
	logCfg.Level = level
	logCfg.Colored = colored
	logCfg.LogDir = cfg.Log.Dir

	log, err := logger.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	if cfg.Username != "" {
		log = log.WithAccount(cfg.Username)
	}

	log.Info("🚀 Starting Twitch gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("Received shutdown signal", "signal", sig.String())
		cancel()

		time.AfterFunc(30*time.Second, func() {
			log.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	gw := client.New(cfg, log)
	registerLogHandlers(gw, log)

	if cfg.Status.Enabled {
		statusServer := server.New(cfg.Status.Addr, log, snapshotFunc(gw))
		go func() {
			if err := statusServer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("Status server failed", "error", err)
			}
		}()
	}

	if err := gw.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("Gateway stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("👋 Gateway stopped. Goodbye!")
}

// registerLogHandlers surfaces chat traffic and stream transitions in
// the daemon log.
func registerLogHandlers(gw *client.Client, log *logger.Logger) {
	gw.Registry().On("chat_message", func(ctx context.Context, payload any) { //nolint:errcheck
		if msg, ok := payload.(model.ChatMessage); ok {
			log.Event(ctx, model.EventChatMessage, msg.Text, "room", msg.Channel, "user", msg.UserLogin)
		}
	})
	gw.Registry().On("stream_online", func(ctx context.Context, payload any) { //nolint:errcheck
		log.Event(ctx, model.EventStreamOnline, "Stream went live", "broadcaster", broadcasterLogin(payload))
	})
	gw.Registry().On("stream_offline", func(ctx context.Context, payload any) { //nolint:errcheck
		log.Event(ctx, model.EventStreamOffline, "Stream went offline", "broadcaster", broadcasterLogin(payload))
	})
}

func broadcasterLogin(payload any) string {
	if raw, ok := payload.(json.RawMessage); ok {
		return jsonutil.StringFromRaw(raw, "broadcaster_user_login")
	}
	return ""
}

// snapshotFunc adapts the client's state accessors to the status
// server's snapshot shape.
func snapshotFunc(gw *client.Client) server.SnapshotFunc {
	return func() server.Snapshot {
		snap := server.Snapshot{
			Login:         gw.Token().Login(),
			UserID:        gw.Token().UserID(),
			SessionStatus: string(model.StatusDisconnected),
			Rooms:         []server.RoomStatus{},
		}

		if sess := gw.Session(); sess != nil {
			snap.SessionID = sess.ID
			snap.SessionStatus = string(sess.Status)
			if !sess.ConnectedAt.IsZero() {
				t := sess.ConnectedAt
				snap.ConnectedAt = &t
			}
		}

		if state := gw.Token().Snapshot(); state.Expiring() {
			t := state.ExpiresAt
			snap.TokenExpiresAt = &t
		}

		for name, room := range gw.Rooms() {
			snap.Rooms = append(snap.Rooms, server.RoomStatus{
				Name:     name,
				ID:       room.BroadcasterID,
				JoinedAt: room.JoinedAt,
			})
		}
		return snap
	}
}
