// Devcanvas — CLI participant for a collaborative room: shared canvas,
// channel chat, and a two-party voice/screen-share call, all relayed
// through the devcanvas pub/sub server.
//
// The message backend (sqlite) is optional: without -db the client still
// joins the canvas and the call, and chat operations report that the
// backend is not configured instead of crashing.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"

	"github.com/devcanvas/devcanvas/internal/app"
	"github.com/devcanvas/devcanvas/internal/backend"
	"github.com/devcanvas/devcanvas/internal/config"
	"github.com/devcanvas/devcanvas/internal/identity"
	"github.com/devcanvas/devcanvas/internal/media"
	"github.com/devcanvas/devcanvas/internal/relay"
	"github.com/devcanvas/devcanvas/internal/state"
	"github.com/devcanvas/devcanvas/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	relayURL := flag.String("relay", "", "Relay WebSocket URL, e.g. ws://localhost:8787/ws")
	roomID := flag.String("room", "", "Room id to join (created when omitted and a backend is configured)")
	name := flag.String("name", "", "Display name (persisted for this profile)")
	dataDir := flag.String("data", "", "Identity store directory (defaults to the user config dir)")
	dbPath := flag.String("db", "", "Sqlite database path for rooms/channels/messages")
	audioSrc := flag.String("audio", "", "PCM audio capture source (48kHz mono s16le)")
	displaySrc := flag.String("display", "", "IVF display capture source for screen sharing")
	voice := flag.Bool("voice", false, "Start local audio capture on join")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Devcanvas — v%s", version))
	pterm.Println()

	cfg := config.Config{
		RelayURL:      *relayURL,
		RoomID:        *roomID,
		DisplayName:   *name,
		DataDir:       *dataDir,
		DatabasePath:  *dbPath,
		AudioSource:   *audioSrc,
		DisplaySource: *displaySrc,
	}.FromEnv()

	if err := run(ctx, cfg, *voice); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("left the room, goodbye")
}

func run(ctx context.Context, cfg config.Config, voice bool) error {
	wsURL, err := normalizeWSURL(cfg.RelayURL)
	if err != nil {
		return err
	}

	// Identity, persisted per profile.
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return fmt.Errorf("failed to resolve data dir: %w", err)
	}
	idStore, err := identity.Open(filepath.Join(dir, "identity.db"))
	if err != nil {
		return err
	}
	defer idStore.Close()

	if cfg.DisplayName != "" {
		if err := identity.SetDisplayName(idStore, cfg.DisplayName); err != nil {
			return err
		}
	}
	ident, err := identity.Resolve(idStore)
	if err != nil {
		return err
	}
	util.LogInfo("joining as %s (%s)", ident.DisplayName, ident.ID)

	// Backend, when configured; chat degrades without it.
	var store *backend.Store
	if cfg.BackendConfigured() {
		store, err = backend.New(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()
	} else {
		util.LogWarning("no -db configured: chat is disabled, canvas and voice still work")
	}

	roomID := cfg.RoomID
	if roomID == "" {
		if store == nil {
			return fmt.Errorf("missing -room (or configure -db to create one)")
		}
		room, err := store.CreateRoom(ctx)
		if err != nil {
			return err
		}
		roomID = room.ID
		util.LogInfo("created room %s — share this id to invite someone", roomID)
	}

	relayClient, err := relay.Dial(ctx, wsURL, ident.ID)
	if err != nil {
		return err
	}

	capture := &media.FileCapture{AudioPath: cfg.AudioSource, DisplayPath: cfg.DisplaySource}
	ws := app.New(cfg, ident, relayClient, store, capture)
	defer ws.Close()

	if err := ws.EnterRoom(ctx, roomID); err != nil {
		return err
	}

	// Log canvas convergence and call status as they change.
	if doc := ws.Canvas(); doc != nil {
		doc.Listen(func() {
			util.LogDebug("canvas now has %d records", doc.Len())
		})
	}
	var lastVoice bool
	ws.State().Subscribe(func(s state.State) {
		if s.VoiceConnected != lastVoice {
			lastVoice = s.VoiceConnected
			if s.VoiceConnected {
				util.LogInfo("voice connected")
			} else {
				util.LogInfo("voice disconnected")
			}
		}
	})

	if voice {
		if err := ws.StartVoice(); err != nil {
			// The session still receives remote audio; keep going.
			util.LogWarning("voice capture unavailable: %v", err)
		}
	}

	util.StartStatsReporter(ctx)

	<-ctx.Done()
	return nil
}

// normalizeWSURL validates the relay URL and fills in the scheme and /ws
// path when omitted.
func normalizeWSURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing -relay URL (or set DEVCANVAS_RELAY_URL)")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid relay URL scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
