// Package app wires a participant's room session together: canvas sync,
// call negotiation, chat, and the shared state container.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/devcanvas/devcanvas/internal/backend"
	"github.com/devcanvas/devcanvas/internal/call"
	"github.com/devcanvas/devcanvas/internal/canvas"
	"github.com/devcanvas/devcanvas/internal/config"
	"github.com/devcanvas/devcanvas/internal/identity"
	"github.com/devcanvas/devcanvas/internal/media"
	"github.com/devcanvas/devcanvas/internal/relay"
	"github.com/devcanvas/devcanvas/internal/state"
	"github.com/devcanvas/devcanvas/internal/util"

	"github.com/pion/webrtc/v4"
)

// ErrStale is returned when a room entry finishes after the user has
// already moved on to another room; its results are discarded.
var ErrStale = errors.New("app: room entry superseded")

// DefaultChannelName is created in rooms that have no channels yet.
const DefaultChannelName = "general"

// Workspace is one participant's view of the application. It owns the
// per-room engines and the shared state container.
type Workspace struct {
	cfg     config.Config
	ident   identity.Identity
	relay   *relay.Client
	backend *backend.Store // nil when the backend is not configured
	capture media.Capture
	state   *state.Store

	mu      sync.Mutex
	gen     int // liveness token: bumped on every room transition
	engine  *canvas.Engine
	session *call.Session
	unsub   func() // current channel's message feed subscription
}

// New assembles a workspace. backendStore may be nil when unconfigured; the
// canvas and call features still work, chat operations return
// config.ErrNotConfigured.
func New(cfg config.Config, ident identity.Identity, relayClient *relay.Client, backendStore *backend.Store, capture media.Capture) *Workspace {
	return &Workspace{
		cfg:     cfg,
		ident:   ident,
		relay:   relayClient,
		backend: backendStore,
		capture: capture,
		state: state.NewStore(state.State{
			UserID:   ident.ID,
			UserName: ident.DisplayName,
		}),
	}
}

// State returns the shared state container.
func (w *Workspace) State() *state.Store {
	return w.state
}

// Canvas returns the current room's document, or nil outside a room.
func (w *Workspace) Canvas() *canvas.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.engine == nil {
		return nil
	}
	return w.engine.Document()
}

// Session returns the current call session, or nil outside a room.
func (w *Workspace) Session() *call.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// EnterRoom joins a room: verifies it against the backend, loads channels,
// and starts the canvas engine and call session. Any in-flight entry for a
// previous room is invalidated; if this entry is itself superseded while
// its backend loads are in flight, its results are discarded and ErrStale
// is returned.
func (w *Workspace) EnterRoom(ctx context.Context, roomID string) error {
	w.mu.Lock()
	w.gen++
	token := w.gen
	w.teardownLocked()
	w.mu.Unlock()

	var channels []*backend.Channel
	if w.backend != nil {
		if _, err := w.backend.GetRoom(ctx, roomID); err != nil {
			return fmt.Errorf("room %s: %w", roomID, err)
		}
		var err error
		channels, err = w.backend.ListChannels(ctx, roomID)
		if err != nil {
			return err
		}
		if len(channels) == 0 {
			ch, err := w.backend.CreateChannel(ctx, roomID, DefaultChannelName, 0, w.ident.ID)
			if err != nil {
				return err
			}
			channels = append(channels, ch)
		}
	}

	// The backend round-trips above can outlive the user's interest in
	// this room. Drop the result instead of clobbering the newer room.
	if !w.current(token) {
		return ErrStale
	}

	canvasTopic, err := w.relay.OpenTopic(fmt.Sprintf("room:%s:canvas", roomID), true)
	if err != nil {
		return err
	}
	engine := canvas.NewEngine(canvas.NewDocument(), canvasTopic)

	callTopic, err := w.relay.OpenTopic(fmt.Sprintf("room:%s:webrtc", roomID), true)
	if err != nil {
		engine.Close()
		return err
	}
	session, err := call.NewSession(call.Config{
		LocalID: w.ident.ID,
		Topic:   callTopic,
		Capture: w.capture,
		OnConnectionState: func(cs webrtc.PeerConnectionState) {
			w.state.SetVoiceConnected(cs == webrtc.PeerConnectionStateConnected)
		},
	})
	if err != nil {
		engine.Close()
		callTopic.Close()
		return err
	}

	w.mu.Lock()
	if w.gen != token {
		w.mu.Unlock()
		engine.Close()
		session.Close()
		return ErrStale
	}
	w.engine = engine
	w.session = session
	w.mu.Unlock()

	channelID := ""
	if len(channels) > 0 {
		channelID = channels[0].ID
	}
	w.state.SetCurrentRoom(roomID)
	w.SelectChannel(channelID)

	util.LogInfo("entered room %s (%d channels)", roomID, len(channels))
	return nil
}

// LeaveRoom tears down the current room's engines and resets selection.
// Safe to call when not in a room.
func (w *Workspace) LeaveRoom() {
	w.mu.Lock()
	w.gen++
	w.teardownLocked()
	w.mu.Unlock()

	w.state.SetCurrentRoom("")
	w.state.SetCurrentChannel("")
	w.state.SetVoiceConnected(false)
	w.state.SetMuted(false)
	w.state.SetScreenSharing(false)
}

// teardownLocked closes the per-room resources. Callers hold w.mu.
func (w *Workspace) teardownLocked() {
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
	if w.engine != nil {
		if err := w.engine.Close(); err != nil {
			util.LogDebug("canvas engine close: %v", err)
		}
		w.engine = nil
	}
	if w.session != nil {
		if err := w.session.Close(); err != nil {
			util.LogDebug("call session close: %v", err)
		}
		w.session = nil
	}
}

func (w *Workspace) current(token int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == token
}

// ─── Call controls ───────────────────────────────────────────────────────────

// StartVoice begins local audio capture on the current session.
func (w *Workspace) StartVoice() error {
	s := w.Session()
	if s == nil {
		return errors.New("app: not in a room")
	}
	if _, err := s.StartLocalAudio(); err != nil {
		return err
	}
	w.state.SetMuted(s.Muted())
	return nil
}

// ToggleMute flips the mute state and mirrors it into the state container.
func (w *Workspace) ToggleMute() {
	s := w.Session()
	if s == nil {
		return
	}
	s.ToggleMute()
	w.state.SetMuted(s.Muted())
}

// StartScreenShare begins display capture on the current session.
func (w *Workspace) StartScreenShare() error {
	s := w.Session()
	if s == nil {
		return errors.New("app: not in a room")
	}
	if _, err := s.StartScreenShare(); err != nil {
		return err
	}
	w.state.SetScreenSharing(true)
	return nil
}

// StopScreenShare ends the share.
func (w *Workspace) StopScreenShare() error {
	s := w.Session()
	if s == nil {
		return nil
	}
	err := s.StopScreenShare()
	w.state.SetScreenSharing(false)
	return err
}

// Close leaves the room and releases the relay connection.
func (w *Workspace) Close() error {
	w.LeaveRoom()
	return w.relay.Close()
}
