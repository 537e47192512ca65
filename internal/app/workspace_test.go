package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcanvas/devcanvas/internal/backend"
	"github.com/devcanvas/devcanvas/internal/config"
	"github.com/devcanvas/devcanvas/internal/identity"
	"github.com/devcanvas/devcanvas/internal/media"
	"github.com/devcanvas/devcanvas/internal/relay"
)

func newWorkspace(t *testing.T, store *backend.Store) *Workspace {
	t.Helper()

	srv := relay.NewServer()
	port, err := srv.Start(":0")
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := relay.Dial(ctx, fmt.Sprintf("ws://127.0.0.1:%d/ws", port), "anon_test")
	require.NoError(t, err)

	ws := New(config.Config{}, identity.Identity{ID: "anon_test", DisplayName: "Tester"},
		client, store, &media.FileCapture{})
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func newBackend(t *testing.T) *backend.Store {
	t.Helper()
	store, err := backend.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnterRoomWithoutBackend(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t, nil)

	require.NoError(t, ws.EnterRoom(ctx, "room-1"))

	assert.NotNil(t, ws.Canvas())
	assert.NotNil(t, ws.Session())
	assert.Equal(t, "room-1", ws.State().Get().CurrentRoomID)

	// Chat degrades instead of crashing.
	assert.ErrorIs(t, ws.SendMessage(ctx, "hi"), config.ErrNotConfigured)
	_, err := ws.Messages(ctx)
	assert.ErrorIs(t, err, config.ErrNotConfigured)
}

func TestEnterRoomCreatesDefaultChannel(t *testing.T) {
	ctx := context.Background()
	store := newBackend(t)
	ws := newWorkspace(t, store)

	room, err := store.CreateRoom(ctx)
	require.NoError(t, err)

	require.NoError(t, ws.EnterRoom(ctx, room.ID))

	channels, err := store.ListChannels(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, DefaultChannelName, channels[0].Name)
	assert.Equal(t, channels[0].ID, ws.State().Get().CurrentChannelID)
}

func TestEnterUnknownRoomFails(t *testing.T) {
	ws := newWorkspace(t, newBackend(t))

	err := ws.EnterRoom(context.Background(), "no-such-room")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestSendMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newBackend(t)
	ws := newWorkspace(t, store)

	room, err := store.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, ws.EnterRoom(ctx, room.ID))

	require.NoError(t, ws.SendMessage(ctx, "hello"))

	messages, err := ws.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "anon_test", messages[0].AuthorID)
	assert.Equal(t, "Tester", messages[0].AuthorName)
}

func TestReenterReplacesRoom(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t, nil)

	require.NoError(t, ws.EnterRoom(ctx, "room-1"))
	firstSession := ws.Session()

	require.NoError(t, ws.EnterRoom(ctx, "room-2"))

	assert.Equal(t, "room-2", ws.State().Get().CurrentRoomID)
	assert.NotSame(t, firstSession, ws.Session())
}

func TestLeaveRoomResetsState(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t, nil)

	require.NoError(t, ws.EnterRoom(ctx, "room-1"))
	ws.LeaveRoom()

	s := ws.State().Get()
	assert.Empty(t, s.CurrentRoomID)
	assert.Empty(t, s.CurrentChannelID)
	assert.False(t, s.VoiceConnected)
	assert.Nil(t, ws.Canvas())
	assert.Nil(t, ws.Session())

	// Leaving twice is harmless.
	ws.LeaveRoom()
}

func TestCallControlsOutsideRoom(t *testing.T) {
	ws := newWorkspace(t, nil)

	assert.Error(t, ws.StartVoice())
	assert.Error(t, ws.StartScreenShare())
	assert.NoError(t, ws.StopScreenShare())
	ws.ToggleMute() // no-op
}
