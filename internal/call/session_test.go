package call

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcanvas/devcanvas/internal/media"
	"github.com/devcanvas/devcanvas/internal/relay"
)

// recorderTopic captures sends and lets tests inject inbound envelopes.
type recorderTopic struct {
	mu       sync.Mutex
	handlers map[string][]func(relay.Envelope)
	sent     map[string][]json.RawMessage
}

func newRecorderTopic() *recorderTopic {
	return &recorderTopic{
		handlers: make(map[string][]func(relay.Envelope)),
		sent:     make(map[string][]json.RawMessage),
	}
}

func (r *recorderTopic) On(event string, fn func(relay.Envelope)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], fn)
}

func (r *recorderTopic) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[event] = append(r.sent[event], data)
	return nil
}

func (r *recorderTopic) Close() error { return nil }

func (r *recorderTopic) deliver(event string, payload []byte) {
	r.mu.Lock()
	fns := append([]func(relay.Envelope){}, r.handlers[event]...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(relay.Envelope{Event: event, Sender: "peer", Payload: payload})
	}
}

func (r *recorderTopic) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent[event])
}

// fakeCapture hands out live sample tracks without touching any device.
type fakeCapture struct{}

func (fakeCapture) AudioTrack() (*media.Track, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"audio", "test-audio",
	)
	if err != nil {
		return nil, err
	}
	return media.NewSampleTrack(sample, webrtc.RTPCodecTypeAudio), nil
}

func (fakeCapture) DisplayTrack() (*media.Track, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "test-display",
	)
	if err != nil {
		return nil, err
	}
	return media.NewSampleTrack(sample, webrtc.RTPCodecTypeVideo), nil
}

// newTestSession builds a session whose fallback timer will not interfere.
func newTestSession(t *testing.T, localID string, topic Topic) *Session {
	t.Helper()
	s, err := NewSession(Config{
		LocalID:      localID,
		Topic:        topic,
		Capture:      fakeCapture{},
		OfferTimeout: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// validOffer produces a real SDP offer from a scratch peer connection.
func validOffer(t *testing.T) []byte {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)

	data, err := json.Marshal(offerPayload{
		Offer: &sessionDescription{Type: offer.Type.String(), SDP: offer.SDP},
	})
	require.NoError(t, err)
	return data
}

func joinFrom(t *testing.T, id string) []byte {
	t.Helper()
	data, err := json.Marshal(joinPayload{ParticipantID: id})
	require.NoError(t, err)
	return data
}

func TestLowerIDBecomesInitiator(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_aaa", topic)

	topic.deliver(EventJoin, joinFrom(t, "anon_zzz"))

	assert.Equal(t, RoleInitiator, s.Role())
	assert.Equal(t, StateAwaitingAnswer, s.State())
	assert.Equal(t, 1, topic.count(EventOffer))
}

func TestHigherIDBecomesResponder(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_zzz", topic)

	topic.deliver(EventJoin, joinFrom(t, "anon_aaa"))

	assert.Equal(t, RoleResponder, s.Role())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, topic.count(EventOffer))
}

func TestInitiatorIgnoresIncomingOffer(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_aaa", topic)

	topic.deliver(EventJoin, joinFrom(t, "anon_zzz"))
	require.Equal(t, RoleInitiator, s.Role())

	// A crossed offer must not demote the initiator or produce an answer.
	topic.deliver(EventOffer, validOffer(t))

	assert.Equal(t, RoleInitiator, s.Role())
	assert.Equal(t, 0, topic.count(EventAnswer))
}

func TestResponderAnswersAndNeverOffers(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_zzz", topic)

	topic.deliver(EventOffer, validOffer(t))

	assert.Equal(t, RoleResponder, s.Role())
	assert.Equal(t, 1, topic.count(EventAnswer))
	assert.Equal(t, 0, topic.count(EventOffer))

	// Even a later join from a higher-sorting peer must not flip it.
	topic.deliver(EventJoin, joinFrom(t, "anon_zzz_2"))
	assert.Equal(t, RoleResponder, s.Role())
	assert.Equal(t, 0, topic.count(EventOffer))
}

func TestMalformedOfferRejected(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_aaa", topic)

	for _, payload := range []string{
		`{"offer":{"type":"","sdp":""}}`,
		`{"offer":null}`,
		`{}`,
		`not json`,
	} {
		topic.deliver(EventOffer, []byte(payload))
	}

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, RoleNone, s.Role())
	assert.Equal(t, 0, topic.count(EventAnswer))
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_zzz", topic)

	candidate := `{"candidate":{"candidate":"candidate:1 1 UDP 2122252543 127.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}}`
	topic.deliver(EventCandidate, []byte(candidate))
	topic.deliver(EventCandidate, []byte(candidate))
	assert.Equal(t, 2, s.PendingCandidates())

	// The offer sets the remote description, which flushes the queue.
	topic.deliver(EventOffer, validOffer(t))
	assert.Equal(t, 0, s.PendingCandidates())
}

func TestCloseIsIdempotent(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_aaa", topic)

	track, err := s.StartLocalAudio()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, track.Stopped())
	assert.Equal(t, StateClosed, s.State())
}

func TestMuteToggling(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_aaa", topic)

	// No local audio yet: counts as muted.
	assert.True(t, s.Muted())

	_, err := s.StartLocalAudio()
	require.NoError(t, err)
	assert.False(t, s.Muted())

	s.ToggleMute()
	assert.True(t, s.Muted())

	s.ToggleMute()
	assert.False(t, s.Muted())
}

func TestScreenShareReplacesAndStops(t *testing.T) {
	topic := newRecorderTopic()
	s := newTestSession(t, "anon_aaa", topic)

	first, err := s.StartScreenShare()
	require.NoError(t, err)
	assert.True(t, s.ScreenSharing())

	// A second share replaces the outgoing track instead of adding one.
	second, err := s.StartScreenShare()
	require.NoError(t, err)
	assert.True(t, s.ScreenSharing())
	assert.NotSame(t, first, second)

	require.NoError(t, s.StopScreenShare())
	assert.False(t, s.ScreenSharing())
	assert.True(t, second.Stopped())

	// Stopping again is a no-op.
	require.NoError(t, s.StopScreenShare())
}
