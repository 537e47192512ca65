package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAudioTrack(t *testing.T) *Track {
	t.Helper()
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"audio", "test",
	)
	require.NoError(t, err)
	return NewSampleTrack(sample, webrtc.RTPCodecTypeAudio)
}

func TestTrackStartsEnabled(t *testing.T) {
	track := newAudioTrack(t)
	assert.True(t, track.Enabled())
	assert.False(t, track.Stopped())
	assert.Equal(t, webrtc.RTPCodecTypeAudio, track.Kind())
}

func TestSetEnabledFlips(t *testing.T) {
	track := newAudioTrack(t)

	track.SetEnabled(false)
	assert.False(t, track.Enabled())
	track.SetEnabled(true)
	assert.True(t, track.Enabled())
}

func TestStopIsIdempotent(t *testing.T) {
	track := newAudioTrack(t)

	track.Stop()
	track.Stop()
	assert.True(t, track.Stopped())

	select {
	case <-track.done():
	default:
		t.Fatal("done channel not closed after Stop")
	}
}

func TestStopDoesNotFireOnEnded(t *testing.T) {
	track := newAudioTrack(t)

	var ended bool
	track.OnEnded(func() { ended = true })

	track.Stop()
	assert.False(t, ended)
}

func TestSourceEndedStopsAndNotifies(t *testing.T) {
	track := newAudioTrack(t)

	var ended int
	track.OnEnded(func() { ended++ })

	track.sourceEnded()
	assert.True(t, track.Stopped())
	assert.Equal(t, 1, ended)
}

func TestOpenSourceErrors(t *testing.T) {
	_, err := openSource("")
	assert.ErrorIs(t, err, ErrNoDevice)

	_, err = openSource("/no/such/capture/device")
	assert.ErrorIs(t, err, ErrNoDevice)
}
