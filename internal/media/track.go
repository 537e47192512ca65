// Package media provides local capture tracks for the call engine: audio
// from a PCM source encoded to Opus, and display video from an IVF source.
package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Track is one local outgoing media track. The enabled flag gates sample
// writes, which is how muting works: the track keeps running, its samples
// just stop being written. Mute state is therefore derived from the flag,
// never stored anywhere else.
type Track struct {
	sample *webrtc.TrackLocalStaticSample
	kind   webrtc.RTPCodecType

	enabled atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	onEnded func()
}

// NewSampleTrack wraps a pion sample track. Capture implementations outside
// this package use it to hand tracks to the call engine.
func NewSampleTrack(sample *webrtc.TrackLocalStaticSample, kind webrtc.RTPCodecType) *Track {
	t := &Track{
		sample: sample,
		kind:   kind,
		stopCh: make(chan struct{}),
	}
	t.enabled.Store(true)
	return t
}

// Local returns the track in the form pion's AddTrack/ReplaceTrack expect.
func (t *Track) Local() webrtc.TrackLocal {
	return t.sample
}

// Kind reports whether this is an audio or video track.
func (t *Track) Kind() webrtc.RTPCodecType {
	return t.kind
}

// SetEnabled flips the sample gate. Disabled audio tracks are muted.
func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Enabled reports the sample gate state.
func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

// OnEnded registers a callback fired when the capture source ends on its
// own (display sources end when their input is exhausted, the equivalent of
// the user stopping the share at the source).
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// Stop halts the capture pump. Idempotent; does not fire OnEnded.
func (t *Track) Stop() {
	t.stopped.Store(true)
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Stopped reports whether Stop has been called or the source ended.
func (t *Track) Stopped() bool {
	return t.stopped.Load()
}

// done is the pump's cancellation signal.
func (t *Track) done() <-chan struct{} {
	return t.stopCh
}

// sourceEnded is called by the pump when the source runs out: it stops the
// track and fires the ended callback.
func (t *Track) sourceEnded() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	t.Stop()
	if fn != nil {
		fn()
	}
}

// write pushes one sample unless the track is disabled or stopped.
func (t *Track) write(s media.Sample) error {
	if !t.enabled.Load() || t.stopped.Load() {
		return nil
	}
	return t.sample.WriteSample(s)
}
