package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

var (
	// ErrNoDevice means no capture source is configured or present.
	ErrNoDevice = errors.New("media: no capture device")
	// ErrPermissionDenied means the capture source exists but cannot be read.
	ErrPermissionDenied = errors.New("media: capture permission denied")
)

// Capture acquires local media tracks. The call engine depends on this
// interface only; tests substitute their own.
type Capture interface {
	// AudioTrack starts audio-only capture. The returned track is live
	// until Stop.
	AudioTrack() (*Track, error)
	// DisplayTrack starts display capture for screen sharing. The track's
	// OnEnded callback fires if the source ends on its own.
	DisplayTrack() (*Track, error)
}

// FileCapture is the default Capture: audio from a raw PCM file or device
// node (48kHz mono s16le, looped), display video from an IVF file. An empty
// path means the corresponding device is absent.
type FileCapture struct {
	AudioPath   string
	DisplayPath string
}

func (c *FileCapture) AudioTrack() (*Track, error) {
	f, err := openSource(c.AudioPath)
	if err != nil {
		return nil, err
	}

	enc, err := newOpusEncoder()
	if err != nil {
		f.Close()
		return nil, err
	}

	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioSampleRate, Channels: audioChannels},
		"audio", "devcanvas-audio",
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	t := NewSampleTrack(sample, webrtc.RTPCodecTypeAudio)
	go pumpAudio(t, f, enc)
	return t, nil
}

func (c *FileCapture) DisplayTrack() (*Track, error) {
	f, err := openSource(c.DisplayPath)
	if err != nil {
		return nil, err
	}

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read display source: %w", err)
	}

	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "devcanvas-display",
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create display track: %w", err)
	}

	t := NewSampleTrack(sample, webrtc.RTPCodecTypeVideo)
	go pumpDisplay(t, f, ivf, header)
	return t, nil
}

func openSource(path string) (*os.File, error) {
	if path == "" {
		return nil, ErrNoDevice
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case os.IsPermission(err):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, path)
	default:
		return nil, err
	}
}

// pumpAudio reads 20ms PCM frames, encodes them, and writes paced samples
// until the track stops. A file source loops, simulating a microphone that
// never runs dry; a non-seekable source ends the track at EOF.
func pumpAudio(t *Track, f *os.File, enc *opusEncoder) {
	defer f.Close()

	const frameBytes = audioFrameSize * 2 // s16le mono
	buf := make([]byte, frameBytes)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.done():
			return
		case <-ticker.C:
		}

		if _, err := io.ReadFull(f, buf); err != nil {
			if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
				t.sourceEnded()
				return
			}
			continue
		}

		data, err := enc.encodeBytes(buf)
		if err != nil {
			continue
		}
		_ = t.write(media.Sample{Data: data, Duration: 20 * time.Millisecond})
	}
}

// pumpDisplay writes VP8 frames at the source's nominal rate until the
// track stops or the source is exhausted, which counts as the share ending
// at the source.
func pumpDisplay(t *Track, f *os.File, ivf *ivfreader.IVFReader, header *ivfreader.IVFFileHeader) {
	defer f.Close()

	frameDuration := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(time.Second) *
			float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-t.done():
			return
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if err != nil {
			t.sourceEnded()
			return
		}
		_ = t.write(media.Sample{Data: frame, Duration: frameDuration})
	}
}
