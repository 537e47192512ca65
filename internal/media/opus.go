package media

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	audioSampleRate = 48000
	audioChannels   = 1
	audioFrameSize  = 960 // samples per 20ms frame at 48kHz
)

// opusEncoder encodes little-endian int16 PCM to Opus frames for the audio
// track pump.
type opusEncoder struct {
	enc *opus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := opus.NewEncoder(audioSampleRate, audioChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	// Voice bitrate; error intentionally ignored, the default applies.
	_ = enc.SetBitrate(64000)
	return &opusEncoder{enc: enc}, nil
}

// encodeBytes encodes one PCM frame given as little-endian int16 bytes.
func (e *opusEncoder) encodeBytes(pcmBytes []byte) ([]byte, error) {
	pcm := make([]int16, len(pcmBytes)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
	}

	out := make([]byte, 1024)
	n, err := e.enc.Encode(pcm, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
