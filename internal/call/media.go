package call

import (
	"fmt"

	"github.com/devcanvas/devcanvas/internal/media"
	"github.com/devcanvas/devcanvas/internal/util"
)

// StartLocalAudio acquires audio-only capture and attaches it to the
// connection. On capture failure the error is logged and returned; the
// session stays usable for receiving remote audio.
func (s *Session) StartLocalAudio() (*media.Track, error) {
	track, err := s.cfg.Capture.AudioTrack()
	if err != nil {
		util.LogError("failed to start local audio: %v", err)
		return nil, err
	}

	sender, err := s.pc.AddTrack(track.Local())
	if err != nil {
		track.Stop()
		util.LogError("failed to attach audio track: %v", err)
		return nil, fmt.Errorf("failed to attach audio track: %w", err)
	}

	s.mu.Lock()
	s.audioTracks = append(s.audioTracks, track)
	s.audioSender = sender
	s.mu.Unlock()
	return track, nil
}

// StartScreenShare acquires display capture and routes it out. When a video
// sender already exists its track is replaced, not duplicated. If the
// source ends on its own the share stops automatically.
func (s *Session) StartScreenShare() (*media.Track, error) {
	track, err := s.cfg.Capture.DisplayTrack()
	if err != nil {
		util.LogError("failed to start screen share: %v", err)
		return nil, err
	}

	s.mu.Lock()
	sender := s.videoSender
	s.mu.Unlock()

	if sender != nil {
		if err := sender.ReplaceTrack(track.Local()); err != nil {
			track.Stop()
			return nil, fmt.Errorf("failed to replace video track: %w", err)
		}
	} else {
		sender, err = s.pc.AddTrack(track.Local())
		if err != nil {
			track.Stop()
			return nil, fmt.Errorf("failed to attach video track: %w", err)
		}
	}

	track.OnEnded(func() {
		if err := s.StopScreenShare(); err != nil {
			util.LogWarning("failed to stop ended screen share: %v", err)
		}
	})

	s.mu.Lock()
	s.display = track
	s.videoSender = sender
	s.mu.Unlock()
	return track, nil
}

// StopScreenShare ends the share and nulls the sender's outgoing track.
// There is no camera track to restore. No-op when nothing is shared.
func (s *Session) StopScreenShare() error {
	s.mu.Lock()
	track := s.display
	sender := s.videoSender
	s.display = nil
	s.mu.Unlock()

	if track == nil {
		return nil
	}
	track.Stop()

	if sender != nil {
		if err := sender.ReplaceTrack(nil); err != nil {
			return fmt.Errorf("failed to detach video track: %w", err)
		}
	}
	return nil
}

// ScreenSharing reports whether a display track is live.
func (s *Session) ScreenSharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display != nil
}

// ToggleMute flips the enabled flag on every local audio track.
func (s *Session) ToggleMute() {
	s.mu.Lock()
	tracks := append([]*media.Track{}, s.audioTracks...)
	s.mu.Unlock()
	for _, t := range tracks {
		t.SetEnabled(!t.Enabled())
	}
}

// Muted is derived, never stored: with no local audio the session counts as
// muted, and any disabled track means muted.
func (s *Session) Muted() bool {
	s.mu.Lock()
	tracks := append([]*media.Track{}, s.audioTracks...)
	s.mu.Unlock()

	if len(tracks) == 0 {
		return true
	}
	for _, t := range tracks {
		if !t.Enabled() {
			return true
		}
	}
	return false
}
