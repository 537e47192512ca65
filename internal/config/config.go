// Package config holds the client configuration types.
package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNotConfigured is returned by operations that require the message
// backend when no database path has been configured. The rest of the
// workspace (canvas sync, voice) keeps working without it.
var ErrNotConfigured = errors.New("config: message backend is not configured")

// Config stores all parameters gathered from CLI flags and environment
// variables.
type Config struct {
	RelayURL      string // WebSocket URL of the pub/sub relay
	RoomID        string // room to join
	DisplayName   string // overrides the persisted display name when set
	DataDir       string // directory for the local identity store
	DatabasePath  string // sqlite database path; empty disables the backend
	AudioSource   string // PCM capture source path; empty means no audio device
	DisplaySource string // IVF capture source path; empty means no display device
}

// FromEnv fills unset fields from DEVCANVAS_* environment variables.
func (c Config) FromEnv() Config {
	if c.RelayURL == "" {
		c.RelayURL = os.Getenv("DEVCANVAS_RELAY_URL")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = os.Getenv("DEVCANVAS_DB")
	}
	if c.AudioSource == "" {
		c.AudioSource = os.Getenv("DEVCANVAS_AUDIO_SOURCE")
	}
	if c.DisplaySource == "" {
		c.DisplaySource = os.Getenv("DEVCANVAS_DISPLAY_SOURCE")
	}
	return c
}

// BackendConfigured reports whether the message backend can be opened.
func (c Config) BackendConfigured() bool {
	return c.DatabasePath != ""
}

// ResolveDataDir returns the identity store directory, defaulting to
// <user config dir>/devcanvas and creating it if needed.
func (c Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "devcanvas")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
