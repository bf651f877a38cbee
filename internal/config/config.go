// Package config holds the session configuration frozen at /start.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oliwoli/edlgen/internal/timecode"
)

var ErrBadConfig = errors.New("bad config")

// Config is the value object a session is launched with. It is validated
// once and never mutated afterwards.
type Config struct {
	ProjectName   string `json:"project_name"`
	StorageDir    string `json:"storage_dir"`
	DeviceID      string `json:"device_id"`
	InputChannel  uint8  `json:"input_channel"`
	BufferSize    uint32 `json:"buffer_size"`
	LTCSampleRate uint32 `json:"ltc_sample_rate"`
	FrameRate     string `json:"frame_rate"`
	DropFrame     bool   `json:"drop_frame"`
	Port          uint16 `json:"port"`
}

// Default mirrors the factory settings the GUI starts from.
func Default() Config {
	return Config{
		ProjectName:   "my-video",
		InputChannel:  1,
		LTCSampleRate: 44100,
		FrameRate:     "23.976",
		Port:          7890,
	}
}

// Rate resolves the configured frame rate and counting mode.
func (c Config) Rate() (timecode.FrameRate, timecode.DropFrame, error) {
	rate, err := timecode.ParseFrameRate(c.FrameRate)
	if err != nil {
		return 0, timecode.NonDrop, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	drop := timecode.NonDrop
	if c.DropFrame {
		if !rate.SupportsDropFrame() {
			return 0, timecode.NonDrop, fmt.Errorf("%w: drop-frame requires 29.97 or 59.94, got %s", ErrBadConfig, rate)
		}
		drop = timecode.Drop
	}
	return rate, drop, nil
}

// Validate checks every field that can be checked without touching the
// audio device or filesystem.
func (c Config) Validate() error {
	if err := validFilename(c.ProjectName); err != nil {
		return err
	}
	if c.StorageDir == "" {
		return fmt.Errorf("%w: storage_dir is required", ErrBadConfig)
	}
	if c.InputChannel < 1 {
		return fmt.Errorf("%w: input_channel is 1-based", ErrBadConfig)
	}
	if c.LTCSampleRate < 32000 {
		return fmt.Errorf("%w: ltc_sample_rate %d below 32000", ErrBadConfig, c.LTCSampleRate)
	}
	if c.Port == 0 {
		return fmt.Errorf("%w: port is required", ErrBadConfig)
	}
	if _, _, err := c.Rate(); err != nil {
		return err
	}
	return nil
}

// validFilename rejects project names that cannot become a file name on
// any host OS we ship to.
func validFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: project_name is required", ErrBadConfig)
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: project_name too long", ErrBadConfig)
	}
	if strings.ContainsAny(name, `/\:*?"<>|`) {
		return fmt.Errorf("%w: project_name %q contains path characters", ErrBadConfig, name)
	}
	for _, r := range name {
		if r < 0x20 {
			return fmt.Errorf("%w: project_name contains control characters", ErrBadConfig)
		}
	}
	return nil
}
