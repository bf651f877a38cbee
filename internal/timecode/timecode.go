// Package timecode implements SMPTE timecode arithmetic over frame counts,
// including drop-frame counting for the NTSC rates. All other packages go
// through this one; none of them reimplement drop-frame math.
package timecode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTimecode   = errors.New("invalid timecode")
	ErrIncompatibleRates = errors.New("incompatible timecode rates")
)

// Timecode is a non-negative frame count since midnight together with its
// (FrameRate, DropFrame) pair. The zero value is 00:00:00:00 at 23.976 NDF;
// construct real values with New, FromFrames or Parse.
type Timecode struct {
	frames int64
	rate   FrameRate
	drop   DropFrame
}

// FramesPerDay returns the number of distinct frame counts in one calendar
// day at the given rate and counting mode.
func FramesPerDay(rate FrameRate, drop DropFrame) int64 {
	nominal := int64(rate.Nominal())
	if drop == Drop {
		d := int64(rate.droppedPerMinute())
		// 1440 minutes, of which 144 (every tenth) do not drop.
		return nominal*86400 - d*(1440-144)
	}
	return nominal * 86400
}

// New builds a timecode from display fields, validating them against the
// rate and drop-frame rule.
func New(h, m, s, f int, rate FrameRate, drop DropFrame) (Timecode, error) {
	nominal := rate.Nominal()
	if drop == Drop && !rate.SupportsDropFrame() {
		return Timecode{}, fmt.Errorf("%w: drop-frame is undefined at %s fps", ErrInvalidTimecode, rate)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 || f < 0 || f >= nominal {
		return Timecode{}, fmt.Errorf("%w: %02d:%02d:%02d:%02d at %s fps", ErrInvalidTimecode, h, m, s, f, rate)
	}
	if drop == Drop && s == 0 && m%10 != 0 && f < rate.droppedPerMinute() {
		return Timecode{}, fmt.Errorf("%w: frame %02d of minute %02d is dropped at %s DF", ErrInvalidTimecode, f, m, rate)
	}
	minutes := int64(h)*60 + int64(m)
	n := int64(nominal) * (minutes*60 + int64(s))
	if drop == Drop {
		n -= int64(rate.droppedPerMinute()) * (minutes - minutes/10)
	}
	return Timecode{frames: n + int64(f), rate: rate, drop: drop}, nil
}

// FromFrames builds a timecode from a raw frame count since midnight.
func FromFrames(n int64, rate FrameRate, drop DropFrame) (Timecode, error) {
	if drop == Drop && !rate.SupportsDropFrame() {
		return Timecode{}, fmt.Errorf("%w: drop-frame is undefined at %s fps", ErrInvalidTimecode, rate)
	}
	if n < 0 || n >= FramesPerDay(rate, drop) {
		return Timecode{}, fmt.Errorf("%w: frame count %d out of range at %s", ErrInvalidTimecode, n, rate)
	}
	return Timecode{frames: n, rate: rate, drop: drop}, nil
}

// Frames returns the frame count since midnight.
func (t Timecode) Frames() int64 { return t.frames }

func (t Timecode) Rate() FrameRate      { return t.rate }
func (t Timecode) DropFrame() DropFrame { return t.drop }

// AddFrames returns the timecode advanced by n frames, wrapping at
// midnight. Negative n subtracts.
func (t Timecode) AddFrames(n int64) Timecode {
	day := FramesPerDay(t.rate, t.drop)
	f := (t.frames + n) % day
	if f < 0 {
		f += day
	}
	return Timecode{frames: f, rate: t.rate, drop: t.drop}
}

// Sub returns t - other in frames. Arithmetic between timecodes of
// different rates or counting modes fails with ErrIncompatibleRates.
func (t Timecode) Sub(other Timecode) (int64, error) {
	if t.rate != other.rate || t.drop != other.drop {
		return 0, fmt.Errorf("%w: %s/%v vs %s/%v", ErrIncompatibleRates, t.rate, t.drop, other.rate, other.drop)
	}
	return t.frames - other.frames, nil
}

// Before reports whether t is earlier than other. Comparing across rates is
// a programming error and reports false.
func (t Timecode) Before(other Timecode) bool {
	return t.rate == other.rate && t.drop == other.drop && t.frames < other.frames
}

// fields converts the frame count back into display fields, reinserting the
// dropped frame numbers for drop-frame timecode.
func (t Timecode) fields() (h, m, s, f int) {
	nominal := int64(t.rate.Nominal())
	n := t.frames
	var minutes, inMin int64
	if t.drop == Drop {
		d := int64(t.rate.droppedPerMinute())
		perMin := nominal*60 - d
		perTen := nominal*600 - 9*d
		tens := n / perTen
		rem := n % perTen
		if rem < nominal*60 {
			minutes = tens * 10
			inMin = rem
		} else {
			rem -= nominal * 60
			minutes = tens*10 + 1 + rem/perMin
			inMin = rem%perMin + d
		}
	} else {
		minutes = n / (nominal * 60)
		inMin = n % (nominal * 60)
	}
	return int(minutes / 60), int(minutes % 60), int(inMin / nominal), int(inMin % nominal)
}

// String renders CMX3600 display form: HH:MM:SS:FF, with ";" before the
// frame field for drop-frame.
func (t Timecode) String() string {
	h, m, s, f := t.fields()
	sep := ":"
	if t.drop == Drop {
		sep = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", h, m, s, sep, f)
}

// Parse reads a CMX3600 timecode string at the given rate. Both ":" and ";"
// are accepted before the frame field; the counting mode is taken from drop,
// not from the separator.
func Parse(s string, rate FrameRate, drop DropFrame) (Timecode, error) {
	norm := strings.ReplaceAll(s, ";", ":")
	var h, m, sec, f int
	if _, err := fmt.Sscanf(norm, "%02d:%02d:%02d:%02d", &h, &m, &sec, &f); err != nil {
		return Timecode{}, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}
	return New(h, m, sec, f, rate, drop)
}
