// Package edl builds and serializes CMX3600 edit decision lists.
package edl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oliwoli/edlgen/internal/timecode"
)

var ErrInvalidRecord = errors.New("invalid edl record")

// EditType is the transition kind of one EDL row.
type EditType int

const (
	Cut EditType = iota
	Dissolve
	Wipe
)

// ParseEditType reads the wire spelling used by the HTTP API.
func ParseEditType(s string) (EditType, error) {
	switch strings.ToLower(s) {
	case "cut":
		return Cut, nil
	case "dissolve":
		return Dissolve, nil
	case "wipe":
		return Wipe, nil
	}
	return 0, fmt.Errorf("%w: edit type %q", ErrInvalidRecord, s)
}

func (e EditType) String() string {
	switch e {
	case Dissolve:
		return "dissolve"
	case Wipe:
		return "wipe"
	}
	return "cut"
}

// AVChannels selects which tracks an edit affects.
type AVChannels struct {
	Video bool  `json:"video"`
	Audio uint8 `json:"audio"`
}

// Code returns the CMX3600 channel column for the combination, or "" when
// the combination selects nothing or more audio channels than the format
// carries.
func (a AVChannels) Code() string {
	if a.Video {
		switch a.Audio {
		case 0:
			return "V"
		case 1:
			return "A/V"
		case 2:
			return "AA/V"
		case 3:
			return "AA3/V"
		case 4:
			return "AA4/V"
		}
		return ""
	}
	switch a.Audio {
	case 1:
		return "A"
	case 2:
		return "A2"
	case 3:
		return "AA3"
	case 4:
		return "AA4"
	}
	return ""
}

// ParseChannelCode is the inverse of Code.
func ParseChannelCode(code string) (AVChannels, error) {
	for _, a := range []AVChannels{
		{true, 0}, {true, 1}, {true, 2}, {true, 3}, {true, 4},
		{false, 1}, {false, 2}, {false, 3}, {false, 4},
	} {
		if a.Code() == code {
			return a, nil
		}
	}
	return AVChannels{}, fmt.Errorf("%w: channel code %q", ErrInvalidRecord, code)
}

// Record is one fully formed EDL row.
type Record struct {
	EventNumber    int
	SourceTape     string // as written: underscored, max 8 chars
	ClipName       string // untruncated name for the comment line
	AVChannels     AVChannels
	EditType       EditType
	DurationFrames int // transition length; 0 for cuts
	WipeNum        int // wipe pattern number; 0 unless EditType is Wipe

	SrcIn  timecode.Timecode
	SrcOut timecode.Timecode
	RecIn  timecode.Timecode
	RecOut timecode.Timecode
}

// TapeName normalizes a clip name into the 8-character tape column:
// spaces become underscores and the result is clipped.
func TapeName(name string) string {
	s := strings.ReplaceAll(name, " ", "_")
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// transColumn renders the TRANS field: C, D or Wnnn.
func (r Record) transColumn() string {
	switch r.EditType {
	case Dissolve:
		return "D"
	case Wipe:
		return fmt.Sprintf("W%03d", r.WipeNum)
	}
	return "C"
}

// Line renders the record as a single fixed-column CMX3600 row.
func (r Record) Line() (string, error) {
	if r.EventNumber < 1 || r.EventNumber > 999 {
		return "", fmt.Errorf("%w: cannot exceed 999 edits", ErrInvalidRecord)
	}
	if r.DurationFrames < 0 || r.DurationFrames > 999 {
		return "", fmt.Errorf("%w: duration %d out of range", ErrInvalidRecord, r.DurationFrames)
	}
	chanCode := r.AVChannels.Code()
	if chanCode == "" {
		return "", fmt.Errorf("%w: no channels selected", ErrInvalidRecord)
	}
	dur := "   "
	if r.EditType != Cut {
		dur = fmt.Sprintf("%03d", r.DurationFrames)
	}
	return fmt.Sprintf("%03d  %-8s %-5s %-4s %s    %s %s %s %s",
		r.EventNumber, r.SourceTape, chanCode, r.transColumn(), dur,
		r.SrcIn, r.SrcOut, r.RecIn, r.RecOut), nil
}

// recordJSON is the wire shape of a Record, timecodes as CMX strings.
type recordJSON struct {
	EventNumber        int        `json:"event_number"`
	SourceTape         string     `json:"source_tape"`
	AVChannels         AVChannels `json:"av_channels"`
	EditType           string     `json:"edit_type"`
	EditDurationFrames *int       `json:"edit_duration_frames,omitempty"`
	WipeNum            *int       `json:"wipe_num,omitempty"`
	SrcIn              string     `json:"src_in"`
	SrcOut             string     `json:"src_out"`
	RecIn              string     `json:"rec_in"`
	RecOut             string     `json:"rec_out"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	w := recordJSON{
		EventNumber: r.EventNumber,
		SourceTape:  r.SourceTape,
		AVChannels:  r.AVChannels,
		EditType:    r.EditType.String(),
		SrcIn:       r.SrcIn.String(),
		SrcOut:      r.SrcOut.String(),
		RecIn:       r.RecIn.String(),
		RecOut:      r.RecOut.String(),
	}
	if r.EditType != Cut {
		d := r.DurationFrames
		w.EditDurationFrames = &d
	}
	if r.EditType == Wipe {
		n := r.WipeNum
		w.WipeNum = &n
	}
	return json.Marshal(w)
}
