// Package engine enforces the edit event protocol: START opens a session,
// LOG pairs timecodes into EDL rows, END cuts to black and finalizes the
// file. All engine state sits behind one mutex; the only thing shared with
// the audio thread is the timecode clock.
package engine

import (
	"log"
	"sync"
	"time"

	"github.com/oliwoli/edlgen/internal/clock"
	"github.com/oliwoli/edlgen/internal/config"
	"github.com/oliwoli/edlgen/internal/edl"
	"github.com/oliwoli/edlgen/internal/timecode"
)

// Event is the body of a /log, /end or /select-src request.
type Event struct {
	EditType           string          `json:"edit_type"`
	EditDurationFrames *int            `json:"edit_duration_frames"`
	WipeNum            *int            `json:"wipe_num"`
	SourceTape         *string         `json:"source_tape"`
	AVChannels         *edl.AVChannels `json:"av_channels"`
}

// Status is the body of every successful response.
type Status struct {
	RecordingState string       `json:"recording_state"`
	Edit           *edl.Record  `json:"edit"`
	FinalEdits     []edl.Record `json:"final_edits"`
}

type preselect struct {
	tape        string
	channels    edl.AVChannels
	hasTape     bool
	hasChannels bool
}

// Engine owns the session and the shared clock.
type Engine struct {
	mu       sync.Mutex
	clk      *clock.Clock
	pre      preselect
	sg       *session
	defaults *config.Config
}

func New(clk *clock.Clock) *Engine {
	return &Engine{clk: clk}
}

// SetLaunchConfig installs the configuration the supervisor launched the
// audio pipeline with. /start bodies then only fill in project fields;
// the rate and audio fields are frozen until the server is relaunched.
func (e *Engine) SetLaunchConfig(cfg config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := cfg
	e.defaults = &c
}

// withDefaults merges a posted /start body over the launch config.
func (e *Engine) withDefaults(posted config.Config) (config.Config, error) {
	if e.defaults == nil {
		return posted, nil
	}
	cfg := *e.defaults
	if posted.ProjectName != "" {
		cfg.ProjectName = posted.ProjectName
	}
	if posted.StorageDir != "" {
		cfg.StorageDir = posted.StorageDir
	}
	if posted.FrameRate != "" && (posted.FrameRate != cfg.FrameRate || posted.DropFrame != cfg.DropFrame) {
		return cfg, errf(KindBadConfig, "frame rate is frozen at launch (%s, drop_frame=%t)", cfg.FrameRate, cfg.DropFrame)
	}
	return cfg, nil
}

// Start validates the configuration and opens a session. The EDL file is
// created once the first timecode frame has been seen, so the call returns
// with the session in Waiting.
func (e *Engine) Start(posted config.Config) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sg != nil {
		return e.status(), errf(KindState, "recording has already started, cannot start in state %s", e.clk.State())
	}
	cfg, err := e.withDefaults(posted)
	if err != nil {
		return e.status(), err
	}
	if err := cfg.Validate(); err != nil {
		return e.status(), wrap(KindBadConfig, err, "invalid session config")
	}
	rate, drop, err := cfg.Rate()
	if err != nil {
		return e.status(), wrap(KindBadConfig, err, "invalid session config")
	}

	e.sg = newSession(cfg, rate, drop)
	e.clk.Arm()
	log.Printf("session %s: waiting for timecode signal (%s %s)", e.sg.id, rate, drop)
	return e.status(), nil
}

// Log closes the currently open span at the clock's timecode and opens the
// next one. The emitted row(s) take their source, channels and transition
// from this event, falling back to the preselected source.
func (e *Engine) Log(ev Event) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.requireStarted()
	if err != nil {
		return e.status(), err
	}
	req, err := e.resolve(ev, false)
	if err != nil {
		return e.status(), err
	}

	records, err := e.sg.emit(req, cur)
	if err != nil {
		if k, _ := KindOf(err); k == KindIO {
			return e.status(), e.failSession(err)
		}
		return e.status(), err
	}
	st := e.status()
	st.Edit = &records[len(records)-1]
	return st, nil
}

// End emits the final row(s) cutting to black, closes the file and stops
// the session. The event's source and channels are ignored.
func (e *Engine) End(ev Event) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.requireStarted()
	if err != nil {
		return e.status(), err
	}
	req, err := e.resolve(ev, true)
	if err != nil {
		return e.status(), err
	}

	records, err := e.sg.emit(req, cur)
	if err != nil {
		if k, _ := KindOf(err); k == KindIO {
			return e.status(), e.failSession(err)
		}
		return e.status(), err
	}
	path := e.sg.writer.Path()
	if err := e.sg.writer.Close(); err != nil {
		return e.status(), e.failSession(wrap(KindIO, err, "could not close EDL file"))
	}
	log.Printf("session %s: ended, %s written", e.sg.id, path)
	e.sg = nil
	e.clk.Stop()

	st := e.status()
	st.FinalEdits = records
	return st, nil
}

// SelectSource stores the fallback source for events that omit theirs.
// Valid in any state and never fails.
func (e *Engine) SelectSource(ev Event) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.SourceTape != nil {
		e.pre.tape = *ev.SourceTape
		e.pre.hasTape = true
	}
	if ev.AVChannels != nil {
		e.pre.channels = *ev.AVChannels
		e.pre.hasChannels = true
	}
	log.Printf("source preselected: tape=%q channels=%q", e.pre.tape, e.pre.channels.Code())
	return e.status()
}

// State reports the current recording state. Polling it also advances the
// Waiting -> Started materialization, as Log, End and Shutdown do.
func (e *Engine) State() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.materialize()
	return e.status()
}

// Shutdown finalizes an open session with an implicit END: a cut to black
// at the last observed timecode.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sg == nil {
		e.clk.Stop()
		return
	}
	e.materialize()
	if e.sg.writer != nil {
		snap := e.clk.Current()
		if snap.LastFrame != nil {
			req := request{editType: edl.Cut, tape: "BL", clip: "Cut", channels: e.sg.prevChannels, toBlack: true}
			if _, err := e.sg.emit(req, *snap.LastFrame); err != nil {
				log.Printf("session %s: implicit end failed: %v", e.sg.id, err)
			}
		}
		if err := e.sg.writer.Close(); err != nil {
			log.Printf("session %s: close failed: %v", e.sg.id, err)
		} else {
			log.Printf("session %s: finalized on shutdown, %s written", e.sg.id, e.sg.writer.Path())
		}
	}
	e.sg = nil
	e.clk.Stop()
}

// status builds the response envelope from the clock state.
func (e *Engine) status() Status {
	return Status{RecordingState: e.clk.State().String()}
}

// materialize performs the deferred part of START: once the clock has seen
// the first frame, create the EDL file and anchor the session's in-point
// and record timeline. Runs under the engine mutex.
func (e *Engine) materialize() error {
	if e.sg == nil || e.sg.writer != nil {
		return nil
	}
	snap := e.clk.Current()
	if snap.State != clock.Started || snap.SessionOrigin == nil {
		return nil
	}
	if err := e.sg.open(*snap.SessionOrigin); err != nil {
		return e.failSession(err)
	}
	log.Printf("session %s: timecode signal detected at %s, writing %s", e.sg.id, snap.SessionOrigin, e.sg.writer.Path())
	return nil
}

// requireStarted gates LOG and END: the session must exist and have seen
// its first frame, and the clock must not be stale. It returns the
// timecode read once for the whole operation.
func (e *Engine) requireStarted() (timecode.Timecode, error) {
	if err := e.materialize(); err != nil {
		return timecode.Timecode{}, err
	}
	if e.sg == nil || e.sg.writer == nil {
		return timecode.Timecode{}, errf(KindState, "recording not yet started")
	}
	snap := e.clk.Current()
	if snap.LastFrame == nil {
		return timecode.Timecode{}, errf(KindState, "recording not yet started")
	}
	if snap.Stale(time.Now()) {
		return timecode.Timecode{}, errf(KindStale, "timecode signal lost, last frame was %s", snap.LastFrame)
	}
	return *snap.LastFrame, nil
}

// resolve turns a wire event into a validated emission request, applying
// the preselect fallback.
func (e *Engine) resolve(ev Event, toBlack bool) (request, error) {
	editType, err := edl.ParseEditType(ev.EditType)
	if err != nil {
		return request{}, wrap(KindData, err, "invalid edit_type")
	}

	req := request{editType: editType, toBlack: toBlack}
	if editType != edl.Cut {
		if ev.EditDurationFrames == nil {
			return request{}, errf(KindMissingField, "edit type %q requires edit_duration_frames", editType)
		}
		d := *ev.EditDurationFrames
		if d < 1 || d > 999 {
			return request{}, errf(KindInvalidDuration, "edit_duration_frames %d out of range 1..999", d)
		}
		req.duration = d
	}
	if editType == edl.Wipe {
		req.wipeNum = 1
		if ev.WipeNum != nil {
			n := *ev.WipeNum
			if n < 1 || n > 999 {
				return request{}, errf(KindInvalidDuration, "wipe_num %d out of range 1..999", n)
			}
			req.wipeNum = n
		}
	}

	if toBlack {
		// END always cuts to black; source and channels on the event are
		// ignored and the previous row's channels carry over.
		req.tape = "BL"
		req.clip = transitionClipName(editType)
		req.channels = e.sg.prevChannels
		return req, nil
	}

	switch {
	case ev.SourceTape != nil:
		req.clip = *ev.SourceTape
	case e.pre.hasTape:
		req.clip = e.pre.tape
	default:
		return request{}, errf(KindMissingField, "source_tape missing and no source preselected")
	}
	req.tape = edl.TapeName(req.clip)
	if req.tape == "" {
		return request{}, errf(KindMissingField, "source_tape is empty")
	}

	switch {
	case ev.AVChannels != nil:
		req.channels = *ev.AVChannels
	case e.pre.hasChannels:
		req.channels = e.pre.channels
	default:
		return request{}, errf(KindMissingField, "av_channels missing and no channels preselected")
	}
	if req.channels.Code() == "" {
		return request{}, errf(KindData, "av_channels selects no valid channel combination")
	}
	return req, nil
}

// transitionClipName is the comment label for rows that cut to black.
func transitionClipName(t edl.EditType) string {
	if t == edl.Cut {
		return "Cut"
	}
	return "Cross Dissolve"
}

// failSession tears the session down after a fatal error, attempting a
// clean file close.
func (e *Engine) failSession(err error) error {
	if e.sg != nil {
		if e.sg.writer != nil {
			e.sg.writer.Close()
		}
		log.Printf("session %s: fatal: %v", e.sg.id, err)
		e.sg = nil
	}
	e.clk.Stop()
	return err
}
