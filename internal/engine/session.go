package engine

import (
	"log"

	"github.com/google/uuid"
	"github.com/oliwoli/edlgen/internal/config"
	"github.com/oliwoli/edlgen/internal/edl"
	"github.com/oliwoli/edlgen/internal/timecode"
)

// recordStartHour is the CMX3600 convention for where program time begins.
const recordStartHour = 1

// request is a resolved, validated emission: what the closing event asks
// the session to write.
type request struct {
	editType edl.EditType
	tape     string
	clip     string
	channels edl.AVChannels
	duration int
	wipeNum  int
	toBlack  bool
}

// session is the engine's state between START and END.
type session struct {
	id   string
	cfg  config.Config
	rate timecode.FrameRate
	drop timecode.DropFrame

	writer   *edl.Writer
	eventNum int

	pendingIn timecode.Timecode // in-point of the open span
	recordTC  timecode.Timecode // running record timeline

	prevTape     string
	prevClip     string
	prevChannels edl.AVChannels
}

func newSession(cfg config.Config, rate timecode.FrameRate, drop timecode.DropFrame) *session {
	return &session{
		id:       uuid.NewString(),
		cfg:      cfg,
		rate:     rate,
		drop:     drop,
		eventNum: 1,
		// Until a row is emitted, transitions fall back to black with a
		// bare video channel.
		prevTape:     "BL",
		prevClip:     "Cut",
		prevChannels: edl.AVChannels{Video: true},
	}
}

// open creates the EDL file and anchors the session at the first decoded
// timecode.
func (s *session) open(origin timecode.Timecode) error {
	w, err := edl.Create(s.cfg.StorageDir, s.cfg.ProjectName, s.drop)
	if err != nil {
		return wrap(KindIO, err, "could not open EDL file")
	}
	s.writer = w
	s.pendingIn = origin
	start, err := timecode.New(recordStartHour, 0, 0, 0, s.rate, s.drop)
	if err != nil {
		w.Close()
		return wrap(KindBadConfig, err, "could not build record start timecode")
	}
	s.recordTC = start
	return nil
}

// emit closes the open span [pendingIn, cur] with the requested edit and
// writes one row for a cut or two for a transition. It then re-opens the
// span at cur.
func (s *session) emit(req request, cur timecode.Timecode) ([]edl.Record, error) {
	rows := 1
	if req.editType != edl.Cut {
		rows = 2
	}
	if s.eventNum+rows-1 > 999 {
		return nil, errf(KindData, "cannot exceed 999 edits")
	}

	in := s.pendingIn
	out := cur
	if req.editType != edl.Cut {
		// A transition never reads shorter than its duration.
		if ext := in.AddFrames(int64(req.duration)); out.Before(ext) {
			out = ext
		}
	}
	span, err := out.Sub(in)
	if err != nil {
		return nil, wrap(KindData, err, "timecode rate changed mid-session")
	}
	if span < 0 {
		// Timecode jumped backwards (source rewound); clamp to a
		// zero-length edit rather than writing a negative span.
		out = in
		span = 0
	}

	var records []edl.Record
	if req.editType == edl.Cut {
		records = append(records, edl.Record{
			EventNumber: s.eventNum,
			SourceTape:  req.tape,
			ClipName:    req.clip,
			AVChannels:  req.channels,
			EditType:    edl.Cut,
			SrcIn:       in,
			SrcOut:      out,
			RecIn:       s.recordTC,
			RecOut:      s.recordTC.AddFrames(span),
		})
	} else {
		// Outgoing row: zero-length cut on the previous source at the
		// boundary, then the transition row on the new source. Both sit
		// at the same point of the record timeline.
		records = append(records, edl.Record{
			EventNumber: s.eventNum,
			SourceTape:  s.prevTape,
			ClipName:    s.prevClip,
			AVChannels:  s.prevChannels,
			EditType:    edl.Cut,
			SrcIn:       in,
			SrcOut:      in,
			RecIn:       s.recordTC,
			RecOut:      s.recordTC,
		}, edl.Record{
			EventNumber:    s.eventNum + 1,
			SourceTape:     req.tape,
			ClipName:       req.clip,
			AVChannels:     req.channels,
			EditType:       req.editType,
			DurationFrames: req.duration,
			WipeNum:        req.wipeNum,
			SrcIn:          in,
			SrcOut:         out,
			RecIn:          s.recordTC,
			RecOut:         s.recordTC.AddFrames(span),
		})
	}

	if err := s.writer.Write(records...); err != nil {
		return nil, wrap(KindIO, err, "could not write edit")
	}
	for _, r := range records {
		if line, err := r.Line(); err == nil {
			log.Print(line)
		}
	}

	s.eventNum += rows
	s.recordTC = s.recordTC.AddFrames(span)
	s.pendingIn = cur
	if !req.toBlack {
		s.prevTape = req.tape
		s.prevClip = req.clip
		s.prevChannels = req.channels
	}
	return records, nil
}
