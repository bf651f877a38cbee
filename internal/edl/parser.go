package edl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oliwoli/edlgen/internal/timecode"
)

// EDL is a parsed list: header plus rows in file order.
type EDL struct {
	Title   string
	Drop    timecode.DropFrame
	Records []Record
}

// Parse reads an EDL back into records. The frame rate is not stored in
// the file, so the caller supplies it; the counting mode comes from the
// FCM line.
func Parse(r io.Reader, rate timecode.FrameRate) (*EDL, error) {
	out := &EDL{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "TITLE:"):
			out.Title = strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
			continue
		case strings.HasPrefix(line, "FCM:"):
			mode := strings.TrimSpace(strings.TrimPrefix(line, "FCM:"))
			switch mode {
			case timecode.Drop.String():
				out.Drop = timecode.Drop
			case timecode.NonDrop.String():
				out.Drop = timecode.NonDrop
			default:
				return nil, fmt.Errorf("line %d: unknown FCM mode %q", lineNo, mode)
			}
			continue
		case strings.HasPrefix(line, "*"):
			attachComment(out, line)
			continue
		}

		rec, err := parseRow(line, rate, out.Drop)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out.Records = append(out.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func attachComment(out *EDL, line string) {
	if len(out.Records) == 0 {
		return
	}
	body := strings.TrimSpace(strings.TrimPrefix(line, "*"))
	for _, prefix := range []string{"FROM CLIP NAME:", "TO CLIP NAME:"} {
		if strings.HasPrefix(body, prefix) {
			out.Records[len(out.Records)-1].ClipName = strings.TrimSpace(strings.TrimPrefix(body, prefix))
			return
		}
	}
}

func parseRow(line string, rate timecode.FrameRate, drop timecode.DropFrame) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 8 && len(fields) != 9 {
		return Record{}, fmt.Errorf("%w: expected 8 or 9 columns, got %d", ErrInvalidRecord, len(fields))
	}

	var rec Record
	num, err := strconv.Atoi(fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("%w: event number %q", ErrInvalidRecord, fields[0])
	}
	rec.EventNumber = num
	rec.SourceTape = fields[1]

	rec.AVChannels, err = ParseChannelCode(fields[2])
	if err != nil {
		return Record{}, err
	}

	trans := fields[3]
	switch {
	case trans == "C":
		rec.EditType = Cut
	case trans == "D":
		rec.EditType = Dissolve
	case strings.HasPrefix(trans, "W") && len(trans) == 4:
		rec.EditType = Wipe
		if rec.WipeNum, err = strconv.Atoi(trans[1:]); err != nil {
			return Record{}, fmt.Errorf("%w: wipe code %q", ErrInvalidRecord, trans)
		}
	default:
		return Record{}, fmt.Errorf("%w: transition %q", ErrInvalidRecord, trans)
	}

	tcs := fields[4:]
	if rec.EditType != Cut {
		if len(fields) != 9 {
			return Record{}, fmt.Errorf("%w: transition row missing duration", ErrInvalidRecord)
		}
		if rec.DurationFrames, err = strconv.Atoi(fields[4]); err != nil {
			return Record{}, fmt.Errorf("%w: duration %q", ErrInvalidRecord, fields[4])
		}
		tcs = fields[5:]
	} else if len(fields) == 9 {
		return Record{}, fmt.Errorf("%w: cut row carries a duration", ErrInvalidRecord)
	}

	parse := func(s string) (timecode.Timecode, error) {
		return timecode.Parse(s, rate, drop)
	}
	if rec.SrcIn, err = parse(tcs[0]); err != nil {
		return Record{}, err
	}
	if rec.SrcOut, err = parse(tcs[1]); err != nil {
		return Record{}, err
	}
	if rec.RecIn, err = parse(tcs[2]); err != nil {
		return Record{}, err
	}
	if rec.RecOut, err = parse(tcs[3]); err != nil {
		return Record{}, err
	}
	return rec, nil
}
