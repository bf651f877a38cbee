package edl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oliwoli/edlgen/internal/timecode"
)

func tc(t *testing.T, s string, rate timecode.FrameRate, drop timecode.DropFrame) timecode.Timecode {
	t.Helper()
	v, err := timecode.Parse(s, rate, drop)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestChannelCodes(t *testing.T) {
	tests := []struct {
		video bool
		audio uint8
		want  string
	}{
		{true, 0, "V"},
		{false, 1, "A"},
		{false, 2, "A2"},
		{true, 1, "A/V"},
		{true, 2, "AA/V"},
		{true, 3, "AA3/V"},
		{true, 4, "AA4/V"},
		{false, 3, "AA3"},
		{false, 4, "AA4"},
		{false, 0, ""},
		{true, 5, ""},
	}
	for _, tt := range tests {
		a := AVChannels{Video: tt.video, Audio: tt.audio}
		if got := a.Code(); got != tt.want {
			t.Errorf("Code(%v, %d) = %q, want %q", tt.video, tt.audio, got, tt.want)
		}
		if tt.want != "" {
			back, err := ParseChannelCode(tt.want)
			if err != nil || back != a {
				t.Errorf("ParseChannelCode(%q) = %v, %v", tt.want, back, err)
			}
		}
	}
}

func TestLineColumns(t *testing.T) {
	rate, drop := timecode.Rate30, timecode.NonDrop
	cut := Record{
		EventNumber: 1,
		SourceTape:  "CLIP01",
		AVChannels:  AVChannels{Video: true},
		EditType:    Cut,
		SrcIn:       tc(t, "01:00:00:00", rate, drop),
		SrcOut:      tc(t, "01:00:05:12", rate, drop),
		RecIn:       tc(t, "01:00:00:00", rate, drop),
		RecOut:      tc(t, "01:00:05:12", rate, drop),
	}
	line, err := cut.Line()
	if err != nil {
		t.Fatal(err)
	}
	want := "001  CLIP01   V     C           01:00:00:00 01:00:05:12 01:00:00:00 01:00:05:12"
	if line != want {
		t.Errorf("cut line:\n got %q\nwant %q", line, want)
	}

	diss := Record{
		EventNumber:    2,
		SourceTape:     "CLIP02",
		AVChannels:     AVChannels{Video: true, Audio: 2},
		EditType:       Dissolve,
		DurationFrames: 18,
		SrcIn:          tc(t, "01:02:00:00", rate, drop),
		SrcOut:         tc(t, "01:02:00:18", rate, drop),
		RecIn:          tc(t, "01:00:05:12", rate, drop),
		RecOut:         tc(t, "01:00:06:00", rate, drop),
	}
	line, err = diss.Line()
	if err != nil {
		t.Fatal(err)
	}
	want = "002  CLIP02   AA/V  D    018    01:02:00:00 01:02:00:18 01:00:05:12 01:00:06:00"
	if line != want {
		t.Errorf("dissolve line:\n got %q\nwant %q", line, want)
	}

	wipe := diss
	wipe.EventNumber = 3
	wipe.EditType = Wipe
	wipe.WipeNum = 19
	line, err = wipe.Line()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(line, " W019 018    ") {
		t.Errorf("wipe line missing W019/018 columns: %q", line)
	}
}

func TestLineValidation(t *testing.T) {
	r := Record{EventNumber: 1000, SourceTape: "x", AVChannels: AVChannels{Video: true}}
	if _, err := r.Line(); err == nil {
		t.Error("event 1000 accepted")
	}
	r = Record{EventNumber: 1, SourceTape: "x", AVChannels: AVChannels{Audio: 0}}
	if _, err := r.Line(); err == nil {
		t.Error("empty channel selection accepted")
	}
}

func TestTapeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"test", "test"},
		{"testtest.test", "testtest"},
		{" ", "_"},
		{"a tape ", "a_tape_"},
		{"a tape and long", "a_tape_a"},
	}
	for _, tt := range tests {
		if got := TapeName(tt.in); got != tt.want {
			t.Errorf("TapeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	touch("my.edl")
	touch("my(1).edl")
	touch("my(3).edl")

	w, err := Create(dir, "my", timecode.NonDrop)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if got := filepath.Base(w.Path()); got != "my(2).edl" {
		t.Errorf("chose %q, want my(2).edl", got)
	}

	// Pre-existing files untouched.
	data, err := os.ReadFile(filepath.Join(dir, "my.edl"))
	if err != nil || string(data) != "x" {
		t.Errorf("my.edl was modified: %q, %v", data, err)
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	rate, drop := timecode.Rate2997, timecode.Drop
	dir := t.TempDir()
	w, err := Create(dir, "roundtrip", drop)
	if err != nil {
		t.Fatal(err)
	}

	records := []Record{
		{
			EventNumber: 1, SourceTape: "CAM1", ClipName: "CAM1 long name",
			AVChannels: AVChannels{Video: true}, EditType: Cut,
			SrcIn:  tc(t, "01:00:00;00", rate, drop),
			SrcOut: tc(t, "01:00:02;15", rate, drop),
			RecIn:  tc(t, "01:00:00;00", rate, drop),
			RecOut: tc(t, "01:00:02;15", rate, drop),
		},
		{
			EventNumber: 2, SourceTape: "CAM2", ClipName: "CAM2",
			AVChannels: AVChannels{Video: true, Audio: 2}, EditType: Wipe,
			DurationFrames: 18, WipeNum: 19,
			SrcIn:  tc(t, "01:00:02;15", rate, drop),
			SrcOut: tc(t, "01:00:05;00", rate, drop),
			RecIn:  tc(t, "01:00:02;15", rate, drop),
			RecOut: tc(t, "01:00:05;00", rate, drop),
		},
	}
	if err := w.Write(records...); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	parsed, err := Parse(f, rate)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Title != "roundtrip" || parsed.Drop != drop {
		t.Errorf("header = %q / %v", parsed.Title, parsed.Drop)
	}
	if len(parsed.Records) != len(records) {
		t.Fatalf("parsed %d records, want %d", len(parsed.Records), len(records))
	}
	for i, got := range parsed.Records {
		if got != records[i] {
			t.Errorf("record %d:\n got %+v\nwant %+v", i, got, records[i])
		}
	}
}

func TestHeaderFCM(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, "ndf", timecode.NonDrop)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := "TITLE: ndf\nFCM: NON-DROP FRAME\n\n"
	if string(data) != want {
		t.Errorf("header = %q, want %q", data, want)
	}
}

func TestRecordJSON(t *testing.T) {
	rate, drop := timecode.Rate25, timecode.NonDrop
	r := Record{
		EventNumber: 7, SourceTape: "CAM1",
		AVChannels: AVChannels{Video: true, Audio: 2}, EditType: Wipe,
		DurationFrames: 18, WipeNum: 19,
		SrcIn:  tc(t, "01:00:00:00", rate, drop),
		SrcOut: tc(t, "01:00:01:00", rate, drop),
		RecIn:  tc(t, "01:00:00:00", rate, drop),
		RecOut: tc(t, "01:00:01:00", rate, drop),
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["event_number"] != float64(7) || m["edit_type"] != "wipe" {
		t.Errorf("json = %s", data)
	}
	if m["src_in"] != "01:00:00:00" {
		t.Errorf("src_in = %v", m["src_in"])
	}
	if m["edit_duration_frames"] != float64(18) || m["wipe_num"] != float64(19) {
		t.Errorf("transition fields = %s", data)
	}
	av, ok := m["av_channels"].(map[string]any)
	if !ok || av["video"] != true || av["audio"] != float64(2) {
		t.Errorf("av_channels = %v", m["av_channels"])
	}

	cutJSON, err := json.Marshal(Record{EventNumber: 1, SourceTape: "x", AVChannels: AVChannels{Video: true}, SrcIn: r.SrcIn, SrcOut: r.SrcOut, RecIn: r.RecIn, RecOut: r.RecOut})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(cutJSON), "edit_duration_frames") || strings.Contains(string(cutJSON), "wipe_num") {
		t.Errorf("cut json carries transition fields: %s", cutJSON)
	}
}
