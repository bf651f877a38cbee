package ltc

import (
	"testing"
)

// encodeWord is the inverse of decodeWord, used by the test modulator.
func encodeWord(f Frame) uint64 {
	var w uint64
	set := func(start, n uint, v int) {
		for j := uint(0); j < n; j++ {
			if v>>j&1 == 1 {
				w |= 1 << (63 - (start + j))
			}
		}
	}
	set(0, 4, f.Frames%10)
	set(8, 2, f.Frames/10)
	set(16, 4, f.Seconds%10)
	set(24, 3, f.Seconds/10)
	set(32, 4, f.Minutes%10)
	set(40, 3, f.Minutes/10)
	set(48, 4, f.Hours%10)
	set(56, 2, f.Hours/10)
	if f.DropFrame {
		w |= 1 << (63 - 10)
	}
	if f.ColorFrame {
		w |= 1 << (63 - 11)
	}
	for g := uint(0); g < 8; g++ {
		set(g*8+4, 4, int(f.UserBits>>(g*4)&0xF))
	}
	return w
}

// modulator renders frames as a biphase-mark waveform.
type modulator struct {
	spb   float64
	level float32
	acc   float64
	out   []float32
}

func (m *modulator) hold(dur float64) {
	m.acc += dur
	for m.acc >= 1 {
		m.out = append(m.out, m.level)
		m.acc--
	}
}

func (m *modulator) word(w uint64) {
	for i := uint(0); i < 80; i++ {
		var b uint64
		if i < 64 {
			b = w >> (63 - i) & 1
		} else {
			b = uint64(syncWord) >> (79 - i) & 1
		}
		m.level = -m.level
		if b == 1 {
			m.hold(m.spb / 2)
			m.level = -m.level
			m.hold(m.spb / 2)
		} else {
			m.hold(m.spb)
		}
	}
}

func modulate(frames []Frame, sampleRate, fps float64) []float32 {
	m := &modulator{spb: sampleRate / (fps * 80), level: -0.8}
	for _, f := range frames {
		m.word(encodeWord(f))
	}
	// Trailing guard edge: the closing transition of the last bit cell,
	// without which the final frame never completes.
	m.level = -m.level
	m.hold(m.spb)
	return m.out
}

func sequence(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{Hours: 1, Seconds: i / 25, Frames: i % 25}
	}
	return frames
}

func decodeAll(t *testing.T, d *Decoder, samples []float32, chunk int) []Frame {
	t.Helper()
	var got []Frame
	buf := make([]Frame, 0, 16)
	for off := 0; off < len(samples); off += chunk {
		end := off + chunk
		if end > len(samples) {
			end = len(samples)
		}
		frames, _ := d.Write(samples[off:end], buf[:0])
		got = append(got, frames...)
	}
	return got
}

func TestDecodeSequence(t *testing.T) {
	want := sequence(10)
	samples := modulate(want, 48000, 25)
	d := NewDecoder(48000, 25)
	got := decodeAll(t, d, samples, len(samples))
	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.String() != want[i].String() {
			t.Errorf("frame %d = %s, want %s", i, f, want[i])
		}
		if f.Reverse {
			t.Errorf("frame %d flagged reverse", i)
		}
	}
	if !d.Locked() {
		t.Error("decoder not locked after clean decode")
	}
}

func TestDecodeArbitraryBufferSizes(t *testing.T) {
	want := sequence(8)
	samples := modulate(want, 44100, 30)
	for _, chunk := range []int{1, 7, 64, 480, 1024, 4096} {
		d := NewDecoder(44100, 30)
		got := decodeAll(t, d, samples, chunk)
		if len(got) != len(want) {
			t.Fatalf("chunk %d: decoded %d frames, want %d", chunk, len(got), len(want))
		}
		for i, f := range got {
			if f.Frames != want[i].Frames || f.Seconds != want[i].Seconds {
				t.Errorf("chunk %d frame %d = %s, want %s", chunk, i, f, want[i])
			}
		}
	}
}

func TestDecodeFlagsAndUserBits(t *testing.T) {
	src := Frame{Hours: 12, Minutes: 34, Seconds: 56, Frames: 21, DropFrame: true, ColorFrame: true, UserBits: 0x19840210}
	samples := modulate([]Frame{src, src, src}, 48000, 29.97)
	d := NewDecoder(48000, 29.97)
	got := decodeAll(t, d, samples, 512)
	if len(got) == 0 {
		t.Fatal("no frames decoded")
	}
	f := got[0]
	if f.String() != "12:34:56:21" {
		t.Errorf("time = %s", f)
	}
	if !f.DropFrame || !f.ColorFrame {
		t.Errorf("flags = drop %v color %v", f.DropFrame, f.ColorFrame)
	}
	if f.UserBits != 0x19840210 {
		t.Errorf("user bits = %08x", f.UserBits)
	}
}

func TestSampleRateMismatch(t *testing.T) {
	// Signal rendered 4% fast relative to what the decoder was told; the
	// adaptive cell estimate has to absorb it.
	want := sequence(12)
	samples := modulate(want, 46080, 25)
	d := NewDecoder(48000, 25)
	got := decodeAll(t, d, samples, 1024)
	if len(got) < len(want)-1 {
		t.Fatalf("decoded %d frames, want at least %d", len(got), len(want)-1)
	}
}

func TestResetOnSilence(t *testing.T) {
	frames := sequence(4)
	samples := modulate(frames, 48000, 25)
	gap := make([]float32, 48000/5) // 200 ms of dead air
	d := NewDecoder(48000, 25)

	buf := make([]Frame, 0, 16)
	got, reset := d.Write(samples, buf[:0])
	if len(got) != 4 || reset {
		t.Fatalf("clean pass: %d frames, reset %v", len(got), reset)
	}
	_, reset = d.Write(gap, buf[:0])
	if !reset {
		t.Error("silence did not report a reset")
	}
	if d.Locked() {
		t.Error("decoder still locked after silence")
	}
	// Relocks on the next clean signal.
	got, _ = d.Write(samples, buf[:0])
	if len(got) == 0 {
		t.Error("no frames after relock")
	}
}

func TestReversePlay(t *testing.T) {
	frames := sequence(6)
	forward := modulate(frames, 48000, 25)
	reversed := make([]float32, len(forward))
	for i, s := range forward {
		reversed[len(forward)-1-i] = s
	}
	d := NewDecoder(48000, 25)
	got := decodeAll(t, d, reversed, 1024)
	if len(got) == 0 {
		t.Fatal("no frames decoded from reversed signal")
	}
	for _, f := range got {
		if !f.Reverse {
			t.Errorf("frame %s not flagged reverse", f)
		}
	}
	// Reversed playback counts down.
	if len(got) >= 2 && got[0].Frames < got[1].Frames {
		t.Errorf("reverse frames not descending: %s then %s", got[0], got[1])
	}
}

func TestNoAllocationSteadyState(t *testing.T) {
	samples := modulate(sequence(4), 48000, 25)
	d := NewDecoder(48000, 25)
	buf := make([]Frame, 0, 16)
	d.Write(samples, buf[:0])
	allocs := testing.AllocsPerRun(20, func() {
		d.Write(samples, buf[:0])
	})
	if allocs != 0 {
		t.Errorf("Write allocates %.1f times per call", allocs)
	}
}
