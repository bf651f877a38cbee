package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestRoundBufferSize(t *testing.T) {
	tests := []struct{ req, want uint32 }{
		{0, 16},
		{16, 16},
		{17, 32},
		{100, 128},
		{512, 512},
		{513, 1024},
		{100000, 8192},
	}
	for _, tt := range tests {
		if got := RoundBufferSize(tt.req); got != tt.want {
			t.Errorf("RoundBufferSize(%d) = %d, want %d", tt.req, got, tt.want)
		}
	}
}

func writeStereoWav(t *testing.T, path string, left, right []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 48000, 16, 2, 1)
	data := make([]int, 0, len(left)*2)
	for i := range left {
		data = append(data, left[i], right[i])
	}
	buf := &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: 2, SampleRate: 48000},
		Data:   data,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestStreamWavSelectsChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	left := []int{0, 8192, 16384, -16384, -8192, 0, 32767, -32768}
	right := []int{1, 1, 1, 1, 1, 1, 1, 1}
	writeStereoWav(t, path, left, right)

	var got []float32
	info, err := StreamWav(path, 1, 3, func(samples []float32) {
		got = append(got, samples...)
	})
	if err != nil {
		t.Fatal(err)
	}
	if info.SampleRate != 48000 || info.Channels != 2 {
		t.Errorf("info = %+v", info)
	}
	if len(got) != len(left) {
		t.Fatalf("streamed %d samples, want %d", len(got), len(left))
	}
	for i, want := range left {
		expect := float32(want) / 32768
		if math.Abs(float64(got[i]-expect)) > 1e-6 {
			t.Errorf("sample %d = %f, want %f", i, got[i], expect)
		}
	}

	// Channel 2 is the flat track.
	got = got[:0]
	if _, err := StreamWav(path, 2, 1024, func(samples []float32) {
		got = append(got, samples...)
	}); err != nil {
		t.Fatal(err)
	}
	for i, s := range got {
		if math.Abs(float64(s-1.0/32768)) > 1e-6 {
			t.Errorf("right sample %d = %f", i, s)
		}
	}
}

func TestStreamWavBadChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	writeStereoWav(t, path, []int{0, 0}, []int{0, 0})
	if _, err := StreamWav(path, 3, 64, func([]float32) {}); !errors.Is(err, ErrBadChannel) {
		t.Errorf("channel 3 of 2: %v", err)
	}
	if _, err := StreamWav(path, 0, 64, func([]float32) {}); !errors.Is(err, ErrBadChannel) {
		t.Errorf("channel 0: %v", err)
	}
}

func TestStreamWavMissingFile(t *testing.T) {
	if _, err := StreamWav(filepath.Join(t.TempDir(), "nope.wav"), 1, 64, func([]float32) {}); err == nil {
		t.Error("missing file accepted")
	}
}
