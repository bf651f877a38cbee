package audio

import (
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavInfo describes a WAV file accepted as an LTC source.
type WavInfo struct {
	SampleRate int
	Channels   int
}

// ProbeWav reports a WAV file's format without reading its samples.
func ProbeWav(path string) (WavInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return WavInfo{}, fmt.Errorf("failed to open input file %q: %w", path, err)
	}
	defer file.Close()
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return WavInfo{}, fmt.Errorf("%w: not a valid WAV file", ErrUnsupportedConfig)
	}
	format := decoder.Format()
	if format == nil || format.NumChannels == 0 {
		return WavInfo{}, fmt.Errorf("%w: no audio format details", ErrUnsupportedConfig)
	}
	return WavInfo{SampleRate: int(format.SampleRate), Channels: int(format.NumChannels)}, nil
}

// StreamWav replays a WAV file through the same Sink contract as live
// capture: the selected 1-based channel, converted to float32, delivered
// in chunkFrames-sized buffers, as fast as the file is read. Used for
// decoding timecode from a recording.
func StreamWav(path string, channel int, chunkFrames int, sink Sink) (WavInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return WavInfo{}, fmt.Errorf("failed to open input file %q: %w", path, err)
	}
	defer file.Close()
	return streamWavFile(file, channel, chunkFrames, sink)
}

func streamWavFile(file *os.File, channel, chunkFrames int, sink Sink) (WavInfo, error) {
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return WavInfo{}, fmt.Errorf("%w: not a valid WAV file", ErrUnsupportedConfig)
	}
	format := decoder.Format()
	if format == nil || format.NumChannels == 0 {
		return WavInfo{}, fmt.Errorf("%w: no audio format details", ErrUnsupportedConfig)
	}
	info := WavInfo{SampleRate: int(format.SampleRate), Channels: int(format.NumChannels)}
	if channel < 1 || channel > info.Channels {
		return info, fmt.Errorf("%w: channel %d of %d", ErrBadChannel, channel, info.Channels)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	if chunkFrames < 1 {
		chunkFrames = 1024
	}
	pcm := &gaudio.IntBuffer{
		Format: format,
		Data:   make([]int, chunkFrames*info.Channels),
	}
	mono := make([]float32, chunkFrames)

	for {
		n, err := decoder.PCMBuffer(pcm)
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, fmt.Errorf("error reading PCM chunk: %w", err)
		}
		if n == 0 {
			break
		}
		frames := n / info.Channels
		for i := 0; i < frames; i++ {
			mono[i] = float32(pcm.Data[i*info.Channels+channel-1]) / scale
		}
		sink(mono[:frames])
	}
	return info, nil
}
