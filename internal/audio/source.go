// Package audio acquires input samples for the LTC decoder, either from a
// live capture device (miniaudio) or from a WAV file. Both paths deliver
// the selected channel as mono float32 buffers through the same Sink.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	ErrDeviceLost        = errors.New("audio device lost")
	ErrUnsupportedConfig = errors.New("unsupported audio config")
	ErrBadChannel        = errors.New("input channel out of range")
)

// Sink receives the selected channel's samples on the capture callback.
// It must not block, allocate or perform I/O.
type Sink func(samples []float32)

// supportedBufferSizes are the period sizes offered to the driver, in
// frames. An unsupported request rounds up to the next entry; a request
// above the largest entry gets the largest entry.
var supportedBufferSizes = []uint32{16, 32, 48, 64, 128, 256, 512, 1024, 2048, 4096, 8192}

// RoundBufferSize returns the effective period size for a requested one.
func RoundBufferSize(requested uint32) uint32 {
	for _, s := range supportedBufferSizes {
		if requested <= s {
			return s
		}
	}
	return supportedBufferSizes[len(supportedBufferSizes)-1]
}

// Device describes one capture device for the configuration UI.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Default  bool   `json:"default"`
	Channels int    `json:"channels"`
}

// ListDevices enumerates the capture devices the OS offers.
func ListDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("could not enumerate capture devices: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:       info.ID.String(),
			Name:     info.Name(),
			Default:  info.IsDefault != 0,
			Channels: deviceChannels(info),
		})
	}
	return devices, nil
}

func deviceChannels(info malgo.DeviceInfo) int {
	max := 0
	for i := uint32(0); i < info.FormatCount && int(i) < len(info.Formats); i++ {
		if c := int(info.Formats[i].Channels); c > max {
			max = c
		}
	}
	if max == 0 {
		max = 2
	}
	return max
}

// Config selects what to capture.
type Config struct {
	DeviceID     string // device name or ID from ListDevices; "" = default
	InputChannel int    // 1-based channel index on the device
	SampleRate   uint32
	BufferSize   uint32
}

// Source is one open capture stream feeding a Sink.
type Source struct {
	ctx      *malgo.AllocatedContext
	dev      *malgo.Device
	sink     Sink
	onError  func(error)
	closing  atomic.Bool
	channels int
	selected int // 0-based
	scratch  []float32
	buffer   uint32
}

// Open acquires the device and prepares the stream without starting it.
// The returned source's BufferSize reports the effective period size after
// rounding.
func Open(cfg Config, sink Sink, onError func(error)) (*Source, error) {
	if cfg.InputChannel < 1 {
		return nil, fmt.Errorf("%w: channel %d is 1-based", ErrBadChannel, cfg.InputChannel)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}

	s := &Source{
		ctx:      ctx,
		sink:     sink,
		onError:  onError,
		selected: cfg.InputChannel - 1,
		buffer:   RoundBufferSize(cfg.BufferSize),
	}

	info, err := findDevice(ctx, cfg.DeviceID)
	if err != nil {
		s.teardown()
		return nil, err
	}
	s.channels = deviceChannels(info)
	if cfg.InputChannel > s.channels {
		s.teardown()
		return nil, fmt.Errorf("%w: channel %d exceeds device %q with %d channels",
			ErrBadChannel, cfg.InputChannel, info.Name(), s.channels)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = uint32(s.channels)
	devCfg.Capture.DeviceID = info.ID.Pointer()
	devCfg.SampleRate = cfg.SampleRate
	devCfg.PeriodSizeInFrames = s.buffer

	// Scratch sized for the largest callback we expect; the callback
	// itself never allocates.
	s.scratch = make([]float32, 4*s.buffer)

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: func() {
			if !s.closing.Load() && s.onError != nil {
				s.onError(ErrDeviceLost)
			}
		},
	}
	dev, err := malgo.InitDevice(ctx.Context, devCfg, callbacks)
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}
	s.dev = dev
	log.Printf("audio source open: device %q, channel %d/%d, %d Hz, buffer %d",
		info.Name(), cfg.InputChannel, s.channels, cfg.SampleRate, s.buffer)
	return s, nil
}

func findDevice(ctx *malgo.AllocatedContext, id string) (malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	if len(infos) == 0 {
		return malgo.DeviceInfo{}, fmt.Errorf("%w: no capture devices", ErrDeviceLost)
	}
	if id == "" {
		for _, info := range infos {
			if info.IsDefault != 0 {
				return info, nil
			}
		}
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name() == id || info.ID.String() == id {
			return info, nil
		}
	}
	// The stored device may have been unplugged since the config was
	// saved; fall back to the default rather than refusing to run.
	log.Printf("audio device %q not found, falling back to default", id)
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info, nil
		}
	}
	return infos[0], nil
}

// onData is the real-time capture callback: de-interleave the selected
// channel into the preallocated scratch buffer and hand it to the sink.
func (s *Source) onData(_, input []byte, frameCount uint32) {
	if input == nil {
		return
	}
	n := int(frameCount)
	if n > len(s.scratch) {
		n = len(s.scratch)
	}
	stride := 4 * s.channels
	off := 4 * s.selected
	for i := 0; i < n; i++ {
		base := i*stride + off
		if base+4 > len(input) {
			n = i
			break
		}
		s.scratch[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[base:]))
	}
	s.sink(s.scratch[:n])
}

// Start begins capture.
func (s *Source) Start() error {
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	return nil
}

// BufferSize reports the effective period size in frames.
func (s *Source) BufferSize() uint32 { return s.buffer }

// Close stops the stream and releases the device. Waits for the last
// callback to return before tearing down.
func (s *Source) Close() {
	if s.dev != nil {
		s.closing.Store(true)
		s.dev.Uninit()
		s.dev = nil
	}
	s.teardown()
}

func (s *Source) teardown() {
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
}
