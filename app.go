package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"golang.org/x/sync/errgroup"

	"github.com/oliwoli/edlgen/internal/audio"
	"github.com/oliwoli/edlgen/internal/clock"
	"github.com/oliwoli/edlgen/internal/config"
	"github.com/oliwoli/edlgen/internal/engine"
	"github.com/oliwoli/edlgen/internal/ltc"
	"github.com/oliwoli/edlgen/internal/server"
	"github.com/oliwoli/edlgen/internal/timecode"
)

// App is the Wails-bound application object: configuration source for the
// core and status consumer for the GUI.
type App struct {
	ctx        context.Context
	mu         sync.Mutex
	configPath string
	run        *pipeline
}

// pipeline is one launched capture/serve session.
type pipeline struct {
	cfg config.Config
	eng *engine.Engine
	srv *server.Server
	src *audio.Source
	g   *errgroup.Group
}

func NewApp() *App {
	return &App{configPath: filepath.Join(appSupportDir, "config.json")}
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	log.Printf("EDLgen %s: OnStartup called.", appVersion)
}

// GetVersion reports the app version for the GUI title bar.
func (a *App) GetVersion() string {
	return appVersion
}

// shutdown stops an active pipeline; an open EDL session is finalized with
// an implicit cut to black.
func (a *App) shutdown(ctx context.Context) {
	if err := a.StopServer(); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// GetConfig reads config.json, creating it with defaults if missing.
func (a *App) GetConfig() (config.Config, error) {
	cfg := config.Default()
	fileBytes, err := os.ReadFile(a.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := a.SaveConfig(cfg); saveErr != nil {
				return cfg, saveErr
			}
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", a.configPath, err)
	}
	if err := json.Unmarshal(fileBytes, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config file %s: %w", a.configPath, err)
	}
	return cfg, nil
}

// SaveConfig persists the configuration for the next launch.
func (a *App) SaveConfig(cfg config.Config) error {
	jsonData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config data for saving: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(a.configPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", a.configPath, err)
	}
	return nil
}

// ListAudioDevices enumerates capture devices for the device picker.
func (a *App) ListAudioDevices() ([]audio.Device, error) {
	devices, err := audio.ListDevices()
	if err != nil {
		log.Printf("device enumeration failed: %v", err)
		return nil, err
	}
	return devices, nil
}

// RecordingState reports the engine state for the GUI status line.
func (a *App) RecordingState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run == nil {
		return clock.Stopped.String()
	}
	return a.run.eng.State().RecordingState
}

// ServerAddr returns the HTTP address while the server runs.
func (a *App) ServerAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run == nil {
		return ""
	}
	return a.run.srv.Addr()
}

// LaunchServer wires the whole pipeline: audio callback -> LTC decoder ->
// timecode clock, and the HTTP server in front of the engine. The
// configuration freezes here; /start may override the project fields only.
func (a *App) LaunchServer(cfg config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run != nil {
		return fmt.Errorf("server already running at %s", a.run.srv.Addr())
	}
	if err := cfg.Validate(); err != nil {
		a.emitError(err)
		return err
	}
	rate, drop, err := cfg.Rate()
	if err != nil {
		a.emitError(err)
		return err
	}

	clk := clock.New()
	eng := engine.New(clk)
	eng.SetLaunchConfig(cfg)
	srv := server.New(eng, cfg.Port)
	if err := srv.Listen(); err != nil {
		a.emitError(err)
		return err
	}

	// All decoder state is preallocated here; the capture callback only
	// decodes and publishes.
	dec := ltc.NewDecoder(float64(cfg.LTCSampleRate), rate.FPS())
	frameBuf := make([]ltc.Frame, 0, 64)
	sink := func(samples []float32) {
		frames, _ := dec.Write(samples, frameBuf[:0])
		for _, f := range frames {
			tc, tcErr := timecode.New(f.Hours, f.Minutes, f.Seconds, f.Frames, rate, drop)
			if tcErr != nil {
				continue
			}
			clk.Publish(tc)
		}
	}

	src, err := audio.Open(audio.Config{
		DeviceID:     cfg.DeviceID,
		InputChannel: int(cfg.InputChannel),
		SampleRate:   cfg.LTCSampleRate,
		BufferSize:   cfg.BufferSize,
	}, sink, func(devErr error) {
		// A dying stream is fatal for the session: mark the clock and
		// surface it to the GUI log.
		clk.Stop()
		log.Printf("audio stream error: %v", devErr)
		a.emitError(devErr)
	})
	if err != nil {
		srv.Close()
		a.emitError(err)
		return err
	}
	if err := src.Start(); err != nil {
		src.Close()
		srv.Close()
		a.emitError(err)
		return err
	}
	if src.BufferSize() != cfg.BufferSize {
		log.Printf("buffer size %d unsupported, using %d", cfg.BufferSize, src.BufferSize())
	}

	g := &errgroup.Group{}
	g.Go(srv.Serve)

	a.run = &pipeline{cfg: cfg, eng: eng, srv: srv, src: src, g: g}
	a.emitState(eng.State().RecordingState)
	log.Printf("pipeline launched: %s fps (%s), listening at %s", cfg.FrameRate, drop, srv.Addr())
	return nil
}

// StopServer tears the pipeline down in the order the protocol requires:
// stop accepting requests, stop the audio stream, finalize the EDL.
func (a *App) StopServer() error {
	a.mu.Lock()
	run := a.run
	a.run = nil
	a.mu.Unlock()
	if run == nil {
		return nil
	}

	err := run.srv.Close()
	if serveErr := run.g.Wait(); serveErr != nil && err == nil {
		err = serveErr
	}
	run.src.Close()
	run.eng.Shutdown()
	a.emitState(clock.Stopped.String())
	log.Println("server stopped.")
	return err
}

// DecodeWavFile runs the decoder over a WAV recording and reports the
// first and last timecode found, for checking a file before a session.
func (a *App) DecodeWavFile(path string, channel int, frameRate string) ([]string, error) {
	rate, err := timecode.ParseFrameRate(frameRate)
	if err != nil {
		return nil, err
	}

	info, err := audio.ProbeWav(path)
	if err != nil {
		return nil, err
	}

	var first, last *ltc.Frame
	frameBuf := make([]ltc.Frame, 0, 64)
	dec := ltc.NewDecoder(float64(info.SampleRate), rate.FPS())
	if _, err := audio.StreamWav(path, channel, 1024, func(samples []float32) {
		frames, _ := dec.Write(samples, frameBuf[:0])
		for i := range frames {
			f := frames[i]
			if first == nil {
				first = &f
			}
			last = &f
		}
	}); err != nil {
		return nil, err
	}
	if first == nil {
		return nil, fmt.Errorf("no timecode found in %s", filepath.Base(path))
	}
	return []string{first.String(), last.String()}, nil
}

func (a *App) emitState(state string) {
	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "recordingState", state)
	}
}

func (a *App) emitError(err error) {
	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "showAlert", map[string]any{
			"title":    "EDLgen",
			"message":  err.Error(),
			"severity": "error",
		})
	}
}
