package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// BackendType represents the type of audio output backend
type BackendType string

const (
	BackendTypeSpeaker  BackendType = "speaker"
	BackendTypeHeadless BackendType = "headless"
	BackendTypeAuto     BackendType = "auto"
)

// Source is what an output backend drives: a pull streamer for devices and
// a push pump for clock-driven rendering.
type Source interface {
	beep.Streamer
	SampleRate() int
	QuantumDuration() time.Duration
	Pump() [][2]float64
}

// Output defines the interface for audio output implementations
type Output interface {
	// Run renders until ctx is cancelled.
	Run(ctx context.Context) error

	// Get the backend type
	GetType() BackendType
}

// NewOutput creates an output using the appropriate backend based on configuration
func NewOutput(cfg *config.Config, src Source) Output {
	headless := &HeadlessOutput{source: src}

	switch determineBackend(cfg) {
	case BackendTypeHeadless:
		return headless
	case BackendTypeSpeaker:
		return &SpeakerOutput{source: src, buffer: bufferDuration(cfg)}
	default:
		return &SpeakerOutput{source: src, buffer: bufferDuration(cfg), fallback: headless}
	}
}

func bufferDuration(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Audio.BufferMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(cfg.Audio.BufferMS) * time.Millisecond
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	if cfg != nil && cfg.Audio.Backend != "" {
		switch strings.ToLower(cfg.Audio.Backend) {
		case "speaker":
			return BackendTypeSpeaker
		case "headless":
			return BackendTypeHeadless
		}
	}
	return BackendTypeAuto
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeSpeaker, BackendTypeHeadless, BackendTypeAuto}
}

// SpeakerOutput plays the source on the default audio device. With a
// fallback set, a device that fails to open hands over to the fallback.
type SpeakerOutput struct {
	source   Source
	buffer   time.Duration
	fallback Output
}

func (o *SpeakerOutput) GetType() BackendType {
	if o.fallback != nil {
		return BackendTypeAuto
	}
	return BackendTypeSpeaker
}

func (o *SpeakerOutput) Run(ctx context.Context) error {
	sr := beep.SampleRate(o.source.SampleRate())
	if err := speaker.Init(sr, sr.N(o.buffer)); err != nil {
		if o.fallback == nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		slog.Warn("Speaker unavailable, falling back", "backend", o.fallback.GetType(), "error", err)
		return o.fallback.Run(ctx)
	}
	defer speaker.Close()

	slog.Info("Speaker output started", "sample_rate", int(sr), "buffer", o.buffer)
	speaker.Play(o.source)

	<-ctx.Done()
	speaker.Clear()
	slog.Info("Speaker output stopped")
	return nil
}

// HeadlessOutput renders one quantum per tick of the wall clock without a
// device. Sinks (recorder, monitor) still receive every quantum.
type HeadlessOutput struct {
	source Source
}

func NewHeadlessOutput(src Source) *HeadlessOutput {
	return &HeadlessOutput{source: src}
}

func (o *HeadlessOutput) GetType() BackendType {
	return BackendTypeHeadless
}

func (o *HeadlessOutput) Run(ctx context.Context) error {
	interval := o.source.QuantumDuration()
	if interval <= 0 {
		return fmt.Errorf("invalid quantum duration: %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Headless output started", "quantum", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Headless output stopped")
			return nil
		case <-ticker.C:
			o.source.Pump()
		}
	}
}
