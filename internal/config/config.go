package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Stream settings
const (
	BufferCount     = 4    // Fragments queued between feeder and device
	FragmentSamples = 4096 // Sample frames per fragment
	WarmupFrames    = 10   // Frames decoded and discarded before a seek target
)

// Device settings
const (
	DeviceSampleRate = 44100
	DeviceBuffer     = 100 * time.Millisecond
	ResampleQuality  = 4
)

// Visualization settings
const (
	FFTSize = 2048
	NumBars = 48
)

// UI settings
const (
	TickInterval = 100 * time.Millisecond
	SeekStep     = 5.0  // Seconds per arrow key press
	GainStep     = 0.1  // Linear gain per +/- press
	MaxGain      = 2.0  // Upper bound for linear gain
	MaxSpeed     = 4.0  // Upper bound for playback speed
	MinSpeed     = 0.25 // Lower bound for playback speed
)

// LoopMode mirrors the stream loop modes in a form the CLI can parse
type LoopMode string

const (
	LoopOnceMode    LoopMode = "once"
	LoopForeverMode LoopMode = "forever"
	PlayOnceMode    LoopMode = "off"
)

// ParseLoopMode parses a loop mode name, case insensitive
func ParseLoopMode(s string) (LoopMode, error) {
	switch m := LoopMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LoopOnceMode, LoopForeverMode, PlayOnceMode:
		return m, nil
	case "":
		return PlayOnceMode, nil
	default:
		return "", fmt.Errorf("invalid loop mode %q (want off, once or forever)", s)
	}
}

// Playback gathers the runtime settings for one player
type Playback struct {
	Buffers         int
	FragmentSamples int
	WarmupFrames    int // Negative means let the codec decide

	DeviceRate int

	Gain  float64 // Linear, 1.0 is unity
	Pan   float64 // -1.0 left to 1.0 right
	Speed float64 // 1.0 is normal

	LoopStart float64 // Seconds
	LoopEnd   float64 // Seconds, 0 means end of track
	Loop      LoopMode
}

// DefaultPlayback returns the default playback settings
func DefaultPlayback() Playback {
	return Playback{
		Buffers:         BufferCount,
		FragmentSamples: FragmentSamples,
		WarmupFrames:    -1,
		DeviceRate:      DeviceSampleRate,
		Gain:            1.0,
		Pan:             0,
		Speed:           1.0,
		Loop:            PlayOnceMode,
	}
}

// Validate checks every field, reporting all problems at once
func (p Playback) Validate() error {
	var errs []error

	if p.Buffers < 2 {
		errs = append(errs, fmt.Errorf("buffers must be at least 2, got %d", p.Buffers))
	}
	if p.FragmentSamples < 64 {
		errs = append(errs, fmt.Errorf("fragment samples must be at least 64, got %d", p.FragmentSamples))
	}
	if p.DeviceRate < 8000 || p.DeviceRate > 192000 {
		errs = append(errs, fmt.Errorf("device rate %d out of range 8000-192000", p.DeviceRate))
	}
	if math.IsNaN(p.Gain) || p.Gain < 0 || p.Gain > MaxGain {
		errs = append(errs, fmt.Errorf("gain %.2f out of range 0-%.1f", p.Gain, MaxGain))
	}
	if math.IsNaN(p.Pan) || p.Pan < -1 || p.Pan > 1 {
		errs = append(errs, fmt.Errorf("pan %.2f out of range -1 to 1", p.Pan))
	}
	if math.IsNaN(p.Speed) || p.Speed < MinSpeed || p.Speed > MaxSpeed {
		errs = append(errs, fmt.Errorf("speed %.2f out of range %.2f-%.1f", p.Speed, MinSpeed, MaxSpeed))
	}
	if p.LoopStart < 0 {
		errs = append(errs, fmt.Errorf("loop start %.2f is negative", p.LoopStart))
	}
	if p.LoopEnd != 0 && p.LoopEnd <= p.LoopStart {
		errs = append(errs, fmt.Errorf("loop end %.2f must be after loop start %.2f", p.LoopEnd, p.LoopStart))
	}
	if _, err := ParseLoopMode(string(p.Loop)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
