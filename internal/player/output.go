package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Output is the audio device a player streams into
type Output interface {
	Init(rate beep.SampleRate, buffer time.Duration) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// Speaker is the system audio device through beep/speaker
type Speaker struct {
	mu   sync.Mutex
	rate beep.SampleRate
}

// Init opens the device at rate. Later calls at the same rate do nothing.
func (s *Speaker) Init(rate beep.SampleRate, buffer time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rate == rate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	s.rate = rate
	return nil
}

// Play starts streaming s
func (s *Speaker) Play(st beep.Streamer) { speaker.Play(st) }

// Clear removes everything the device is playing
func (s *Speaker) Clear() { speaker.Clear() }

// Lock stops the device from pulling samples
func (s *Speaker) Lock() { speaker.Lock() }

// Unlock resumes sample pulls
func (s *Speaker) Unlock() { speaker.Unlock() }
