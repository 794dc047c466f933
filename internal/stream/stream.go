// Package stream turns a frame-based compressed source into a continuous
// supply of PCM fragments for a real-time sink. Each open Stream owns one
// feeder goroutine that fills fragments on demand, applying seeks and loop
// points requested from other goroutines between fills.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/chruffins/audiofeed/internal/config"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned for operations on a closed stream
	ErrClosed = errors.New("stream closed")

	// ErrInvalidLoop is returned when loop points are out of range
	ErrInvalidLoop = errors.New("invalid loop points")

	// ErrOutOfRange is returned for a start position outside the source
	ErrOutOfRange = errors.New("position out of range")
)

const noSeek = -1

// control is the state shared between the owner and the feeder goroutine.
// The feeder snapshots it once at the top of each fill cycle.
type control struct {
	mu sync.Mutex

	loop     LoopSpec
	seekTo   int64 // pending seek target in samples, or noSeek
	position int64 // sample position published after each fill
	draining bool  // source exhausted, filling silence
	finished bool  // finished notification sent for this drain
	closed   bool
}

// Stream is an open source attached to a sink
type Stream struct {
	src    *audio.Source
	idx    *Index
	sink   Sink
	log    zerolog.Logger
	warmup int

	ctl control

	// Feeder goroutine only
	cur *cursor

	started   chan struct{}
	done      chan struct{}
	startErr  error
	quit      atomic.Bool
	wraps     atomic.Int64
	closeOnce sync.Once
}

type options struct {
	log    zerolog.Logger
	warmup int
	loop   *LoopSpec
	index  *Index
	start  float64
}

// Option configures Open
type Option func(*options)

// WithLogger sets the logger; the default discards everything
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithWarmupFrames overrides how many frames are decoded and discarded before
// a seek target. A negative value keeps the codec's own preference.
func WithWarmupFrames(n int) Option {
	return func(o *options) { o.warmup = n }
}

// WithLoop sets the initial loop points and mode
func WithLoop(l LoopSpec) Option {
	return func(o *options) { o.loop = &l }
}

// WithStart begins playback at seconds instead of the start of the source
func WithStart(seconds float64) Option {
	return func(o *options) { o.start = seconds }
}

// WithIndex reuses an index already built for the same source
func WithIndex(idx *Index) Option {
	return func(o *options) { o.index = idx }
}

// Open indexes src, starts its feeder goroutine and waits until the feeder
// has registered with sink and prefilled the first fragment.
func Open(src *audio.Source, sink Sink, opts ...Option) (*Stream, error) {
	if src == nil || len(src.Data) == 0 || src.End <= src.Start {
		return nil, ErrEmptySource
	}

	o := options{log: zerolog.Nop(), warmup: -1}
	for _, opt := range opts {
		opt(&o)
	}

	idx := o.index
	if idx == nil {
		var err error
		if idx, err = BuildIndex(src); err != nil {
			return nil, err
		}
	}

	warmup := o.warmup
	if warmup < 0 {
		warmup = config.WarmupFrames
		if w, ok := src.Codec.(audio.Warmer); ok {
			warmup = w.WarmupFrames()
		}
	}

	loop := LoopSpec{Start: 0, End: idx.Duration(), Mode: PlayOnce}
	if o.loop != nil {
		if !o.loop.valid(idx.Duration()) {
			return nil, fmt.Errorf("%w: %.3f-%.3f", ErrInvalidLoop, o.loop.Start, o.loop.End)
		}
		loop = *o.loop
	}

	s := &Stream{
		src:     src,
		idx:     idx,
		sink:    sink,
		log:     o.log.With().Str("source", src.Name).Logger(),
		warmup:  warmup,
		cur:     newCursor(src, idx),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.ctl.loop = loop
	s.ctl.seekTo = noSeek
	if o.start != 0 {
		target, ok := idx.SampleAt(o.start)
		if !ok {
			return nil, fmt.Errorf("%w: start %.3fs of %.3fs", ErrOutOfRange, o.start, idx.Duration())
		}
		s.ctl.seekTo = target
		s.ctl.position = target
	}

	go s.run()
	<-s.started

	if s.startErr != nil {
		<-s.done
		return nil, fmt.Errorf("failed to register with sink: %w", s.startErr)
	}

	s.log.Debug().
		Int("frames", idx.Frames()).
		Int("rate", idx.SampleRate()).
		Int("channels", idx.Channels()).
		Int("warmup", warmup).
		Float64("duration", idx.Duration()).
		Msg("stream opened")
	return s, nil
}

// Close stops the feeder goroutine and waits for it to exit. No decoding
// happens after Close returns. Further calls do nothing.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.ctl.mu.Lock()
		s.ctl.closed = true
		s.ctl.mu.Unlock()

		s.quit.Store(true)
		s.sink.Post(Event{Type: EventQuit})
		<-s.done

		s.cur = nil
		s.log.Debug().Msg("stream closed")
	})
	return nil
}

// Seek requests a move to seconds. It returns false, changing nothing, when
// the position lies outside the source. The move is applied by the feeder at
// the start of its next fill; Position reports the target immediately.
// Seeking out of a drained state restarts playback.
func (s *Stream) Seek(seconds float64) bool {
	target, ok := s.idx.SampleAt(seconds)
	if !ok {
		return false
	}

	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()

	if s.ctl.closed {
		return false
	}
	s.ctl.seekTo = target
	s.ctl.position = target
	s.ctl.draining = false
	s.ctl.finished = false
	return true
}

// Rewind seeks to the loop start
func (s *Stream) Rewind() bool {
	return s.Seek(s.Loop().Start)
}

// SetLoop sets the loop points in seconds, keeping the mode
func (s *Stream) SetLoop(start, end float64) error {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()

	if s.ctl.closed {
		return ErrClosed
	}
	l := LoopSpec{Start: start, End: end, Mode: s.ctl.loop.Mode}
	if !l.valid(s.idx.Duration()) {
		return fmt.Errorf("%w: %.3f-%.3f", ErrInvalidLoop, start, end)
	}
	s.ctl.loop = l
	return nil
}

// SetLoopMode sets the loop mode, keeping the loop points
func (s *Stream) SetLoopMode(mode LoopMode) error {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()

	if s.ctl.closed {
		return ErrClosed
	}
	l := s.ctl.loop
	l.Mode = mode
	if !l.valid(s.idx.Duration()) {
		return fmt.Errorf("%w: mode %v", ErrInvalidLoop, mode)
	}
	s.ctl.loop = l
	return nil
}

// Loop returns the current loop points and mode
func (s *Stream) Loop() LoopSpec {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	return s.ctl.loop
}

// Position returns the playback position in seconds as of the last fill, or
// the target of a pending seek
func (s *Stream) Position() float64 {
	s.ctl.mu.Lock()
	pos := s.ctl.position
	s.ctl.mu.Unlock()
	return float64(pos) / float64(s.idx.sampleRate)
}

// Duration returns the length of the source in seconds
func (s *Stream) Duration() float64 {
	return s.idx.Duration()
}

// Draining reports whether the source is exhausted and only silence is
// being produced
func (s *Stream) Draining() bool {
	s.ctl.mu.Lock()
	defer s.ctl.mu.Unlock()
	return s.ctl.draining
}

// Wraps returns how many times playback has wrapped to the loop start
func (s *Stream) Wraps() int64 {
	return s.wraps.Load()
}

// Index returns the frame index
func (s *Stream) Index() *Index {
	return s.idx
}

// Source returns the source being played
func (s *Stream) Source() *audio.Source {
	return s.src
}
