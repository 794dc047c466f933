// Package player attaches streams to the audio device. It owns the sink
// queue of the current track and the effect chain between the queue and the
// speaker.
package player

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/chruffins/audiofeed/internal/config"
	"github.com/chruffins/audiofeed/internal/sink"
	"github.com/chruffins/audiofeed/internal/stream"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/rs/zerolog"
)

// ErrNoTrack is returned when an operation needs a loaded track
var ErrNoTrack = errors.New("no track loaded")

// finishPoll is how often the finished watcher checks device progress
const finishPoll = 20 * time.Millisecond

// TrackInfo describes the loaded track
type TrackInfo struct {
	Name       string
	Format     string
	SampleRate int
	Channels   int
	Frames     int
	Duration   float64
}

// track bundles everything that lives as long as one loaded file
type track struct {
	info   TrackInfo
	queue  *sink.Queue
	stream *stream.Stream

	ctrl      *beep.Ctrl
	volume    *effects.Volume
	pan       *effects.Pan
	resampler *beep.Resampler
	tap       *tap

	attached bool
	done     chan struct{}

	// Played position: base seconds at the point the queue had handed
	// markBytes to the device
	posMu     sync.Mutex
	base      float64
	markBytes int64
}

// rebase pins the played position to base seconds as of now
func (t *track) rebase(base float64) {
	t.posMu.Lock()
	t.base = base
	t.markBytes = t.queue.ReadBytes()
	t.posMu.Unlock()
}

// played returns the position the device has reached, following the loop
// the way the feeder does
func (t *track) played() float64 {
	t.posMu.Lock()
	base, mark := t.base, t.markBytes
	t.posMu.Unlock()

	frameBytes := int64(t.info.Channels * 2)
	pos := base + float64((t.queue.ReadBytes()-mark)/frameBytes)/float64(t.info.SampleRate)

	loop := t.stream.Loop()
	duration := t.info.Duration
	switch loop.Mode {
	case stream.LoopOnce:
		if base < loop.End {
			return min(pos, loop.End)
		}
	case stream.LoopForever:
		// Playback entered past the loop end wraps at the end of the source
		wrapAt := loop.End
		if base >= loop.End {
			wrapAt = duration
		}
		if span := loop.End - loop.Start; pos >= wrapAt && span > 0 {
			return loop.Start + math.Mod(pos-wrapAt, span)
		}
		return pos
	}
	return min(pos, duration)
}

// Player plays one track at a time
type Player struct {
	mu  sync.Mutex
	out Output
	reg *audio.Registry
	cfg config.Playback
	log zerolog.Logger

	cur        *track
	spectrum   *audio.Spectrum
	onFinished func()
}

// Option configures a Player
type Option func(*Player)

// WithLogger sets the logger; the default discards everything
func WithLogger(log zerolog.Logger) Option {
	return func(p *Player) { p.log = log }
}

// WithRegistry sets the formats the player can load
func WithRegistry(reg *audio.Registry) Option {
	return func(p *Player) { p.reg = reg }
}

// New creates a player writing to out
func New(out Output, cfg config.Playback, opts ...Option) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback settings: %w", err)
	}

	p := &Player{
		out:      out,
		cfg:      cfg,
		log:      zerolog.Nop(),
		spectrum: audio.NewSpectrum(config.FFTSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reg == nil {
		p.reg = audio.DefaultRegistry()
	}

	rate := beep.SampleRate(cfg.DeviceRate)
	if err := out.Init(rate, config.DeviceBuffer); err != nil {
		return nil, err
	}
	return p, nil
}

// Load stops the current track and opens path, paused at its start
func (p *Player) Load(path string) error {
	src, err := p.reg.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}
	return p.LoadSource(src)
}

// LoadSource is Load for a source already in memory
func (p *Player) LoadSource(src *audio.Source) error {
	p.Stop()

	idx, err := stream.BuildIndex(src)
	if err != nil {
		return err
	}

	loop, err := p.loopSpec(idx.Duration())
	if err != nil {
		return err
	}

	fragBytes := p.cfg.FragmentSamples * idx.Channels() * 2
	q, err := sink.NewQueue(p.cfg.Buffers, fragBytes, sink.WithLogger(p.log))
	if err != nil {
		return err
	}

	s, err := stream.Open(src, q,
		stream.WithIndex(idx),
		stream.WithLoop(loop),
		stream.WithWarmupFrames(p.cfg.WarmupFrames),
		stream.WithLogger(p.log),
	)
	if err != nil {
		_ = q.Close()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	t := &track{
		info: TrackInfo{
			Name:       filepath.Base(src.Name),
			Format:     src.Format,
			SampleRate: idx.SampleRate(),
			Channels:   idx.Channels(),
			Frames:     idx.Frames(),
			Duration:   idx.Duration(),
		},
		queue:  q,
		stream: s,
		done:   make(chan struct{}),
	}
	p.buildChain(t)

	p.mu.Lock()
	p.cur = t
	p.mu.Unlock()

	go p.watch(t)

	p.log.Info().
		Str("track", t.info.Name).
		Str("format", t.info.Format).
		Int("rate", t.info.SampleRate).
		Int("channels", t.info.Channels).
		Float64("duration", t.info.Duration).
		Msg("track loaded")
	return nil
}

func (p *Player) loopSpec(duration float64) (stream.LoopSpec, error) {
	l := stream.LoopSpec{Start: p.cfg.LoopStart, End: p.cfg.LoopEnd}
	if l.End == 0 {
		l.End = duration
	}
	switch p.cfg.Loop {
	case config.LoopOnceMode:
		l.Mode = stream.LoopOnce
	case config.LoopForeverMode:
		l.Mode = stream.LoopForever
	default:
		l.Mode = stream.PlayOnce
	}
	if l.Start >= duration {
		return l, fmt.Errorf("%w: loop start %.2fs is past the end (%.2fs)", stream.ErrInvalidLoop, l.Start, duration)
	}
	return l, nil
}

// buildChain wires queue -> resampler -> volume -> pan -> pause -> tap
func (p *Player) buildChain(t *track) {
	var s beep.Streamer = newPCMStreamer(t.queue, t.info.Channels)

	t.resampler = beep.Resample(config.ResampleQuality,
		beep.SampleRate(t.info.SampleRate), beep.SampleRate(p.cfg.DeviceRate), s)
	t.resampler.SetRatio(p.ratio(t, p.cfg.Speed))

	t.volume = &effects.Volume{Streamer: t.resampler, Base: 2}
	setGain(t.volume, p.cfg.Gain)

	t.pan = &effects.Pan{Streamer: t.volume, Pan: p.cfg.Pan}
	t.ctrl = &beep.Ctrl{Streamer: t.pan, Paused: true}
	t.tap = newTap(t.ctrl, config.FFTSize*2)
}

func (p *Player) ratio(t *track, speed float64) float64 {
	return float64(t.info.SampleRate) / float64(p.cfg.DeviceRate) * speed
}

func setGain(v *effects.Volume, gain float64) {
	if gain <= 0 {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(gain)
}

// watch fires the finished callback once the device has played past the
// end of the track
func (p *Player) watch(t *track) {
	for {
		select {
		case <-t.done:
			return
		case <-t.queue.Finished():
		}

		// The last audible fragment may still be queued
		target := t.queue.Consumed() + int64(t.queue.Buffered()) + 1
		ticker := time.NewTicker(finishPoll)
		for t.queue.Consumed() < target {
			select {
			case <-t.done:
				ticker.Stop()
				return
			case <-ticker.C:
			}
			if !t.stream.Draining() {
				// Restarted by a seek
				break
			}
		}
		ticker.Stop()

		if !t.stream.Draining() {
			continue
		}

		p.log.Debug().Str("track", t.info.Name).Msg("track finished")
		p.mu.Lock()
		fn := p.onFinished
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

// OnFinished sets a callback run each time the loaded track plays to its
// end. It runs on its own goroutine.
func (p *Player) OnFinished(fn func()) {
	p.mu.Lock()
	p.onFinished = fn
	p.mu.Unlock()
}

func (p *Player) current() (*track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return nil, ErrNoTrack
	}
	return p.cur, nil
}

// Play starts or resumes the loaded track
func (p *Player) Play() error {
	t, err := p.current()
	if err != nil {
		return err
	}

	p.out.Lock()
	t.ctrl.Paused = false
	attach := !t.attached
	t.attached = true
	p.out.Unlock()

	if attach {
		p.out.Play(t.tap)
	}
	return nil
}

// Pause holds playback; the device plays silence
func (p *Player) Pause() {
	if t, err := p.current(); err == nil {
		p.out.Lock()
		t.ctrl.Paused = true
		p.out.Unlock()
	}
}

// Resume continues after Pause
func (p *Player) Resume() {
	_ = p.Play()
}

// TogglePause flips between playing and paused
func (p *Player) TogglePause() {
	t, err := p.current()
	if err != nil {
		return
	}
	p.out.Lock()
	paused := t.ctrl.Paused
	p.out.Unlock()

	if paused {
		p.Resume()
	} else {
		p.Pause()
	}
}

// Stop detaches the track from the device and closes its stream
func (p *Player) Stop() {
	p.mu.Lock()
	t := p.cur
	p.cur = nil
	p.mu.Unlock()
	if t == nil {
		return
	}

	if t.attached {
		p.out.Clear()
	}
	close(t.done)
	_ = t.stream.Close()
	_ = t.queue.Close()
	t.tap.ring.Reset()

	p.log.Debug().Str("track", t.info.Name).Msg("track stopped")
}

// IsPlaying reports whether a track is loaded, unpaused and not drained
func (p *Player) IsPlaying() bool {
	t, err := p.current()
	if err != nil {
		return false
	}
	p.out.Lock()
	paused := t.ctrl.Paused
	p.out.Unlock()
	return !paused && !t.stream.Draining()
}

// IsPaused reports whether the loaded track is paused
func (p *Player) IsPaused() bool {
	t, err := p.current()
	if err != nil {
		return false
	}
	p.out.Lock()
	defer p.out.Unlock()
	return t.ctrl.Paused
}

// Seek moves playback to seconds, dropping audio already queued. It returns
// false when seconds lies outside the track.
func (p *Player) Seek(seconds float64) bool {
	t, err := p.current()
	if err != nil {
		return false
	}
	if !t.stream.Seek(seconds) {
		return false
	}
	t.queue.Flush()
	t.rebase(seconds)
	return true
}

// SeekBy moves playback by delta seconds, clamped to the track
func (p *Player) SeekBy(delta float64) bool {
	t, err := p.current()
	if err != nil {
		return false
	}
	target := min(max(t.played()+delta, 0), t.info.Duration)
	return p.Seek(target)
}

// SetLoop sets the loop points in seconds
func (p *Player) SetLoop(start, end float64) error {
	t, err := p.current()
	if err != nil {
		return err
	}
	pos := t.played()
	if err := t.stream.SetLoop(start, end); err != nil {
		return err
	}
	t.rebase(pos)
	return nil
}

// SetLoopMode sets how the loop points are used
func (p *Player) SetLoopMode(mode stream.LoopMode) error {
	t, err := p.current()
	if err != nil {
		return err
	}
	pos := t.played()
	if err := t.stream.SetLoopMode(mode); err != nil {
		return err
	}
	t.rebase(pos)
	return nil
}

// Loop returns the loop points and mode of the loaded track
func (p *Player) Loop() stream.LoopSpec {
	t, err := p.current()
	if err != nil {
		return stream.LoopSpec{}
	}
	return t.stream.Loop()
}

// Position returns the position the device has played up to in seconds.
// Audio decoded but still queued is not counted.
func (p *Player) Position() float64 {
	t, err := p.current()
	if err != nil {
		return 0
	}
	return t.played()
}

// Duration returns the length of the loaded track in seconds
func (p *Player) Duration() float64 {
	t, err := p.current()
	if err != nil {
		return 0
	}
	return t.info.Duration
}

// Track returns details of the loaded track
func (p *Player) Track() (TrackInfo, bool) {
	t, err := p.current()
	if err != nil {
		return TrackInfo{}, false
	}
	return t.info, true
}

// Underruns returns how often the device found no audio queued
func (p *Player) Underruns() int64 {
	t, err := p.current()
	if err != nil {
		return 0
	}
	return t.queue.Underruns()
}

// SetGain sets the linear gain, clamped to 0-MaxGain. Zero mutes.
func (p *Player) SetGain(gain float64) {
	gain = min(max(gain, 0), config.MaxGain)

	p.mu.Lock()
	p.cfg.Gain = gain
	t := p.cur
	p.mu.Unlock()

	if t != nil {
		p.out.Lock()
		setGain(t.volume, gain)
		p.out.Unlock()
	}
}

// Gain returns the linear gain
func (p *Player) Gain() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Gain
}

// SetPan sets the balance, clamped to -1 (left) to 1 (right)
func (p *Player) SetPan(pan float64) {
	pan = min(max(pan, -1), 1)

	p.mu.Lock()
	p.cfg.Pan = pan
	t := p.cur
	p.mu.Unlock()

	if t != nil {
		p.out.Lock()
		t.pan.Pan = pan
		p.out.Unlock()
	}
}

// Pan returns the balance
func (p *Player) Pan() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Pan
}

// SetSpeed sets the playback speed, clamped to MinSpeed-MaxSpeed. Pitch
// follows speed.
func (p *Player) SetSpeed(speed float64) {
	speed = min(max(speed, config.MinSpeed), config.MaxSpeed)

	p.mu.Lock()
	p.cfg.Speed = speed
	t := p.cur
	p.mu.Unlock()

	if t != nil {
		p.out.Lock()
		t.resampler.SetRatio(p.ratio(t, speed))
		p.out.Unlock()
	}
}

// Speed returns the playback speed
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Speed
}

// Spectrum fills bars from the most recent audio sent to the device
func (p *Player) Spectrum(bars []float64) error {
	t, err := p.current()
	if err != nil {
		clear(bars)
		return err
	}
	return p.spectrum.Bars(t.tap.ring.Latest(config.FFTSize), bars)
}

// Close stops playback
func (p *Player) Close() error {
	p.Stop()
	return nil
}
