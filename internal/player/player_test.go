package player

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chruffins/audiofeed/internal/config"
	"github.com/chruffins/audiofeed/internal/stream"
	"github.com/faiface/beep"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// fakeOutput stands in for the speaker; pull plays the role of the device
type fakeOutput struct {
	device sync.Mutex

	mu      sync.Mutex
	rate    beep.SampleRate
	streams []beep.Streamer
	clears  int
	initErr error
}

func (f *fakeOutput) Init(rate beep.SampleRate, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	return f.initErr
}

func (f *fakeOutput) Play(s beep.Streamer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, s)
}

func (f *fakeOutput) Clear() {
	f.device.Lock()
	defer f.device.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = nil
	f.clears++
}

func (f *fakeOutput) Lock()   { f.device.Lock() }
func (f *fakeOutput) Unlock() { f.device.Unlock() }

// pull streams n samples from everything playing, mixed
func (f *fakeOutput) pull(n int) [][2]float64 {
	f.device.Lock()
	defer f.device.Unlock()

	f.mu.Lock()
	streams := append([]beep.Streamer(nil), f.streams...)
	f.mu.Unlock()

	mix := make([][2]float64, n)
	buf := make([][2]float64, n)
	for _, s := range streams {
		got, _ := s.Stream(buf)
		for i := 0; i < got; i++ {
			mix[i][0] += buf[i][0]
			mix[i][1] += buf[i][1]
		}
	}
	return mix
}

func rms(samples [][2]float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s[0]*s[0] + s[1]*s[1]
	}
	return math.Sqrt(sum / float64(2*len(samples)))
}

// writeToneWAV writes a 440 Hz stereo tone at half scale
func writeToneWAV(t *testing.T, seconds float64) string {
	t.Helper()
	const rate = 44100

	n := int(seconds * rate)
	data := make([]int, n*2)
	for i := 0; i < n; i++ {
		v := int(16384 * math.Sin(2*math.Pi*440*float64(i)/rate))
		data[2*i], data[2*i+1] = v, v
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write WAV: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close WAV: %v", err)
	}
	return path
}

func newTestPlayer(t *testing.T) (*Player, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	cfg := config.DefaultPlayback()
	cfg.FragmentSamples = 1024
	p, err := New(out, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, out
}

// pullUntil keeps the fake device running until cond holds
func pullUntil(t *testing.T, out *fakeOutput, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		out.pull(512)
		time.Sleep(time.Millisecond)
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	cfg := config.DefaultPlayback()
	cfg.Gain = -1
	if _, err := New(&fakeOutput{}, cfg); err == nil {
		t.Error("New with negative gain succeeded, want error")
	}

	errDevice := errors.New("no device")
	if _, err := New(&fakeOutput{initErr: errDevice}, config.DefaultPlayback()); !errors.Is(err, errDevice) {
		t.Errorf("New with failing device = %v, want %v", err, errDevice)
	}
}

func TestPlayer_LoadAndPlay(t *testing.T) {
	p, out := newTestPlayer(t)

	if err := p.Load(writeToneWAV(t, 1.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	info, ok := p.Track()
	if !ok {
		t.Fatal("Track reports nothing loaded")
	}
	if info.Format != "wav" || info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("Track = %+v, want wav 44100 Hz x2", info)
	}
	if math.Abs(p.Duration()-1.0) > 1e-3 {
		t.Errorf("Duration = %f, want 1.0", p.Duration())
	}
	if len(out.streams) != 0 {
		t.Error("track attached to the device before Play")
	}
	if p.IsPlaying() {
		t.Error("IsPlaying = true before Play")
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("IsPlaying = false after Play")
	}

	// Let the feeder fill the queue, then check the device hears the tone
	time.Sleep(20 * time.Millisecond)
	if level := rms(out.pull(2048)); level < 0.2 {
		t.Errorf("RMS = %.3f, want about 0.35", level)
	}

	bars := make([]float64, config.NumBars)
	if err := p.Spectrum(bars); err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
}

func TestPlayer_PauseResume(t *testing.T) {
	p, out := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 2.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	p.Pause()
	if !p.IsPaused() || p.IsPlaying() {
		t.Error("state after Pause: want paused, not playing")
	}
	if level := rms(out.pull(1024)); level != 0 {
		t.Errorf("RMS while paused = %.3f, want 0", level)
	}

	p.TogglePause()
	if p.IsPaused() {
		t.Error("still paused after TogglePause")
	}
	if level := rms(out.pull(1024)); level < 0.2 {
		t.Errorf("RMS after resume = %.3f, want about 0.35", level)
	}

	// Play on a resumed track does not attach a second copy
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if len(out.streams) != 1 {
		t.Errorf("attached streams = %d, want 1", len(out.streams))
	}
}

func TestPlayer_Gain(t *testing.T) {
	p, out := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 2.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	p.SetGain(0)
	if level := rms(out.pull(1024)); level != 0 {
		t.Errorf("RMS at zero gain = %.3f, want 0", level)
	}

	p.SetGain(5)
	if g := p.Gain(); g != config.MaxGain {
		t.Errorf("Gain = %f, want clamped to %f", g, config.MaxGain)
	}

	p.SetPan(-3)
	if pan := p.Pan(); pan != -1 {
		t.Errorf("Pan = %f, want -1", pan)
	}

	p.SetSpeed(10)
	if s := p.Speed(); s != config.MaxSpeed {
		t.Errorf("Speed = %f, want %f", s, config.MaxSpeed)
	}
}

func TestPlayer_Seek(t *testing.T) {
	p, _ := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 1.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if p.Seek(5) {
		t.Error("Seek(5) on a 1 second track succeeded")
	}
	if !p.Seek(0.25) {
		t.Fatal("Seek(0.25) failed")
	}

	// Nothing has been played since the seek, however far the feeder refilled
	if pos := p.Position(); math.Abs(pos-0.25) > 1e-9 {
		t.Errorf("Position = %f, want 0.25", pos)
	}
	if !p.SeekBy(-10) {
		t.Fatal("SeekBy(-10) failed")
	}
	if pos := p.Position(); pos != 0 {
		t.Errorf("Position after SeekBy(-10) = %f, want 0", pos)
	}
}

func TestPlayer_PositionTracksDevice(t *testing.T) {
	p, out := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 1.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	// Open prefills a fragment, so decoding is ahead of the device
	if decoded := p.cur.stream.Position(); decoded <= 0 {
		t.Fatalf("stream position = %f, want a prefilled fragment", decoded)
	}
	if pos := p.Position(); pos != 0 {
		t.Errorf("Position before the device pulled = %f, want 0", pos)
	}

	last := 0.0
	pullUntil(t, out, "half a second played", func() bool {
		pos := p.Position()
		if pos < last {
			t.Fatalf("Position went back from %f to %f", last, pos)
		}
		last = pos
		return pos >= 0.5
	})

	decoded := p.cur.stream.Position()
	ahead := float64((config.BufferCount+1)*1024) / 44100
	if played := p.Position(); played > decoded || decoded-played > ahead {
		t.Errorf("Position = %f with %f decoded, want at most %f behind", played, decoded, ahead)
	}
}

func TestPlayer_PositionWrapsWithLoop(t *testing.T) {
	p, out := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 1.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.SetLoop(0.2, 0.4); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	if err := p.SetLoopMode(stream.LoopForever); err != nil {
		t.Fatalf("SetLoopMode failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	q := p.cur.queue
	pullUntil(t, out, "0.7 seconds played", func() bool {
		return q.ReadBytes() >= int64(0.7*44100)*4
	})

	if pos := p.Position(); pos < 0.2 || pos >= 0.4 {
		t.Errorf("Position = %f, want inside the 0.2-0.4 loop", pos)
	}
}

func TestPlayer_OnFinished(t *testing.T) {
	p, out := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 0.2)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var finished sync.WaitGroup
	finished.Add(1)
	var once sync.Once
	p.OnFinished(func() { once.Do(finished.Done) })

	done := make(chan struct{})
	go func() {
		finished.Wait()
		close(done)
	}()

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	pullUntil(t, out, "finished callback", func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})

	if p.IsPlaying() {
		t.Error("IsPlaying = true after the track finished")
	}
}

func TestPlayer_Loop(t *testing.T) {
	p, _ := newTestPlayer(t)
	if err := p.SetLoop(0, 1); !errors.Is(err, ErrNoTrack) {
		t.Errorf("SetLoop with no track = %v, want ErrNoTrack", err)
	}

	if err := p.Load(writeToneWAV(t, 1.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.SetLoop(0.2, 0.6); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	l := p.Loop()
	if l.Start != 0.2 || l.End != 0.6 {
		t.Errorf("Loop = %+v, want 0.2-0.6", l)
	}
	if err := p.SetLoop(0.6, 0.2); err == nil {
		t.Error("SetLoop with reversed points succeeded")
	}
}

func TestPlayer_Stop(t *testing.T) {
	p, out := newTestPlayer(t)
	if err := p.Load(writeToneWAV(t, 1.0)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	p.Stop()
	if p.IsPlaying() {
		t.Error("IsPlaying = true after Stop")
	}
	if out.clears != 1 {
		t.Errorf("device clears = %d, want 1", out.clears)
	}
	if err := p.Play(); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Play after Stop = %v, want ErrNoTrack", err)
	}
	if err := p.Spectrum(make([]float64, 8)); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Spectrum after Stop = %v, want ErrNoTrack", err)
	}

	// Stopping twice is harmless
	p.Stop()
}

func TestPlayer_LoadErrors(t *testing.T) {
	p, _ := newTestPlayer(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := p.Load(path); err == nil {
		t.Error("Load of a text file succeeded")
	}
	if err := p.Load(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
	if _, ok := p.Track(); ok {
		t.Error("Track loaded after failed Load")
	}
}
