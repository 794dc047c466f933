package stream

import (
	"errors"
	"math"
	"testing"

	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/chruffins/audiofeed/internal/audio/audiotest"
)

// Long synthetic track shaped like MPEG-1 Layer III at 44.1 kHz
func mpegLikeOptions() audiotest.Options {
	return audiotest.Options{Frames: 2000, FrameSamples: 1152, SampleRate: 44100, Channels: 2}
}

const scenarioFragment = 4096 * 4

func TestScenario_Duration(t *testing.T) {
	sink := newFakeSink(4, scenarioFragment)
	s, _ := openTest(t, mpegLikeOptions(), sink)

	want := 2000.0 * 1152 / 44100
	if got := s.Duration(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Duration = %f, want %f", got, want)
	}
	if math.Abs(s.Duration()-52.2) > 0.05 {
		t.Errorf("Duration = %f, want about 52.2", s.Duration())
	}

	// Indexing is deterministic across opens
	idx1, err := BuildIndex(audiotest.Source(mpegLikeOptions(), audiotest.NewCodec(0)))
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	idx2 := s.Index()
	if idx1.Frames() != idx2.Frames() || idx1.TotalSamples() != idx2.TotalSamples() ||
		idx1.SampleRate() != idx2.SampleRate() || idx1.Channels() != idx2.Channels() {
		t.Errorf("Index differs between opens: %d/%d vs %d/%d", idx1.Frames(), idx1.TotalSamples(), idx2.Frames(), idx2.TotalSamples())
	}
}

func TestScenario_SeekMidFile(t *testing.T) {
	sink := newFakeSink(4, scenarioFragment)
	s, _ := openTest(t, mpegLikeOptions(), sink)
	sink.next(t)

	if !s.Seek(26.1) {
		t.Fatal("Seek(26.1) failed")
	}
	got := leftChannel(sink.pull(t), 2)

	target, _ := s.Index().SampleAt(26.1)
	checkRamp(t, got, target)

	want := 26.1 + 4096.0/44100
	if pos := s.Position(); math.Abs(pos-want) > 1152.0/44100 {
		t.Errorf("Position = %f, want within one frame of %f", pos, want)
	}
}

func TestScenario_LoopForeverWindow(t *testing.T) {
	sink := newFakeSink(4, scenarioFragment)
	s, _ := openTest(t, mpegLikeOptions(), sink)
	sink.next(t)

	if err := s.SetLoop(10.0, 15.0); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	if err := s.SetLoopMode(LoopForever); err != nil {
		t.Fatalf("SetLoopMode failed: %v", err)
	}
	if !s.Rewind() {
		t.Fatal("Rewind failed")
	}

	start, end := 10.0*44100, 15.0*44100
	filled := 0
	for filled < 20*44100 {
		frag := leftChannel(sink.pull(t), 2)
		filled += len(frag)

		pos := s.Position() * 44100
		if pos > end+0.5 {
			t.Fatalf("Position %f past loop end %f", pos/44100, end/44100)
		}
		if pos < start-0.5 {
			t.Fatalf("Position %f before loop start %f", pos/44100, start/44100)
		}
		for _, v := range frag {
			if v == audiotest.Garbage {
				t.Fatal("Garbage sample after wrap")
			}
		}
	}

	if s.Wraps() == 0 {
		t.Error("Wraps = 0 after 20 seconds of a 5 second loop")
	}
}

func TestScenario_TruncatedFile(t *testing.T) {
	// One MPEG-1 Layer III frame header claiming 417 bytes, cut to 100
	data := make([]byte, 100)
	copy(data, []byte{0xFF, 0xFB, 0x90, 0x00})

	src, err := audio.DefaultRegistry().Source("short.mp3", data)
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}

	sink := newFakeSink(2, scenarioFragment)
	s, err := Open(src, sink)
	if !errors.Is(err, ErrNoFrames) {
		t.Fatalf("Open = %v, want ErrNoFrames", err)
	}
	if s != nil {
		t.Error("Open returned a stream with an error")
	}
	select {
	case <-sink.events:
		t.Error("sink received events from a stream that failed to open")
	default:
	}
}
