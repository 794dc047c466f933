package config

import (
	"strings"
	"testing"
)

func TestDefaultPlayback_Valid(t *testing.T) {
	if err := DefaultPlayback().Validate(); err != nil {
		t.Fatalf("default playback invalid: %v", err)
	}
}

func TestPlayback_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		modify  func(p *Playback)
		wantErr string
	}{
		{"too few buffers", func(p *Playback) { p.Buffers = 1 }, "buffers"},
		{"tiny fragments", func(p *Playback) { p.FragmentSamples = 10 }, "fragment samples"},
		{"device rate", func(p *Playback) { p.DeviceRate = 1000 }, "device rate"},
		{"negative gain", func(p *Playback) { p.Gain = -0.5 }, "gain"},
		{"gain too high", func(p *Playback) { p.Gain = 3 }, "gain"},
		{"pan", func(p *Playback) { p.Pan = 1.5 }, "pan"},
		{"speed too low", func(p *Playback) { p.Speed = 0.1 }, "speed"},
		{"negative loop start", func(p *Playback) { p.LoopStart = -1 }, "loop start"},
		{"loop end before start", func(p *Playback) { p.LoopStart, p.LoopEnd = 10, 5 }, "loop end"},
		{"bad loop mode", func(p *Playback) { p.Loop = "sometimes" }, "loop mode"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPlayback()
			tc.modify(&p)
			err := p.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestPlayback_ValidateReportsAll(t *testing.T) {
	p := DefaultPlayback()
	p.Buffers = 0
	p.Pan = 5

	err := p.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want errors")
	}
	for _, want := range []string{"buffers", "pan"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err, want)
		}
	}
}

func TestParseLoopMode(t *testing.T) {
	testCases := []struct {
		input   string
		want    LoopMode
		wantErr bool
	}{
		{"off", PlayOnceMode, false},
		{"", PlayOnceMode, false},
		{"ONCE", LoopOnceMode, false},
		{" forever ", LoopForeverMode, false},
		{"twice", "", true},
	}

	for _, tc := range testCases {
		got, err := ParseLoopMode(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLoopMode(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLoopMode(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
