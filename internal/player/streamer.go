package player

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/faiface/beep"
)

// pcmStreamer turns little-endian 16-bit PCM from a sink queue into beep
// samples. Mono is duplicated to both sides.
type pcmStreamer struct {
	r        io.Reader
	channels int
	buf      []byte
	err      error
}

func newPCMStreamer(r io.Reader, channels int) *pcmStreamer {
	return &pcmStreamer{r: r, channels: channels}
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if p.err != nil {
		return 0, false
	}

	frameBytes := p.channels * 2
	need := len(samples) * frameBytes
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]

	n, err := io.ReadFull(p.r, buf)
	frames := n / frameBytes
	for i := 0; i < frames; i++ {
		b := buf[i*frameBytes:]
		l := float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		r := l
		if p.channels > 1 {
			r = float64(int16(binary.LittleEndian.Uint16(b[2:]))) / 32768
		}
		samples[i] = [2]float64{l, r}
	}

	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			p.err = err
		}
		return frames, frames > 0
	}
	return frames, true
}

func (p *pcmStreamer) Err() error {
	return p.err
}

// tap passes samples through and keeps a mono mix for the spectrum
type tap struct {
	s    beep.Streamer
	ring *audio.SampleRing
	mono []float64
}

func newTap(s beep.Streamer, size int) *tap {
	return &tap{s: s, ring: audio.NewSampleRing(size)}
}

func (t *tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	if cap(t.mono) < n {
		t.mono = make([]float64, n)
	}
	mono := t.mono[:n]
	for i := range mono {
		mono[i] = (samples[i][0] + samples[i][1]) / 2
	}
	t.ring.Write(mono)
	return n, ok
}

func (t *tap) Err() error {
	return t.s.Err()
}
