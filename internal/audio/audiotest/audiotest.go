// Package audiotest provides a synthetic frame codec for exercising the
// streaming engine without real compressed audio.
//
// Each frame is FrameBytes long and decodes to a known ramp, so a reader can
// tell from any sample which absolute position it came from. Like a codec
// with a bit reservoir, a frame only decodes correctly when the frame before
// it was the last one decoded; otherwise it yields Garbage.
package audiotest

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/chruffins/audiofeed/internal/audio"
)

// FrameBytes is the encoded size of every synthetic frame
const FrameBytes = 32

// Garbage is emitted for frames decoded without their predecessor
const Garbage int16 = -1

const (
	flagCorrupt = 1 << 0
	rampPeriod  = 30011
)

// Options describes a synthetic stream
type Options struct {
	Frames       int
	FrameSamples int
	SampleRate   int
	Channels     int

	// Corrupt lists frames whose header parses but whose payload fails to decode
	Corrupt []int
}

// Value is the sample a correctly decoded stream holds at absolute position pos
func Value(pos int64) int16 {
	return int16(pos % rampPeriod)
}

// Encode builds a synthetic stream
func Encode(opts Options) []byte {
	corrupt := make(map[int]bool, len(opts.Corrupt))
	for _, k := range opts.Corrupt {
		corrupt[k] = true
	}

	data := make([]byte, opts.Frames*FrameBytes)
	for k := 0; k < opts.Frames; k++ {
		f := data[k*FrameBytes:]
		f[0], f[1] = 'S', 'F'
		binary.LittleEndian.PutUint32(f[2:], uint32(k))
		binary.LittleEndian.PutUint16(f[6:], uint16(opts.FrameSamples))
		binary.LittleEndian.PutUint32(f[8:], uint32(opts.SampleRate))
		f[12] = byte(opts.Channels)
		if corrupt[k] {
			f[13] = flagCorrupt
		}
	}
	return data
}

// Codec decodes synthetic frames
type Codec struct {
	// Warmup is reported through WarmupFrames
	Warmup int

	// OnDecode, when set, is called before every full frame decode
	OnDecode func(frame int)

	last    int
	decodes atomic.Int64
}

// NewCodec creates a codec that asks for warmup frames after a seek
func NewCodec(warmup int) *Codec {
	return &Codec{Warmup: warmup, last: -1}
}

// DecodeFrame decodes the synthetic frame at the start of data
func (c *Codec) DecodeFrame(data []byte, pcm []int16) (audio.FrameInfo, error) {
	if len(data) < FrameBytes || data[0] != 'S' || data[1] != 'F' {
		return audio.FrameInfo{}, nil
	}

	k := int(binary.LittleEndian.Uint32(data[2:]))
	info := audio.FrameInfo{
		Bytes:      FrameBytes,
		Samples:    int(binary.LittleEndian.Uint16(data[6:])),
		SampleRate: int(binary.LittleEndian.Uint32(data[8:])),
		Channels:   int(data[12]),
	}
	if pcm == nil {
		return info, nil
	}

	if c.OnDecode != nil {
		c.OnDecode(k)
	}
	c.decodes.Add(1)

	if data[13]&flagCorrupt != 0 {
		c.last = -1
		return info, fmt.Errorf("%w: synthetic frame %d", audio.ErrCorruptFrame, k)
	}
	if len(pcm) < info.Samples*info.Channels {
		return info, fmt.Errorf("pcm buffer holds %d samples, frame needs %d", len(pcm), info.Samples*info.Channels)
	}

	warm := k == 0 || c.last == k-1
	base := int64(k) * int64(info.Samples)
	for i := 0; i < info.Samples; i++ {
		v := Garbage
		if warm {
			v = Value(base + int64(i))
		}
		for ch := 0; ch < info.Channels; ch++ {
			pcm[i*info.Channels+ch] = v
		}
	}
	c.last = k
	return info, nil
}

// Reset forgets the previously decoded frame
func (c *Codec) Reset() {
	c.last = -1
}

// WarmupFrames returns Warmup
func (c *Codec) WarmupFrames() int {
	return c.Warmup
}

// Decodes returns how many full frame decodes have run
func (c *Codec) Decodes() int64 {
	return c.decodes.Load()
}

// Source builds an in-memory source around a synthetic stream
func Source(opts Options, codec *Codec) *audio.Source {
	data := Encode(opts)
	return &audio.Source{
		Name:   "synthetic.sf",
		Format: "synthetic",
		Data:   data,
		Start:  0,
		End:    len(data),
		Codec:  codec,
	}
}

// Format describes the synthetic stream for registration in a registry
func Format(warmup int) audio.Format {
	return audio.Format{
		Name:       "synthetic",
		Extensions: []string{"sf"},
		Identify: func(data []byte) bool {
			return len(data) >= 2 && data[0] == 'S' && data[1] == 'F'
		},
		Open: func(data []byte) (audio.Codec, int, int, error) {
			return NewCodec(warmup), 0, len(data), nil
		},
	}
}
