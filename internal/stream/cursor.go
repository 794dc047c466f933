package stream

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chruffins/audiofeed/internal/audio"
)

var errFrameMismatch = errors.New("frame does not match index")

// cursor is the decode position within a source. It is owned by the feeder
// goroutine; nothing else touches it while the stream is open.
type cursor struct {
	src   *audio.Source
	idx   *Index
	codec audio.Codec

	frame     int   // next frame to decode
	bytePos   int   // byte offset of the next frame
	samplePos int64 // absolute sample position of the next sample read

	frameBuf []int16 // decoded PCM of the current frame, interleaved
	frameLen int     // sample frames held in frameBuf
	framePos int     // sample frames of frameBuf already read
	skip     int     // sample frames to drop from the next decoded frame
}

func newCursor(src *audio.Source, idx *Index) *cursor {
	src.Codec.Reset()
	return &cursor{
		src:      src,
		idx:      idx,
		codec:    src.Codec,
		bytePos:  idx.offsets[0],
		frameBuf: make([]int16, idx.maxFrameSamples*idx.channels),
	}
}

// read copies up to n sample frames into dst as little-endian 16-bit PCM.
// It returns fewer than n only at the end of the source, or with an error
// when a frame fails to decode. dst must hold n sample frames.
func (c *cursor) read(dst []byte, n int) (int, error) {
	ch := c.idx.channels
	copied := 0
	var err error

	for copied < n {
		if c.framePos >= c.frameLen {
			var ok bool
			if ok, err = c.decodeNext(); !ok {
				break
			}
			continue
		}

		m := min(n-copied, c.frameLen-c.framePos)
		pcm := c.frameBuf[c.framePos*ch : (c.framePos+m)*ch]
		out := dst[copied*ch*2:]
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		c.framePos += m
		copied += m
	}

	c.samplePos += int64(copied)
	return copied, err
}

// decodeNext decodes the frame at the cursor into frameBuf. It reports false
// with a nil error at the end of the source.
func (c *cursor) decodeNext() (bool, error) {
	if c.frame >= c.idx.Frames() {
		return false, nil
	}

	off := c.idx.offsets[c.frame]
	if c.bytePos != off {
		return false, fmt.Errorf("%w: cursor at byte %d, frame %d starts at %d", errFrameMismatch, c.bytePos, c.frame, off)
	}

	info, err := c.codec.DecodeFrame(c.src.Data[off:c.src.End], c.frameBuf)
	if err != nil {
		return false, fmt.Errorf("frame %d: %w", c.frame, err)
	}
	if info.Samples == 0 {
		return false, nil
	}
	if info.Channels != c.idx.channels || info.Samples > c.idx.maxFrameSamples {
		return false, fmt.Errorf("%w: frame %d decoded %d samples x%d", errFrameMismatch, c.frame, info.Samples, info.Channels)
	}

	c.frame++
	c.bytePos = off + info.Bytes
	c.frameLen = info.Samples
	c.framePos = 0

	// Drop the lead-in of a frame entered mid-way by a seek
	if c.skip > 0 {
		c.framePos = min(c.skip, c.frameLen)
		c.skip = 0
	}
	return true, nil
}
