package stream

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chruffins/audiofeed/internal/audio"
)

var (
	// ErrEmptySource is returned when a source holds no bytes to index
	ErrEmptySource = errors.New("empty source")

	// ErrNoFrames is returned when not a single frame could be decoded
	ErrNoFrames = errors.New("no decodable frames")
)

// Index is the frame table of a source, built once by a forward scan and
// read-only afterwards
type Index struct {
	offsets []int   // byte offset of each frame within the source
	starts  []int64 // first sample of each frame
	end     int     // byte offset just past the last frame

	frameSamples    int
	maxFrameSamples int
	sampleRate      int
	channels        int
	totalSamples    int64
}

// BuildIndex scans src from its first frame, recording each frame's offset
// and advancing by the length the codec reports. The scan stops at the first
// position that yields no samples. Stream parameters come from the first
// frame; a later frame with a different format also ends the scan.
func BuildIndex(src *audio.Source) (*Index, error) {
	if src == nil || src.Codec == nil || src.End <= src.Start {
		return nil, ErrEmptySource
	}

	src.Codec.Reset()
	defer src.Codec.Reset()

	idx := &Index{}
	off := src.Start
	for off < src.End {
		info, err := src.Codec.DecodeFrame(src.Data[off:src.End], nil)
		if err != nil || info.Samples <= 0 || info.Bytes <= 0 {
			break
		}

		if len(idx.offsets) == 0 {
			idx.frameSamples = info.Samples
			idx.sampleRate = info.SampleRate
			idx.channels = info.Channels
		} else if info.SampleRate != idx.sampleRate || info.Channels != idx.channels {
			break
		}
		if info.SampleRate <= 0 || info.Channels <= 0 {
			break
		}

		idx.offsets = append(idx.offsets, off)
		idx.starts = append(idx.starts, idx.totalSamples)
		idx.totalSamples += int64(info.Samples)
		idx.maxFrameSamples = max(idx.maxFrameSamples, info.Samples)
		off += info.Bytes
	}
	idx.end = off

	if len(idx.offsets) == 0 {
		return nil, fmt.Errorf("failed to index %s: %w", src.Name, ErrNoFrames)
	}
	return idx, nil
}

// Frames returns the number of indexed frames
func (x *Index) Frames() int { return len(x.offsets) }

// FrameSamples returns the per-channel sample count of the first frame
func (x *Index) FrameSamples() int { return x.frameSamples }

// MaxFrameSamples returns the largest per-channel sample count of any frame
func (x *Index) MaxFrameSamples() int { return x.maxFrameSamples }

// SampleRate returns the sample rate in Hz
func (x *Index) SampleRate() int { return x.sampleRate }

// Channels returns the channel count
func (x *Index) Channels() int { return x.channels }

// TotalSamples returns the per-channel sample count of the whole source
func (x *Index) TotalSamples() int64 { return x.totalSamples }

// Duration returns the length of the source in seconds
func (x *Index) Duration() float64 {
	return float64(x.totalSamples) / float64(x.sampleRate)
}

// Offset returns the byte offset of frame k
func (x *Index) Offset(k int) int { return x.offsets[k] }

// FrameStart returns the first sample of frame k
func (x *Index) FrameStart(k int) int64 { return x.starts[k] }

// FrameAt returns the frame holding sample, or Frames() when sample is at or
// past the end
func (x *Index) FrameAt(sample int64) int {
	if sample >= x.totalSamples {
		return len(x.offsets)
	}
	if sample <= 0 {
		return 0
	}
	return sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > sample }) - 1
}

// SampleAt converts seconds to a sample position, rounding to the nearest
// sample. It reports false for positions before 0 or past the end.
func (x *Index) SampleAt(seconds float64) (int64, bool) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}
	target := int64(math.Round(seconds * float64(x.sampleRate)))
	if target < 0 || target > x.totalSamples {
		return 0, false
	}
	return target, true
}
