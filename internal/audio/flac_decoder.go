package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

var flacSignature = []byte("fLaC")

// FLACFormat returns the FLAC format description
func FLACFormat() Format {
	return Format{
		Name:       "flac",
		Extensions: []string{"flac"},
		Identify: func(data []byte) bool {
			base := id3v2Size(data)
			return base+4 <= len(data) && bytes.Equal(data[base:base+4], flacSignature)
		},
		Open: openFLAC,
	}
}

func openFLAC(data []byte) (Codec, int, int, error) {
	base := id3v2Size(data)
	if base+4 > len(data) {
		return nil, 0, 0, fmt.Errorf("%w: missing FLAC signature", ErrTruncated)
	}

	// Parse FLAC stream - reads signature and StreamInfo block
	stream, err := flac.New(bytes.NewReader(data[base:]))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to parse FLAC header: %w", err)
	}
	info := stream.Info

	// flac.New buffers its reader, so walk the metadata block headers again
	// on an unbuffered reader to find where the first frame starts
	r := bytes.NewReader(data[base+4:])
	for {
		block, err := meta.New(r)
		if err != nil && !errors.Is(err, meta.ErrReservedType) {
			return nil, 0, 0, fmt.Errorf("failed to read FLAC metadata: %w", err)
		}
		if err := block.Skip(); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to skip FLAC metadata: %w", err)
		}
		if block.IsLast {
			break
		}
	}
	start := base + 4 + int(r.Size()) - r.Len()

	d := &FLACDecoder{
		sampleRate:    int(info.SampleRate),
		channels:      int(info.NChannels),
		bitsPerSample: int(info.BitsPerSample),
	}
	return d, start, len(data), nil
}

// FLACDecoder implements Codec for FLAC frames. FLAC frames are independent,
// so no warm-up is needed after a seek.
type FLACDecoder struct {
	sampleRate    int
	channels      int
	bitsPerSample int
}

// DecodeFrame decodes the frame at the start of data
func (d *FLACDecoder) DecodeFrame(data []byte, pcm []int16) (FrameInfo, error) {
	if len(data) == 0 {
		return FrameInfo{}, nil
	}

	// FLAC frame headers carry no length, so the whole frame is parsed even
	// when only the header is wanted
	r := bytes.NewReader(data)
	f, err := frame.Parse(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return FrameInfo{}, nil
		}
		return FrameInfo{}, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}

	info := FrameInfo{
		Bytes:      len(data) - r.Len(),
		Samples:    int(f.BlockSize),
		SampleRate: int(f.SampleRate),
		Channels:   f.Channels.Count(),
	}
	if info.SampleRate == 0 {
		info.SampleRate = d.sampleRate
	}
	if pcm == nil {
		return info, nil
	}
	if len(pcm) < info.Samples*info.Channels {
		return info, fmt.Errorf("pcm buffer holds %d samples, frame needs %d", len(pcm), info.Samples*info.Channels)
	}

	bps := int(f.BitsPerSample)
	if bps == 0 {
		bps = d.bitsPerSample
	}

	// Interleave subframes and scale to 16 bits
	for ch, sub := range f.Subframes {
		for i, s := range sub.Samples[:info.Samples] {
			pcm[i*info.Channels+ch] = scaleTo16(s, bps)
		}
	}
	return info, nil
}

// Reset is a no-op; FLAC frames carry no inter-frame state
func (d *FLACDecoder) Reset() {}

// WarmupFrames returns zero: every FLAC frame decodes on its own
func (d *FLACDecoder) WarmupFrames() int {
	return 0
}

// scaleTo16 converts a sample of the given bit depth to 16 bits
func scaleTo16(s int32, bitsPerSample int) int16 {
	switch {
	case bitsPerSample > 16:
		return int16(s >> (bitsPerSample - 16))
	case bitsPerSample < 16 && bitsPerSample > 0:
		return int16(s << (16 - bitsPerSample))
	default:
		return int16(s)
	}
}
