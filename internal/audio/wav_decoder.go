package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// WAVFrameSamples is the size of the pseudo-frames uncompressed PCM is split
// into, matching an MPEG-1 Layer III frame
const WAVFrameSamples = 1152

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVFormat returns the RIFF/WAVE PCM format description
func WAVFormat() Format {
	return Format{
		Name:       "wav",
		Extensions: []string{"wav", "wave"},
		Identify: func(data []byte) bool {
			return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
		},
		Open: openWAV,
	}
}

func openWAV(data []byte) (Codec, int, int, error) {
	r := bytes.NewReader(data)
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("invalid WAV file")
	}

	// Get format info without reading all samples
	if err := decoder.FwdToPCM(); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	if f := decoder.WavAudioFormat; f != wavFormatPCM && f != wavFormatExtensible {
		return nil, 0, 0, fmt.Errorf("unsupported WAV encoding %d (only integer PCM)", f)
	}

	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, 0, fmt.Errorf("unsupported WAV bit depth %d", bitDepth)
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, 0, err
	}
	start := int(pos)
	end := start + decoder.PCMSize
	if end > len(data) || decoder.PCMSize <= 0 {
		end = len(data)
	}

	d := &WAVDecoder{
		sampleRate: int(decoder.SampleRate),
		bitDepth:   bitDepth,
		numChans:   int(decoder.NumChans),
	}
	return d, start, end, nil
}

// WAVDecoder implements Codec for PCM WAV data split into fixed pseudo-frames
type WAVDecoder struct {
	sampleRate int
	bitDepth   int
	numChans   int
}

// DecodeFrame decodes the pseudo-frame at the start of data
func (d *WAVDecoder) DecodeFrame(data []byte, pcm []int16) (FrameInfo, error) {
	bytesPerSample := d.bitDepth / 8
	blockAlign := bytesPerSample * d.numChans
	if blockAlign == 0 {
		return FrameInfo{}, nil
	}

	n := min(len(data)/blockAlign, WAVFrameSamples)
	if n == 0 {
		return FrameInfo{}, nil
	}

	info := FrameInfo{
		Bytes:      n * blockAlign,
		Samples:    n,
		SampleRate: d.sampleRate,
		Channels:   d.numChans,
	}
	if pcm == nil {
		return info, nil
	}
	if len(pcm) < n*d.numChans {
		return info, fmt.Errorf("pcm buffer holds %d samples, frame needs %d", len(pcm), n*d.numChans)
	}

	for i := 0; i < n*d.numChans; i++ {
		b := data[i*bytesPerSample:]
		switch bytesPerSample {
		case 1:
			// 8-bit WAV is unsigned
			pcm[i] = int16(int(b[0])-128) << 8
		case 2:
			pcm[i] = int16(b[0]) | int16(b[1])<<8
		default:
			// Keep the two most significant bytes
			hi := bytesPerSample - 2
			pcm[i] = int16(b[hi]) | int16(b[hi+1])<<8
		}
	}
	return info, nil
}

// Reset is a no-op for PCM
func (d *WAVDecoder) Reset() {}

// WarmupFrames returns zero: PCM has no inter-frame state
func (d *WAVDecoder) WarmupFrames() int {
	return 0
}
