package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hraban/opus"
)

// Opus packet stream layout:
//
//	magic    "OPKSTRM1"
//	rate     uint32 big endian
//	channels uint8
//	then per packet: uint16 big endian length, packet bytes
const (
	opusMagic      = "OPKSTRM1"
	opusHeaderSize = len(opusMagic) + 5

	// 80 ms of pre-roll at 20 ms packets
	opusWarmupFrames = 4

	// opusMaxPacket bounds a single encoded packet
	opusMaxPacket = 4000
)

// Frame sizes at 48 kHz indexed by TOC config (RFC 6716 section 3.1)
var opusConfigSamples = [32]int{
	480, 960, 1920, 2880, // SILK NB
	480, 960, 1920, 2880, // SILK MB
	480, 960, 1920, 2880, // SILK WB
	480, 960, // Hybrid SWB
	480, 960, // Hybrid FB
	120, 240, 480, 960, // CELT NB
	120, 240, 480, 960, // CELT WB
	120, 240, 480, 960, // CELT SWB
	120, 240, 480, 960, // CELT FB
}

// opusPacketSamples returns the per-channel duration of a packet at 48 kHz
func opusPacketSamples(packet []byte) int {
	if len(packet) == 0 {
		return 0
	}
	toc := packet[0]
	perFrame := opusConfigSamples[toc>>3]

	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return 0
		}
		frames = int(packet[1] & 0x3F)
	}
	return perFrame * frames
}

// OpusFormat returns the Opus packet stream format description
func OpusFormat() Format {
	return Format{
		Name:       "opus",
		Extensions: []string{"opk"},
		Identify: func(data []byte) bool {
			return len(data) >= len(opusMagic) && string(data[:len(opusMagic)]) == opusMagic
		},
		Open: openOpus,
	}
}

func openOpus(data []byte) (Codec, int, int, error) {
	if len(data) < opusHeaderSize || string(data[:len(opusMagic)]) != opusMagic {
		return nil, 0, 0, fmt.Errorf("%w: missing Opus stream header", ErrTruncated)
	}
	rate := int(binary.BigEndian.Uint32(data[len(opusMagic):]))
	channels := int(data[len(opusMagic)+4])

	d, err := NewOpusDecoder(rate, channels)
	if err != nil {
		return nil, 0, 0, err
	}
	return d, opusHeaderSize, len(data), nil
}

// OpusDecoder implements Codec for a length-prefixed Opus packet stream.
// The Opus decoder predicts from previous packets, so output is only clean
// after a short pre-roll following a Reset.
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
}

// NewOpusDecoder creates a decoder for the given output format
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported Opus channel count %d", channels)
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create Opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// DecodeFrame decodes the length-prefixed packet at the start of data
func (d *OpusDecoder) DecodeFrame(data []byte, pcm []int16) (FrameInfo, error) {
	if len(data) < 2 {
		return FrameInfo{}, nil
	}
	size := int(binary.BigEndian.Uint16(data))
	if size == 0 || 2+size > len(data) {
		return FrameInfo{}, nil
	}
	packet := data[2 : 2+size]

	samples := opusPacketSamples(packet) * d.sampleRate / 48000
	info := FrameInfo{
		Bytes:      2 + size,
		Samples:    samples,
		SampleRate: d.sampleRate,
		Channels:   d.channels,
	}
	if pcm == nil || samples == 0 {
		return info, nil
	}
	if len(pcm) < samples*d.channels {
		return info, fmt.Errorf("pcm buffer holds %d samples, frame needs %d", len(pcm), samples*d.channels)
	}

	n, err := d.dec.Decode(packet, pcm[:samples*d.channels])
	if err != nil {
		return info, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	// Pad a short decode with silence so every frame has its indexed length
	for i := n * d.channels; i < samples*d.channels; i++ {
		pcm[i] = 0
	}
	return info, nil
}

// Reset replaces the decoder, discarding its prediction state
func (d *OpusDecoder) Reset() {
	dec, err := opus.NewDecoder(d.sampleRate, d.channels)
	if err != nil {
		// Parameters were accepted once already
		return
	}
	d.dec = dec
}

// WarmupFrames returns the number of packets to decode before a seek target
func (d *OpusDecoder) WarmupFrames() int {
	return opusWarmupFrames
}

// EncodeOpusStream encodes interleaved PCM into an Opus packet stream using
// 20 ms packets. The final packet is padded with silence.
func EncodeOpusStream(w io.Writer, pcm []int16, sampleRate, channels int) error {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("failed to create Opus encoder: %w", err)
	}

	var header bytes.Buffer
	header.WriteString(opusMagic)
	_ = binary.Write(&header, binary.BigEndian, uint32(sampleRate))
	header.WriteByte(byte(channels))
	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}

	frameSize := sampleRate / 50
	chunkSize := frameSize * channels
	chunk := make([]int16, chunkSize)
	packet := make([]byte, opusMaxPacket)
	var prefix [2]byte

	for i := 0; i < len(pcm); i += chunkSize {
		n := copy(chunk, pcm[i:])
		clear(chunk[n:])

		size, err := enc.Encode(chunk, packet)
		if err != nil {
			return fmt.Errorf("failed to encode Opus packet: %w", err)
		}
		binary.BigEndian.PutUint16(prefix[:], uint16(size))
		if _, err := w.Write(prefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(packet[:size]); err != nil {
			return err
		}
	}
	return nil
}
