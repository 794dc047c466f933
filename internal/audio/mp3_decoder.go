package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MPEG audio Layer III lookup tables (ISO 11172-3 / 13818-3)
var mp3BitrateTable = [2][16]int{
	// MPEG-1
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	// MPEG-2 / MPEG-2.5
	{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
}

var mp3SampleRateTable = [3][4]int{
	{44100, 48000, 32000, 0}, // MPEG-1
	{22050, 24000, 16000, 0}, // MPEG-2
	{11025, 12000, 8000, 0},  // MPEG-2.5
}

// mp3WarmupFrames covers the bit reservoir, which can reach back up to
// 511 bytes of main data across several preceding frames
const mp3WarmupFrames = 10

type mp3Header struct {
	bytes      int
	samples    int
	sampleRate int
}

// parseMP3Header parses a Layer III frame header at the start of b
func parseMP3Header(b []byte) (mp3Header, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mp3Header{}, false
	}

	versionBits := (b[1] >> 3) & 0x03
	layerBits := (b[1] >> 1) & 0x03
	bitrateIdx := b[2] >> 4
	sampleIdx := (b[2] >> 2) & 0x03
	padding := int((b[2] >> 1) & 0x01)

	// Map layer bits: 1=III; go-mp3 only decodes Layer III
	if layerBits != 1 {
		return mp3Header{}, false
	}
	if bitrateIdx == 0 || bitrateIdx == 15 || sampleIdx == 3 {
		return mp3Header{}, false
	}

	// Map version bits: 0=2.5, 1=reserved, 2=2, 3=1
	var versionIdx, sampleVersion int
	switch versionBits {
	case 3:
		versionIdx, sampleVersion = 0, 0
	case 2:
		versionIdx, sampleVersion = 1, 1
	case 0:
		versionIdx, sampleVersion = 1, 2
	default:
		return mp3Header{}, false
	}

	bitrate := mp3BitrateTable[versionIdx][bitrateIdx] * 1000
	sampleRate := mp3SampleRateTable[sampleVersion][sampleIdx]

	h := mp3Header{sampleRate: sampleRate}
	if versionIdx == 0 {
		h.samples = 1152
		h.bytes = 144*bitrate/sampleRate + padding
	} else {
		h.samples = 576
		h.bytes = 72*bitrate/sampleRate + padding
	}
	return h, true
}

// mp3SyncSearch bounds the zero padding skipped between an ID3v2 tag and the
// first frame header when sniffing
const mp3SyncSearch = 4096

// id3v2Size returns the length of a leading ID3v2 tag, or 0
func id3v2Size(data []byte) int {
	if len(data) < 10 || string(data[:3]) != "ID3" {
		return 0
	}
	// Synchsafe integer (4 bytes, 7 bits each)
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	size += 10
	if data[5]&0x10 != 0 {
		size += 10 // footer
	}
	return size
}

// MP3Format returns the MPEG Layer III format description
func MP3Format() Format {
	return Format{
		Name:       "mp3",
		Extensions: []string{"mp3"},
		Identify: func(data []byte) bool {
			// A tag alone proves nothing; FLAC files carry ID3 too
			start := id3v2Size(data)
			for start < len(data) && start < id3v2Size(data)+mp3SyncSearch && data[start] == 0 {
				start++
			}
			if start >= len(data) {
				return false
			}
			_, ok := parseMP3Header(data[start:])
			return ok
		},
		Open: func(data []byte) (Codec, int, int, error) {
			start := id3v2Size(data)
			if start > len(data) {
				return nil, 0, 0, fmt.Errorf("%w: ID3v2 tag runs past end of file", ErrTruncated)
			}
			end := len(data)
			if end-start >= 128 && bytes.Equal(data[end-128:end-125], []byte("TAG")) {
				end -= 128
			}
			return NewMP3Decoder(), start, end, nil
		},
	}
}

// frameFeed hands go-mp3 exactly one frame at a time. It must not implement
// io.Seeker, or go-mp3 scans the whole stream for its length.
type frameFeed struct {
	data []byte
}

func (f *frameFeed) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

// MP3Decoder implements Codec for MPEG Layer III frames.
// A single go-mp3 decoder is kept alive across consecutive frames so the
// main data reservoir carries over from one frame to the next.
type MP3Decoder struct {
	feed    frameFeed
	decoder *mp3.Decoder
	out     []byte
}

// NewMP3Decoder creates a new MP3 frame decoder
func NewMP3Decoder() *MP3Decoder {
	return &MP3Decoder{}
}

// DecodeFrame decodes the frame at the start of data
func (d *MP3Decoder) DecodeFrame(data []byte, pcm []int16) (FrameInfo, error) {
	h, ok := parseMP3Header(data)
	if !ok || h.bytes > len(data) {
		return FrameInfo{}, nil
	}

	// go-mp3 always outputs interleaved stereo
	info := FrameInfo{
		Bytes:      h.bytes,
		Samples:    h.samples,
		SampleRate: h.sampleRate,
		Channels:   2,
	}
	if pcm == nil {
		return info, nil
	}
	if len(pcm) < h.samples*2 {
		return info, fmt.Errorf("pcm buffer holds %d samples, frame needs %d", len(pcm), h.samples*2)
	}

	d.feed.data = data[:h.bytes]

	if d.decoder == nil {
		// NewDecoder consumes and decodes the first frame itself
		decoder, err := mp3.NewDecoder(&d.feed)
		if err != nil {
			return info, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		d.decoder = decoder
	}

	// 2 bytes per sample x 2 channels
	n := h.samples * 4
	if cap(d.out) < n {
		d.out = make([]byte, n)
	}
	out := d.out[:n]

	if _, err := io.ReadFull(d.decoder, out); err != nil {
		d.Reset()
		return info, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}

	for i := 0; i < h.samples*2; i++ {
		pcm[i] = int16(out[i*2]) | int16(out[i*2+1])<<8
	}
	return info, nil
}

// Reset drops the decoder along with its reservoir
func (d *MP3Decoder) Reset() {
	d.decoder = nil
	d.feed.data = nil
}

// WarmupFrames returns the number of frames to decode before a seek target
func (d *MP3Decoder) WarmupFrames() int {
	return mp3WarmupFrames
}
