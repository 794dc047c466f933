package audio

import "errors"

var (
	// ErrUnknownFormat is returned when no registered format claims a source
	ErrUnknownFormat = errors.New("unknown audio format")

	// ErrTruncated is returned when a container header is cut short
	ErrTruncated = errors.New("truncated audio data")

	// ErrCorruptFrame is returned by a codec when a frame header parses but its
	// payload cannot be decoded
	ErrCorruptFrame = errors.New("corrupt audio frame")
)

// FrameInfo describes one compressed frame
type FrameInfo struct {
	// Bytes is the compressed length of the frame
	Bytes int

	// Samples is the number of samples per channel the frame decodes to.
	// Zero means there is no further decodable frame.
	Samples int

	SampleRate int
	Channels   int
}

// Codec decodes a frame-based compressed stream one frame at a time.
//
// DecodeFrame is handed the source bytes starting at a frame boundary. When
// pcm is nil only the frame header is parsed (enough to learn its length and
// sample count); otherwise the frame is decoded into pcm as interleaved
// signed 16-bit samples. pcm must hold at least Samples*Channels values.
//
// Codecs may carry state from one frame to the next. Reset discards it, and
// must be called before decoding a frame that does not directly follow the
// previously decoded one.
type Codec interface {
	DecodeFrame(data []byte, pcm []int16) (FrameInfo, error)
	Reset()
}

// Warmer is implemented by codecs that need a number of preceding frames
// decoded before their output is trustworthy after a Reset.
type Warmer interface {
	WarmupFrames() int
}
