package audio

import (
	"fmt"
	"math"
)

// AudioProfile holds whole-file statistics gathered by decoding every frame
type AudioProfile struct {
	Frames     int
	Samples    int64 // per channel
	SampleRate int
	Channels   int
	Duration   float64 // seconds

	// Levels are normalised to full scale (1.0)
	Peak float64
	RMS  float64

	// DynamicRange is the peak to RMS ratio in dB
	DynamicRange float64

	// DecodeErrors counts frames that failed to decode and were skipped
	DecodeErrors int
}

// ProgressCallback is called with the number of bytes analysed so far
type ProgressCallback func(done, total int)

// AnalyzeSource decodes src from its first frame to its last and measures
// its levels. The codec is Reset before and after.
func AnalyzeSource(src *Source, progressCb ProgressCallback) (*AudioProfile, error) {
	codec := src.Codec
	codec.Reset()
	defer codec.Reset()

	profile := &AudioProfile{}
	var pcm []int16
	var sumSquares float64
	var peak int

	total := src.End - src.Start
	for off := src.Start; off < src.End; {
		info, err := codec.DecodeFrame(src.Data[off:src.End], nil)
		if err != nil || info.Samples == 0 || info.Bytes <= 0 {
			break
		}

		if profile.Frames == 0 {
			profile.SampleRate = info.SampleRate
			profile.Channels = info.Channels
		}

		if need := info.Samples * info.Channels; len(pcm) < need {
			pcm = make([]int16, need)
		}
		if _, err := codec.DecodeFrame(src.Data[off:src.End], pcm); err != nil {
			profile.DecodeErrors++
			codec.Reset()
		} else {
			for _, s := range pcm[:info.Samples*info.Channels] {
				v := int(s)
				sumSquares += float64(v * v)
				if v < 0 {
					v = -v
				}
				peak = max(peak, v)
			}
		}

		profile.Frames++
		profile.Samples += int64(info.Samples)
		off += info.Bytes

		if progressCb != nil && profile.Frames%64 == 0 {
			progressCb(off-src.Start, total)
		}
	}

	if profile.Frames == 0 {
		return nil, fmt.Errorf("no audio frames in %s", src.Name)
	}
	if progressCb != nil {
		progressCb(total, total)
	}

	profile.Duration = float64(profile.Samples) / float64(profile.SampleRate)
	profile.Peak = float64(peak) / 32768.0
	if n := profile.Samples * int64(profile.Channels); n > 0 {
		profile.RMS = math.Sqrt(sumSquares/float64(n)) / 32768.0
	}
	if profile.RMS > 0 && profile.Peak > 0 {
		profile.DynamicRange = 20 * math.Log10(profile.Peak/profile.RMS)
	}

	return profile, nil
}
