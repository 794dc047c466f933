package main

import (
	"math"

	"github.com/chruffins/audiofeed/internal/config"
	"github.com/faiface/beep"
)

// resample converts interleaved 16-bit PCM between sample rates
func resample(pcm []int16, channels, from, to int) []int16 {
	frames := len(pcm) / channels
	pos := 0
	source := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := min(len(samples), frames-pos)
		for i := range n {
			l := float64(pcm[(pos+i)*channels]) / 32768
			r := l
			if channels > 1 {
				r = float64(pcm[(pos+i)*channels+1]) / 32768
			}
			samples[i] = [2]float64{l, r}
		}
		pos += n
		return n, true
	})

	rs := beep.Resample(config.ResampleQuality, beep.SampleRate(from), beep.SampleRate(to), source)

	out := make([]int16, 0, int(float64(len(pcm))*float64(to)/float64(from))+channels)
	buf := make([][2]float64, 512)
	for {
		n, ok := rs.Stream(buf)
		for _, s := range buf[:n] {
			out = append(out, toInt16(s[0]))
			if channels > 1 {
				out = append(out, toInt16(s[1]))
			}
		}
		if !ok {
			break
		}
	}
	return out
}

func toInt16(v float64) int16 {
	return int16(math.Max(-32768, math.Min(32767, math.Round(v*32768))))
}
