package stream

import (
	"fmt"
	"math"
)

// LoopMode governs what happens at the loop end and the end of the source
type LoopMode int

const (
	// PlayOnce plays to the end of the source and drains; loop points are ignored
	PlayOnce LoopMode = iota

	// LoopOnce plays up to the loop end and drains
	LoopOnce

	// LoopForever wraps from the loop end back to the loop start
	LoopForever
)

func (m LoopMode) String() string {
	switch m {
	case PlayOnce:
		return "play once"
	case LoopOnce:
		return "loop once"
	case LoopForever:
		return "loop forever"
	default:
		return fmt.Sprintf("LoopMode(%d)", int(m))
	}
}

// LoopSpec holds the loop points in seconds and the loop mode
type LoopSpec struct {
	Start float64
	End   float64
	Mode  LoopMode
}

// valid reports whether the loop points make sense for a source of the
// given duration
func (l LoopSpec) valid(duration float64) bool {
	if math.IsNaN(l.Start) || math.IsNaN(l.End) {
		return false
	}
	if l.Mode < PlayOnce || l.Mode > LoopForever {
		return false
	}
	return l.Start >= 0 && l.End > l.Start && l.Start < duration
}

// bounds converts the loop points to sample positions within the source
func (l LoopSpec) bounds(rate int, total int64) (start, end int64) {
	start = int64(math.Round(l.Start * float64(rate)))
	end = int64(math.Round(l.End * float64(rate)))
	start = min(max(start, 0), total)
	end = min(max(end, start), total)
	return start, end
}

// clamp limits a read of need sample frames starting at pos so that it stops
// exactly on the loop end. It reports whether the read was cut short.
func (l LoopSpec) clamp(pos int64, need int, end int64) (int, bool) {
	if l.Mode == PlayOnce {
		return need, false
	}
	if pos+int64(need) > end {
		return int(max(end-pos, 0)), true
	}
	return need, false
}
