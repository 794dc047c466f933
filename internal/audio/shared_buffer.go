package audio

import "sync"

// SampleRing is a fixed-size ring of mono samples shared between the audio
// callback, which writes, and the UI, which reads the most recent window for
// spectrum analysis. Older samples are overwritten.
type SampleRing struct {
	mu      sync.Mutex
	samples []float64
	pos     int
	written int64
}

// NewSampleRing creates a ring holding the last size samples
func NewSampleRing(size int) *SampleRing {
	if size <= 0 {
		size = 4096
	}
	return &SampleRing{samples: make([]float64, size)}
}

// Write appends samples, overwriting the oldest
func (r *SampleRing) Write(samples []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the tail can survive when writing more than the ring holds
	if len(samples) > len(r.samples) {
		r.written += int64(len(samples) - len(r.samples))
		samples = samples[len(samples)-len(r.samples):]
	}
	for _, s := range samples {
		r.samples[r.pos] = s
		r.pos = (r.pos + 1) % len(r.samples)
	}
	r.written += int64(len(samples))
}

// Latest returns the last n samples in chronological order. Slots never
// written read as silence.
func (r *SampleRing) Latest(n int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.samples)
	n = min(n, size)
	out := make([]float64, n)
	start := (r.pos - n + size) % size
	for i := range out {
		out[i] = r.samples[(start+i)%size]
	}
	return out
}

// Written returns the total number of samples ever written
func (r *SampleRing) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Reset clears the ring to silence
func (r *SampleRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.samples)
	r.pos = 0
	r.written = 0
}
