// Package sink provides an in-process host for streams: a fixed pool of PCM
// fragments that a stream's feeder fills on demand and a device-side reader
// drains.
package sink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chruffins/audiofeed/internal/stream"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned when registering with a closed queue
var ErrQueueClosed = errors.New("queue closed")

// Queue is a fixed pool of equally sized fragments cycling between a free
// list, the feeder and a pending list. Read consumes pending fragments in
// order and asks the feeder for a refill each time one is used up.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	fragBytes int
	free      [][]byte
	pending   [][]byte
	cur       []byte // fragment being read, not in either list
	curPos    int

	events     chan stream.Event
	finished   chan struct{}
	registered bool
	closed     bool
	blocking   bool
	starved    bool

	consumed  atomic.Int64
	readBytes atomic.Int64
	underruns atomic.Int64

	log zerolog.Logger
}

// Option configures a Queue
type Option func(*Queue)

// WithBlocking makes Read wait for filled fragments instead of playing
// silence. Used for offline rendering.
func WithBlocking() Option {
	return func(q *Queue) { q.blocking = true }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a queue of count fragments of fragBytes each
func NewQueue(count, fragBytes int, opts ...Option) (*Queue, error) {
	if count < 1 {
		return nil, fmt.Errorf("fragment count must be at least 1, got %d", count)
	}
	if fragBytes < 1 {
		return nil, fmt.Errorf("fragment size must be at least 1 byte, got %d", fragBytes)
	}

	q := &Queue{
		fragBytes: fragBytes,
		free:      make([][]byte, 0, count),
		pending:   make([][]byte, 0, count),
		events:    make(chan stream.Event, 2*count+1),
		finished:  make(chan struct{}, 1),
		log:       zerolog.Nop(),
	}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < count; i++ {
		q.free = append(q.free, make([]byte, fragBytes))
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// FragmentBytes returns the size of each fragment
func (q *Queue) FragmentBytes() int {
	return q.fragBytes
}

// Register hands the feeder its event channel. A queue serves one stream.
func (q *Queue) Register() (<-chan stream.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.registered {
		return nil, errors.New("queue already has a stream")
	}
	q.registered = true

	// One demand per fragment still free after the prefill
	for range len(q.free) - 1 {
		q.post(stream.EventFragment)
	}
	return q.events, nil
}

// Fragment takes a free fragment, or returns nil when none is free
func (q *Queue) Fragment() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.free) == 0 {
		return nil
	}
	frag := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]
	return frag
}

// Submit queues a filled fragment for reading
func (q *Queue) Submit(frag []byte) {
	q.mu.Lock()
	q.pending = append(q.pending, frag)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Post delivers ev to the feeder, waiting for room if the channel is full
func (q *Queue) Post(ev stream.Event) {
	q.events <- ev
}

// Notify receives notifications from the stream
func (q *Queue) Notify(ev stream.Event) {
	if ev.Type != stream.EventFinished {
		return
	}
	select {
	case q.finished <- struct{}{}:
	default:
	}
}

// Finished delivers a value each time the stream reports the end of playback
func (q *Queue) Finished() <-chan struct{} {
	return q.finished
}

// post sends a demand without blocking; a full channel already holds more
// demand than there are fragments. Callers hold mu.
func (q *Queue) post(t stream.EventType) {
	select {
	case q.events <- stream.Event{Type: t}:
	default:
	}
}

// Read copies PCM out of pending fragments. Without WithBlocking an empty
// queue yields silence and counts an underrun. After Close it returns io.EOF.
func (q *Queue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(p) {
		if q.closed {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}

		if q.cur == nil {
			if len(q.pending) == 0 {
				if q.blocking {
					q.cond.Wait()
					continue
				}
				q.underrun()
				clear(p[n:])
				return len(p), nil
			}
			q.cur = q.pending[0]
			q.pending = q.pending[1:]
			q.curPos = 0
			q.starved = false
		}

		m := copy(p[n:], q.cur[q.curPos:])
		n += m
		q.curPos += m
		q.readBytes.Add(int64(m))

		if q.curPos == len(q.cur) {
			q.free = append(q.free, q.cur)
			q.cur = nil
			q.consumed.Add(1)
			q.post(stream.EventFragment)
		}
	}
	return n, nil
}

func (q *Queue) underrun() {
	q.underruns.Add(1)
	if !q.starved {
		q.starved = true
		q.log.Debug().Int64("consumed", q.consumed.Load()).Msg("queue underrun")
	}
}

// Flush drops every pending fragment, including a partly read one, and asks
// the feeder to refill them
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.pending)
	q.free = append(q.free, q.pending...)
	q.pending = q.pending[:0]
	if q.cur != nil {
		q.free = append(q.free, q.cur)
		q.cur = nil
		dropped++
	}
	for range dropped {
		q.post(stream.EventFragment)
	}
}

// Buffered returns the number of filled fragments waiting to be read
func (q *Queue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Consumed returns the number of fragments read to the end
func (q *Queue) Consumed() int64 {
	return q.consumed.Load()
}

// ReadBytes returns the number of bytes read out of filled fragments.
// Silence played during an underrun is not counted.
func (q *Queue) ReadBytes() int64 {
	return q.readBytes.Load()
}

// Underruns returns the number of reads that found the queue empty
func (q *Queue) Underruns() int64 {
	return q.underruns.Load()
}

// Close stops Read. The event channel stays open so a stream attached to the
// queue can still be sent its quit event; close the stream first.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}
