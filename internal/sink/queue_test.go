package sink

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/chruffins/audiofeed/internal/audio/audiotest"
	"github.com/chruffins/audiofeed/internal/stream"
)

func testOptions() audiotest.Options {
	return audiotest.Options{Frames: 40, FrameSamples: 100, SampleRate: 1000, Channels: 2}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func openStream(t *testing.T, q *Queue, opts ...stream.Option) *stream.Stream {
	t.Helper()
	s, err := stream.Open(audiotest.Source(testOptions(), audiotest.NewCodec(2)), q, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = q.Close()
	})
	return s
}

// readLeft reads n sample frames and returns the left channel
func readLeft(t *testing.T, q *Queue, n int) []int16 {
	t.Helper()
	buf := make([]byte, n*4)
	if _, err := io.ReadFull(q, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*4:]))
	}
	return out
}

func TestNewQueue_Errors(t *testing.T) {
	tests := []struct {
		name             string
		count, fragBytes int
	}{
		{"no fragments", 0, 1024},
		{"empty fragments", 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewQueue(tt.count, tt.fragBytes); err == nil {
				t.Errorf("NewQueue(%d, %d) succeeded, want error", tt.count, tt.fragBytes)
			}
		})
	}
}

func TestQueue_FillsAllFragments(t *testing.T) {
	q, err := NewQueue(4, 64*4)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	openStream(t, q)

	waitFor(t, "all fragments to fill", func() bool { return q.Buffered() == 4 })
}

func TestQueue_ReadContinuous(t *testing.T) {
	q, err := NewQueue(3, 64*4, WithBlocking())
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	openStream(t, q)

	var pos int64
	for _, n := range []int{10, 64, 100, 3, 500} {
		for i, v := range readLeft(t, q, n) {
			if want := audiotest.Value(pos + int64(i)); v != want {
				t.Fatalf("Sample at %d = %d, want %d", pos+int64(i), v, want)
			}
		}
		pos += int64(n)
	}

	if c := q.Consumed(); c != pos/64 {
		t.Errorf("Consumed = %d, want %d", c, pos/64)
	}
	if u := q.Underruns(); u != 0 {
		t.Errorf("Underruns = %d, want 0 in blocking mode", u)
	}
}

func TestQueue_Underrun(t *testing.T) {
	q, err := NewQueue(2, 64)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	n, err := q.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v, want %d, nil", n, err, len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Errorf("byte %d = %d, want silence", i, b)
		}
	}
	if u := q.Underruns(); u != 1 {
		t.Errorf("Underruns = %d, want 1", u)
	}
}

func TestQueue_Flush(t *testing.T) {
	q, err := NewQueue(4, 64*4, WithBlocking())
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	s := openStream(t, q)
	waitFor(t, "prefill", func() bool { return q.Buffered() == 4 })

	readLeft(t, q, 30)

	if !s.Seek(2.5) {
		t.Fatal("Seek failed")
	}
	q.Flush()

	for i, v := range readLeft(t, q, 300) {
		if want := audiotest.Value(2500 + int64(i)); v != want {
			t.Fatalf("Sample %d after flush = %d, want %d", i, v, want)
		}
	}
}

func TestQueue_Finished(t *testing.T) {
	q, err := NewQueue(2, 256*4, WithBlocking())
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	openStream(t, q)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1024)
		for {
			if _, err := q.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-q.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("no finished notification")
	}

	_ = q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestQueue_BlockingReadUnblocksOnClose(t *testing.T) {
	q, err := NewQueue(2, 64, WithBlocking())
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := q.Read(make([]byte, 16))
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	_ = q.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Read after Close = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Read did not return after Close")
	}
}

func TestQueue_Register(t *testing.T) {
	q, err := NewQueue(2, 64)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	if _, err := q.Register(); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := q.Register(); err == nil {
		t.Error("second Register succeeded, want error")
	}

	closed, _ := NewQueue(2, 64)
	_ = closed.Close()
	if _, err := closed.Register(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Register after Close = %v, want ErrQueueClosed", err)
	}
}
