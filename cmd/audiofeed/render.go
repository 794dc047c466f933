package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/chruffins/audiofeed/internal/cli"
	"github.com/chruffins/audiofeed/internal/config"
	"github.com/chruffins/audiofeed/internal/sink"
	"github.com/chruffins/audiofeed/internal/stream"
)

// RenderCmd streams a file through the engine, honouring seek and loop
// settings, and writes what a device would have heard to a WAV file
type RenderCmd struct {
	PlaybackFlags

	Input   string  `arg:"" name:"input" help:"Source audio file" type:"existingfile"`
	Output  string  `arg:"" name:"output" help:"Destination WAV file" type:"path"`
	Seek    float64 `help:"Start position in seconds" default:"0"`
	Seconds float64 `help:"Stop after this many seconds of output, required with --mode=forever" default:"0"`
}

func (c *RenderCmd) Run(g *Globals) error {
	startTime := time.Now()
	cli.PrintBanner()

	cfg, err := c.playback()
	if err != nil {
		return err
	}
	src, idx, err := load(c.Input)
	if err != nil {
		return err
	}

	out, err := os.Create(c.Output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	enc := wav.NewEncoder(out, idx.SampleRate(), 16, idx.Channels(), 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: idx.Channels(), SampleRate: idx.SampleRate()},
		SourceBitDepth: 16,
	}

	frames, err := decode(g, src, idx, cfg, c.Seek, c.Seconds, func(pcm []byte) error {
		buf.Data = buf.Data[:0]
		for i := 0; i+1 < len(pcm); i += 2 {
			buf.Data = append(buf.Data, int(int16(binary.LittleEndian.Uint16(pcm[i:]))))
		}
		return enc.Write(buf)
	})
	if err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV file: %w", err)
	}
	cli.PrintSuccess(fmt.Sprintf("Wrote %s", c.Output))

	cli.PrintSummary("Render complete", []cli.Field{
		{Key: "Input", Value: filepath.Base(c.Input)},
		{Key: "Output", Value: c.Output},
		{Key: "Length", Value: cli.FormatClock(float64(frames) / float64(idx.SampleRate()))},
		{Key: "Samples", Value: strconv.FormatInt(frames, 10)},
		{Key: "Loop", Value: string(cfg.Loop)},
		{Key: "Took", Value: time.Since(startTime).Round(time.Millisecond).String()},
	})
	return nil
}

// PackCmd re-encodes a file as an Opus packet stream the engine can seek in
type PackCmd struct {
	Input  string `arg:"" name:"input" help:"Source audio file" type:"existingfile"`
	Output string `arg:"" name:"output" help:"Destination .opk file" type:"path"`
}

// Sample rates the Opus encoder accepts
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

func (c *PackCmd) Run(g *Globals) error {
	startTime := time.Now()
	cli.PrintBanner()

	src, idx, err := load(c.Input)
	if err != nil {
		return err
	}
	channels := idx.Channels()
	if channels > 2 {
		return fmt.Errorf("cannot pack %d channels, Opus streams hold mono or stereo", channels)
	}

	var pcm []int16
	_, err = decode(g, src, idx, config.DefaultPlayback(), 0, 0, func(b []byte) error {
		for i := 0; i+1 < len(b); i += 2 {
			pcm = append(pcm, int16(binary.LittleEndian.Uint16(b[i:])))
		}
		return nil
	})
	if err != nil {
		return err
	}

	rate := idx.SampleRate()
	if !isOpusRate(rate) {
		g.log.Info().Int("from", rate).Int("to", 48000).Msg("resampling for Opus")
		cli.PrintWarning(fmt.Sprintf("Opus does not support %d Hz, resampling to 48000 Hz", rate))
		pcm = resample(pcm, channels, rate, 48000)
		rate = 48000
	}

	out, err := os.Create(c.Output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	if err := audio.EncodeOpusStream(out, pcm, rate, channels); err != nil {
		return err
	}
	info, err := out.Stat()
	if err != nil {
		return err
	}
	cli.PrintSuccess(fmt.Sprintf("Wrote %s", c.Output))

	cli.PrintSummary("Pack complete", []cli.Field{
		{Key: "Input", Value: filepath.Base(c.Input)},
		{Key: "Output", Value: c.Output},
		{Key: "Sample rate", Value: fmt.Sprintf("%d Hz", rate)},
		{Key: "Size", Value: fmt.Sprintf("%s (was %s)", cli.FormatBytes(info.Size()), cli.FormatBytes(int64(len(src.Data))))},
		{Key: "Took", Value: time.Since(startTime).Round(time.Millisecond).String()},
	})
	return nil
}

func isOpusRate(rate int) bool {
	for _, r := range opusRates {
		if r == rate {
			return true
		}
	}
	return false
}

// load reads and indexes one file with the built-in formats
func load(path string) (*audio.Source, *stream.Index, error) {
	src, err := audio.DefaultRegistry().Load(path)
	if err != nil {
		return nil, nil, err
	}
	idx, err := stream.BuildIndex(src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to index %s: %w", path, err)
	}
	return src, idx, nil
}

// loopSpec converts the configured loop points for a source of the given
// duration
func loopSpec(cfg config.Playback, duration float64) stream.LoopSpec {
	l := stream.LoopSpec{Start: cfg.LoopStart, End: cfg.LoopEnd}
	if l.End == 0 || l.End > duration {
		l.End = duration
	}
	switch cfg.Loop {
	case config.LoopOnceMode:
		l.Mode = stream.LoopOnce
	case config.LoopForeverMode:
		l.Mode = stream.LoopForever
	default:
		l.Mode = stream.PlayOnce
	}
	return l
}

// decode opens src on a blocking queue and hands emit every chunk of PCM
// until playback finishes or seconds of output have been produced. It
// returns the number of sample frames emitted.
func decode(g *Globals, src *audio.Source, idx *stream.Index, cfg config.Playback, start, seconds float64, emit func([]byte) error) (int64, error) {
	rate := idx.SampleRate()
	frameBytes := idx.Channels() * 2

	loop := loopSpec(cfg, idx.Duration())
	limit := int64(-1)
	if seconds > 0 {
		limit = int64(math.Round(seconds * float64(rate)))
	}
	if limit < 0 && loop.Mode == stream.LoopForever {
		return 0, errors.New("looping forever needs --seconds to stop")
	}

	q, err := sink.NewQueue(cfg.Buffers, cfg.FragmentSamples*frameBytes,
		sink.WithBlocking(), sink.WithLogger(g.log))
	if err != nil {
		return 0, err
	}
	defer q.Close()

	s, err := stream.Open(src, q,
		stream.WithIndex(idx),
		stream.WithLoop(loop),
		stream.WithStart(start),
		stream.WithWarmupFrames(cfg.WarmupFrames),
		stream.WithLogger(g.log),
	)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	startSample := int64(math.Round(s.Position() * float64(rate)))
	frag := make([]byte, q.FragmentBytes())

	var written int64
	for limit < 0 || written < limit {
		n, err := io.ReadFull(q, frag)
		if err != nil {
			return written, fmt.Errorf("failed to read PCM: %w", err)
		}

		// The feeder reports the end before it submits the final fragment,
		// so the end position is known by the time that fragment is read
		select {
		case <-q.Finished():
			end := int64(math.Round(s.Position()*float64(rate))) - startSample
			if limit < 0 || end < limit {
				limit = max(end, 0)
			}
		default:
		}

		frames := int64(n / frameBytes)
		if limit >= 0 {
			frames = min(frames, limit-written)
		}
		if frames <= 0 {
			break
		}
		if err := emit(frag[:frames*int64(frameBytes)]); err != nil {
			return written, err
		}
		written += frames
	}

	g.log.Debug().
		Int64("frames", written).
		Int64("wraps", s.Wraps()).
		Msg("decode finished")
	return written, nil
}
