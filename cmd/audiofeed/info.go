package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/chruffins/audiofeed/internal/cli"
	"github.com/chruffins/audiofeed/internal/stream"
)

// InfoCmd indexes files and prints their format and duration
type InfoCmd struct {
	Files   []string `arg:"" name:"files" help:"Audio files to inspect" type:"existingfile"`
	Analyze bool     `help:"Decode every frame and measure levels"`
}

func (c *InfoCmd) Run(g *Globals) error {
	reg := audio.DefaultRegistry()

	var failed int
	for _, path := range c.Files {
		if err := c.inspect(g, reg, path); err != nil {
			g.log.Warn().Err(err).Str("file", path).Msg("inspect failed")
			cli.PrintError(err.Error())
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(c.Files))
	}
	return nil
}

func (c *InfoCmd) inspect(g *Globals, reg *audio.Registry, path string) error {
	src, err := reg.Load(path)
	if err != nil {
		return err
	}
	idx, err := stream.BuildIndex(src)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", path, err)
	}

	warmup := "none"
	if w, ok := src.Codec.(audio.Warmer); ok && w.WarmupFrames() > 0 {
		warmup = fmt.Sprintf("%d frames", w.WarmupFrames())
	}

	fields := []cli.Field{
		{Key: "Format", Value: src.Format},
		{Key: "Size", Value: cli.FormatBytes(int64(len(src.Data)))},
		{Key: "Duration", Value: cli.FormatClock(idx.Duration())},
		{Key: "Sample rate", Value: fmt.Sprintf("%d Hz", idx.SampleRate())},
		{Key: "Channels", Value: strconv.Itoa(idx.Channels())},
		{Key: "Frames", Value: strconv.Itoa(idx.Frames())},
		{Key: "Frame size", Value: fmt.Sprintf("%d samples", idx.FrameSamples())},
		{Key: "Seek warm-up", Value: warmup},
	}

	var warning string
	if c.Analyze {
		profile, err := audio.AnalyzeSource(src, nil)
		if err != nil {
			return fmt.Errorf("failed to analyze %s: %w", path, err)
		}
		g.log.Debug().
			Str("file", path).
			Int("frames", profile.Frames).
			Int("decode_errors", profile.DecodeErrors).
			Msg("analysis complete")

		fields = append(fields,
			cli.Field{Key: "Peak", Value: cli.FormatLevel(profile.Peak)},
			cli.Field{Key: "RMS", Value: cli.FormatLevel(profile.RMS)},
			cli.Field{Key: "Dynamic range", Value: fmt.Sprintf("%.1f dB", profile.DynamicRange)},
		)
		if profile.DecodeErrors > 0 {
			fields = append(fields, cli.Field{Key: "Bad frames", Value: strconv.Itoa(profile.DecodeErrors)})
			warning = fmt.Sprintf("%d frames failed to decode and were skipped", profile.DecodeErrors)
		}
	}

	cli.PrintSection(filepath.Base(path))
	for _, f := range fields {
		cli.PrintInfo(f.Key, f.Value)
	}
	if warning != "" {
		cli.PrintWarning(warning)
	}
	return nil
}
