package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/chruffins/audiofeed/internal/cli"
	"github.com/chruffins/audiofeed/internal/config"
	"github.com/rs/zerolog"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

// Globals are flags shared by every command
type Globals struct {
	LogLevel string `help:"Log level" enum:"debug,info,warn,error" default:"warn" env:"AUDIOFEED_LOG_LEVEL"`
	LogFile  string `help:"Write logs to this file instead of stderr" type:"path" env:"AUDIOFEED_LOG_FILE"`

	log    zerolog.Logger `kong:"-"`
	closer io.Closer      `kong:"-"`
}

// PlaybackFlags are the stream settings shared by play and render
type PlaybackFlags struct {
	Buffers         int     `help:"Fragments queued between decoder and device" default:"4" env:"AUDIOFEED_BUFFERS"`
	FragmentSamples int     `help:"Sample frames per fragment" default:"4096" env:"AUDIOFEED_FRAGMENT_SAMPLES"`
	Warmup          int     `help:"Frames decoded before a seek target, -1 lets the codec decide" default:"-1" env:"AUDIOFEED_WARMUP"`
	LoopStart       float64 `help:"Loop start in seconds" default:"0"`
	LoopEnd         float64 `help:"Loop end in seconds, 0 for the end of the track" default:"0"`
	Mode            string  `help:"Loop mode" enum:"off,once,forever" default:"off" env:"AUDIOFEED_LOOP"`
}

// playback turns the flags into validated settings
func (f PlaybackFlags) playback() (config.Playback, error) {
	mode, err := config.ParseLoopMode(f.Mode)
	if err != nil {
		return config.Playback{}, err
	}

	cfg := config.DefaultPlayback()
	cfg.Buffers = f.Buffers
	cfg.FragmentSamples = f.FragmentSamples
	cfg.WarmupFrames = f.Warmup
	cfg.LoopStart = f.LoopStart
	cfg.LoopEnd = f.LoopEnd
	cfg.Loop = mode
	if err := cfg.Validate(); err != nil {
		return config.Playback{}, err
	}
	return cfg, nil
}

// VersionCmd prints the version
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	cli.PrintVersion(version)
	return nil
}

var CLI struct {
	Globals

	Play    PlayCmd    `cmd:"" help:"Play files in the terminal"`
	Info    InfoCmd    `cmd:"" help:"Index files and show their format"`
	Render  RenderCmd  `cmd:"" help:"Stream a file through the engine into a WAV file"`
	Pack    PackCmd    `cmd:"" help:"Encode a file as an Opus packet stream"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("audiofeed"),
		kong.Description(cli.Tagline),
		kong.Vars{"version": version},
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if err := CLI.Globals.setupLogging(); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	defer CLI.Globals.closeLog()

	if err := ctx.Run(&CLI.Globals); err != nil {
		CLI.Globals.log.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		cli.PrintError(err.Error())
		CLI.Globals.closeLog()
		os.Exit(1)
	}
}

// setupLogging builds the console logger for the chosen level and target
func (g *Globals) setupLogging() error {
	level, err := zerolog.ParseLevel(strings.ToLower(g.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if g.LogFile != "" {
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		g.closer = f
		out = zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}
	}

	g.log = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

func (g *Globals) closeLog() {
	if g.closer != nil {
		_ = g.closer.Close()
		g.closer = nil
	}
}
