package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/chruffins/audiofeed/internal/player"
	"github.com/chruffins/audiofeed/internal/ui"
	"github.com/rs/zerolog"
)

// PlayCmd plays files through the speaker with the now-playing view
type PlayCmd struct {
	PlaybackFlags

	Files      []string `arg:"" name:"files" help:"Audio files to play in order" type:"existingfile"`
	Gain       float64  `help:"Linear gain, 1.0 is unity" default:"1.0" env:"AUDIOFEED_GAIN"`
	Pan        float64  `help:"Balance from -1 (left) to 1 (right)" default:"0"`
	Speed      float64  `help:"Playback speed, pitch follows" default:"1.0"`
	DeviceRate int      `help:"Device sample rate in Hz" default:"44100" env:"AUDIOFEED_DEVICE_RATE"`
}

func (c *PlayCmd) Run(g *Globals) error {
	cfg, err := c.playback()
	if err != nil {
		return err
	}
	cfg.Gain = c.Gain
	cfg.Pan = c.Pan
	cfg.Speed = c.Speed
	cfg.DeviceRate = c.DeviceRate
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The view owns the terminal, so console logs would tear it
	log := g.log
	if g.LogFile == "" && log.GetLevel() < zerolog.ErrorLevel {
		log = log.Level(zerolog.ErrorLevel)
	}

	p, err := player.New(&player.Speaker{}, cfg, player.WithLogger(log))
	if err != nil {
		return err
	}
	defer p.Close()

	model := ui.NewModel(p, c.Files)
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(os.Stdout))
	p.OnFinished(func() { prog.Send(ui.TrackFinished{}) })

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("failed to run UI: %w", err)
	}
	return nil
}
