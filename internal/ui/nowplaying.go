package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/chruffins/audiofeed/internal/audio"
	"github.com/chruffins/audiofeed/internal/cli"
	"github.com/chruffins/audiofeed/internal/config"
	"github.com/chruffins/audiofeed/internal/player"
	"github.com/chruffins/audiofeed/internal/stream"
)

// Controller is the playback surface the view drives
type Controller interface {
	Load(path string) error
	Play() error
	TogglePause()
	IsPaused() bool
	SeekBy(delta float64) bool
	Position() float64
	Duration() float64
	Track() (player.TrackInfo, bool)
	Loop() stream.LoopSpec
	SetLoop(start, end float64) error
	SetLoopMode(mode stream.LoopMode) error
	Gain() float64
	SetGain(gain float64)
	Spectrum(bars []float64) error
	Underruns() int64
}

// TrackFinished is sent when the playing track reaches its end
type TrackFinished struct{}

// tickMsg refreshes position and spectrum
type tickMsg time.Time

// Model is the now-playing view over a list of files played in order
type Model struct {
	ctl      Controller
	files    []string
	current  int
	bar      progress.Model
	bars     []float64
	mirrored []float64
	status   string
	statusAt time.Time
	width    int
	quitting bool
}

// NewModel creates a view that plays files in order through ctl
func NewModel(ctl Controller, files []string) *Model {
	return &Model{
		ctl:     ctl,
		files:   files,
		current: -1,
		bar: progress.New(
			progress.WithGradient(string(cli.WaveIndigo), string(cli.WaveCyan)),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		bars:     make([]float64, config.NumBars),
		mirrored: make([]float64, config.NumBars),
	}
}

// Init loads the first file and starts the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.advance(1), tick())
}

func tick() tea.Cmd {
	return tea.Tick(config.TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// advance moves by step through the file list, skipping files that fail to
// load. It quits past either end.
func (m *Model) advance(step int) tea.Cmd {
	for next := m.current + step; next >= 0 && next < len(m.files); next += step {
		m.current = next
		if err := m.ctl.Load(m.files[next]); err != nil {
			m.setStatus(err.Error())
			continue
		}
		if err := m.ctl.Play(); err != nil {
			m.setStatus(err.Error())
			continue
		}
		return nil
	}
	m.quitting = true
	return tea.Quit
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusAt = time.Now()
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(min(msg.Width-30, 60), 10)
		return m, nil

	case tickMsg:
		if err := m.ctl.Spectrum(m.bars); err == nil {
			// Bass in the middle, highs at both edges
			audio.RearrangeFrequenciesCenterOut(m.bars, m.mirrored)
		}
		if !m.statusAt.IsZero() && time.Since(m.statusAt) > 3*time.Second {
			m.status = ""
		}
		return m, tick()

	case TrackFinished:
		if m.ctl.Loop().Mode == stream.LoopForever {
			return m, nil
		}
		return m, m.advance(1)

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return tea.Quit

	case " ", "space", "p":
		m.ctl.TogglePause()

	case "left":
		m.ctl.SeekBy(-config.SeekStep)

	case "right":
		m.ctl.SeekBy(config.SeekStep)

	case "n":
		return m.advance(1)

	case "b":
		if m.current > 0 {
			return m.advance(-1)
		}

	case "l":
		loop := m.ctl.Loop()
		next := (loop.Mode + 1) % (stream.LoopForever + 1)
		if err := m.ctl.SetLoopMode(next); err != nil {
			m.setStatus(err.Error())
		} else {
			m.setStatus("Loop: " + next.String())
		}

	case "[":
		loop := m.ctl.Loop()
		if err := m.ctl.SetLoop(m.ctl.Position(), loop.End); err != nil {
			m.setStatus(err.Error())
		} else {
			m.setStatus("Loop start " + cli.FormatClock(m.ctl.Position()))
		}

	case "]":
		loop := m.ctl.Loop()
		if err := m.ctl.SetLoop(loop.Start, m.ctl.Position()); err != nil {
			m.setStatus(err.Error())
		} else {
			m.setStatus("Loop end " + cli.FormatClock(m.ctl.Position()))
		}

	case "+", "=":
		m.ctl.SetGain(m.ctl.Gain() + config.GainStep)

	case "-", "_":
		m.ctl.SetGain(m.ctl.Gain() - config.GainStep)
	}
	return nil
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(cli.WaveCyan).
		Render(cli.Title)
	s.WriteString(title)
	s.WriteString("\n")

	info, ok := m.ctl.Track()
	if !ok {
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Nothing loaded"))
		return m.frame(s.String())
	}

	s.WriteString(lipgloss.NewStyle().Foreground(cli.WaveTeal).Render(info.Name))
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(
		fmt.Sprintf("  %d of %d", m.current+1, len(m.files))))
	s.WriteString("\n\n")

	// Progress bar and clock
	pos, dur := m.ctl.Position(), m.ctl.Duration()
	ratio := 0.0
	if dur > 0 {
		ratio = min(pos/dur, 1)
	}
	state := "▶"
	if m.ctl.IsPaused() {
		state = "⏸"
	}
	s.WriteString(state + " ")
	s.WriteString(m.bar.ViewAs(ratio))
	s.WriteString(fmt.Sprintf("  %s / %s", cli.FormatClock(pos), cli.FormatClock(dur)))
	s.WriteString("\n\n")

	m.renderDetails(&s, info)

	s.WriteString("\n\n")
	width := 64
	if m.width > 10 {
		width = min(m.width-10, 64)
	}
	s.WriteString(renderSpectrum(m.mirrored, width))

	if m.status != "" {
		s.WriteString("\n\n")
		s.WriteString(lipgloss.NewStyle().Foreground(cli.WaveFoam).Italic(true).Render(m.status))
	}

	s.WriteString("\n\n")
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(
		"space pause  ←/→ seek  l loop  [ ] loop points  +/- gain  n/b next/back  q quit"))

	return m.frame(s.String())
}

func (m *Model) renderDetails(s *strings.Builder, info player.TrackInfo) {
	labelStyle := lipgloss.NewStyle().Faint(true)
	valueStyle := lipgloss.NewStyle()
	headerStyle := lipgloss.NewStyle().Faint(true).Bold(true)

	s.WriteString(headerStyle.Render("Audio"))
	s.WriteString(" │ ")
	s.WriteString(valueStyle.Render(fmt.Sprintf("%s  %.1f kHz  %dch", strings.ToUpper(info.Format), float64(info.SampleRate)/1000, info.Channels)))
	s.WriteString("  ")
	s.WriteString(labelStyle.Render("Gain:"))
	s.WriteString(" ")
	s.WriteString(valueStyle.Render(fmt.Sprintf("%.0f%%", m.ctl.Gain()*100)))
	if u := m.ctl.Underruns(); u > 0 {
		s.WriteString("  ")
		s.WriteString(labelStyle.Render("Underruns:"))
		s.WriteString(" ")
		s.WriteString(valueStyle.Render(fmt.Sprint(u)))
	}
	s.WriteString("\n")

	loop := m.ctl.Loop()
	s.WriteString(headerStyle.Render("Loop "))
	s.WriteString(" │ ")
	s.WriteString(valueStyle.Render(loop.Mode.String()))
	if loop.Mode != stream.PlayOnce {
		s.WriteString("  ")
		s.WriteString(labelStyle.Render(fmt.Sprintf("%s → %s", cli.FormatClock(loop.Start), cli.FormatClock(loop.End))))
	}
}

func (m *Model) frame(content string) string {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(cli.WaveBlue).
		Padding(1, 2).
		Render(content)
}
