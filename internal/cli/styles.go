package cli

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor   = WaveBlue
	accentColor    = WaveCyan
	successColor   = lipgloss.Color("#00AA00") // Green
	errorColor     = lipgloss.Color("#D7263D") // Red
	mutedColor     = lipgloss.Color("#888888") // Gray
	highlightColor = lipgloss.Color("#FFFF00") // Yellow
	textColor      = lipgloss.Color("#FFFFFF") // White
)

// Styles
var (
	// Title style
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Subtitle style - muted gray
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// Section header style
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginTop(1)

	// Success message style
	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// Highlight style for important values
	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	// Box style for framed content
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

// Title is the application name as shown in banners
const Title = "audiofeed ♪"

// Tagline describes the application in one line
const Tagline = "Stream MP3, FLAC, WAV and Opus files to your speakers with sample-accurate seeking and looping."

// PrintBanner prints the application banner
func PrintBanner() {
	fmt.Println(TitleStyle.Render(Title))
	fmt.Println(SubtitleStyle.Render(Tagline))
	fmt.Println()
}

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render(Title))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("%s %s\n", HighlightStyle.Render("Warning:"), message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

// PrintInfo prints an informational message
func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Println(HeaderStyle.Render(title))
}

// FormatClock formats seconds as m:ss, or h:mm:ss for long tracks
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatLevel formats a linear level in dBFS
func FormatLevel(linear float64) string {
	if linear <= 0 {
		return "-inf dB"
	}
	return fmt.Sprintf("%.1f dB", 20*math.Log10(linear))
}

// PrintBox prints content in a styled box
func PrintBox(content string) {
	fmt.Println(BoxStyle.Render(content))
}

// Field is one labelled line of a summary box
type Field struct {
	Key   string
	Value string
}

// PrintSummary prints a titled list of fields in a box, keys aligned
func PrintSummary(title string, fields []Field) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Key))
	}

	var b strings.Builder
	b.WriteString(SuccessStyle.Render(title))
	b.WriteString("\n")
	for _, f := range fields {
		b.WriteString("\n")
		b.WriteString(KeyStyle.Render(fmt.Sprintf("%-*s", width+1, f.Key+":")))
		b.WriteString(" ")
		b.WriteString(ValueStyle.Render(f.Value))
	}

	PrintBox(b.String())
}
