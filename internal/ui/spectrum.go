package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var blocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Wave gradient colours from low to high intensity
var waveColors = []lipgloss.Color{
	lipgloss.Color("#191970"), // Midnight blue
	lipgloss.Color("#27408B"), // Royal blue
	lipgloss.Color("#1E90FF"), // Dodger blue
	lipgloss.Color("#00BFFF"), // Deep sky blue
	lipgloss.Color("#20B2AA"), // Light sea green
	lipgloss.Color("#00CED1"), // Dark turquoise
	lipgloss.Color("#7FFFD4"), // Aquamarine
	lipgloss.Color("#E0FFFF"), // Light cyan
}

// renderSpectrum draws bar heights two rows tall, scaled to the tallest bar
func renderSpectrum(barHeights []float64, width int) string {
	if len(barHeights) == 0 || width <= 0 {
		return ""
	}

	// Sample bars to fit width
	stride := max(len(barHeights)/width, 1)

	maxHeight := 0.0
	for _, h := range barHeights {
		maxHeight = max(maxHeight, h)
	}
	if maxHeight == 0 {
		maxHeight = 1.0
	}

	display := make([]float64, 0, width)
	for i := 0; i < len(barHeights) && len(display) < width; i += stride {
		display = append(display, barHeights[i]/maxHeight)
	}

	var result strings.Builder

	// Top row shows the portion above half height
	for _, h := range display {
		if h <= 0.5 {
			result.WriteString(" ")
			continue
		}
		result.WriteString(colorBlock(h, blockIndex((h-0.5)*2)))
	}
	result.WriteString("\n")

	for _, h := range display {
		idx := len(blocks) - 1
		if h < 0.5 {
			idx = blockIndex(h * 2)
		}
		result.WriteString(colorBlock(h, idx))
	}

	return result.String()
}

func blockIndex(v float64) int {
	return min(max(int(v*float64(len(blocks)-1)), 0), len(blocks)-1)
}

func colorBlock(h float64, idx int) string {
	c := min(max(int(h*float64(len(waveColors)-1)), 0), len(waveColors)-1)
	return lipgloss.NewStyle().Foreground(waveColors[c]).Render(string(blocks[idx]))
}
