package cli

import "github.com/charmbracelet/lipgloss"

// Wave colour palette
// Shared theme colours for consistent branding across CLI and TUI
var (
	// Core wave colours (deep to bright)
	WaveFoam   = lipgloss.Color("#E0FFFF") // Pale cyan
	WaveCyan   = lipgloss.Color("#00CED1") // Dark turquoise
	WaveTeal   = lipgloss.Color("#20B2AA") // Light sea green
	WaveBlue   = lipgloss.Color("#1E90FF") // Dodger blue
	WaveIndigo = lipgloss.Color("#4B0082") // Deep indigo

	// Accent colours
	SlateGray = lipgloss.Color("#708090") // Subtle text
)
