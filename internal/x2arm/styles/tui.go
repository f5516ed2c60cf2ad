// Package styles holds the colors shared by the info renderer and the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

var (
	Title    = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Charple.Hex())).MarginLeft(2)
	Selected = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex()))
	Address  = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Squid.Hex()))
	Symbol   = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	Failed   = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Coral.Hex()))
	Spinner  = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex()))
	Menu     = lipgloss.NewStyle().Background(lipgloss.Color(charmtone.Pepper.Hex())).Foreground(lipgloss.Color(charmtone.Smoke.Hex())).Padding(0, 1)
)
