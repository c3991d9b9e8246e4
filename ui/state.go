package ui

import (
	"fmt"
	"image/color"
	"slices"
	"strings"

	"github.com/calvinmclean/sortcell"
)

// panelState is what the panel shows for one status poll
type panelState struct {
	status sortcell.Status
	err    error
}

var (
	colourOK      = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	colourStopped = color.RGBA{R: 139, G: 0, B: 0, A: 255}
	colourUnknown = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

func (s panelState) title() string {
	switch {
	case s.err != nil:
		return "Unreachable"
	case s.status.Stopped:
		return "STOPPED"
	case s.status.Running:
		return "Running: " + humanize(s.status.State)
	default:
		return humanize(s.status.State)
	}
}

func (s panelState) colour() color.Color {
	switch {
	case s.err != nil:
		return colourUnknown
	case s.status.Stopped:
		return colourStopped
	default:
		return colourOK
	}
}

func (s panelState) stopLabel() string {
	if s.status.Stopped {
		return "Clear Stop"
	}
	return "Emergency Stop"
}

func (s panelState) canStart() bool {
	return s.err == nil && !s.status.Stopped && !s.status.Running
}

func (s panelState) details() string {
	if s.err != nil {
		return s.err.Error()
	}

	lines := []string{
		fmt.Sprintf("Position: %s", s.status.Position),
		fmt.Sprintf("Cycles: %d", s.status.Cycles),
	}

	names := make([]string, 0, len(s.status.Nodes))
	for name := range s.status.Nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, s.status.Nodes[name]))
	}
	return strings.Join(lines, "\n")
}

// humanize turns awaiting_placement into Awaiting Placement
func humanize(state string) string {
	words := strings.Split(state, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
