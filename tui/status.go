package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"storyloom/engine/state"
)

// sceneDisplayName derives a human-readable name from a scene ID.
// "tide_pools" -> "Tide Pools", "lighthouse_top" -> "Lighthouse Top".
func sceneDisplayName(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// renderStatusBar produces a full-width inverted status line showing
// the current scene, turn and game time, and any active effects.
func (m Model) renderStatusBar() string {
	s := m.engine.State

	left := " " + sceneDisplayName(s.CurrentScene)
	right := fmt.Sprintf("Turn %d · Time %d ", s.Turn, state.GameTime(s))

	// Show effect names if they fit, otherwise just a count.
	if list := m.engine.Effects.List(); len(list) > 0 {
		names := make([]string, 0, len(list))
		for _, ae := range list {
			names = append(names, ae.Name)
		}
		candidate := fmt.Sprintf("%s · %s", strings.Join(names, ","), right)
		if lipgloss.Width(left)+lipgloss.Width(candidate)+2 < m.width {
			right = candidate
		} else {
			right = fmt.Sprintf("%d effects · %s", len(list), right)
		}
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}
