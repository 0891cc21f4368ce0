package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/cgmlsim/engine/snapshot"
)

// maxCardsShown caps how many card names a board line lists before
// falling back to a count.
const maxCardsShown = 12

// renderStatusBar produces a full-width inverted status line showing the
// game, flow state, phase and seat to act.
func (m Model) renderStatusBar() string {
	gs := m.sim.State()

	left := fmt.Sprintf(" %s | %s", gs.Def.Meta.Name, gs.CurrentState)
	if gs.CurrentPhase != "" {
		left += " / " + gs.CurrentPhase
	}
	if p := gs.Player(gs.CurrentPlayer); p != nil {
		left += " | " + p.Name
	}
	right := fmt.Sprintf("It:%d ", m.sim.Iterations())
	if m.auto {
		right = "AUTO | " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}

// boardLines lists the zones the viewer can see: shared zones first, then
// the viewer's own seat.
func (m Model) boardLines() []string {
	snap := snapshot.Take(m.sim.State(), snapshot.Options{Viewer: m.viewer()})

	var lines []string
	if len(snap.SharedZones) > 0 {
		lines = append(lines, "Table: "+joinZones(snap.SharedZones))
	}
	for _, p := range snap.Players {
		if m.viewer() != snapshot.Omniscient && p.ID != m.viewer() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", p.Name, joinZones(p.Zones)))
	}
	return lines
}

func joinZones(zones []snapshot.Zone) string {
	parts := make([]string, 0, len(zones))
	for _, z := range zones {
		parts = append(parts, zoneSummary(z))
	}
	return strings.Join(parts, "  ")
}

func zoneSummary(z snapshot.Zone) string {
	if z.Hidden || len(z.Cards) > maxCardsShown {
		return fmt.Sprintf("%s(%d)", z.Name, z.Count)
	}
	if len(z.Cards) == 0 {
		return z.Name + "(-)"
	}
	return fmt.Sprintf("%s[%s]", z.Name, strings.Join(z.Cards, " "))
}

// renderBoard renders the board panel, truncated to the terminal width.
func (m Model) renderBoard() string {
	lines := m.boardLines()
	for i, l := range lines {
		if m.width > 3 && lipgloss.Width(l) > m.width {
			l = l[:m.width-3] + "..."
		}
		lines[i] = styleBoard.Render(l)
	}
	return strings.Join(lines, "\n")
}

// renderChoices lists the legal actions with the cursor highlighted.
func (m Model) renderChoices() string {
	switch {
	case m.sim.Done():
		return styleSystem.Render("[Game over. Press q to quit.]")
	case m.err != nil:
		return styleError.Render("[Game halted. Press q to quit.]")
	case len(m.legal) == 0:
		return ""
	}

	gs := m.sim.State()
	name := fmt.Sprintf("Player %d", gs.CurrentPlayer+1)
	if p := gs.Player(gs.CurrentPlayer); p != nil {
		name = p.Name
	}
	lines := []string{styleHeading.Render(fmt.Sprintf("%s to act (%s):", name, gs.CurrentPhase))}
	for i, la := range m.legal {
		text := fmt.Sprintf("  %d) %s", i+1, la.RuleID)
		if i == m.cursor {
			lines = append(lines, styleSelected.Render("> "+text[2:]))
			continue
		}
		lines = append(lines, styleChoice.Render(text))
	}
	return strings.Join(lines, "\n")
}
