package tui

import (
	"fmt"
	"strings"

	"github.com/mabhi256/jarc/internal/meta"
)

func (m *Model) renderPreload(width, height int) string {
	ps := m.img.PreloadSet()

	sections := []struct {
		name    string
		classes []*meta.Class
	}{
		{"boot (java.base)", ps.Boot},
		{"boot", ps.Boot2},
		{"platform", ps.Platform},
		{"platform initiated", ps.PlatformInitiated},
		{"app", ps.App},
		{"app initiated", ps.AppInitiated},
	}

	var lines []string
	lines = append(lines, TitleStyle.Render("Preload sequences (replay order)"))
	lines = append(lines, "")
	for _, s := range sections {
		if len(s.classes) == 0 {
			continue
		}
		lines = append(lines, InfoStyle.Render(fmt.Sprintf("  %s — %d", s.name, len(s.classes))))
		for _, c := range s.classes {
			lines = append(lines, "    "+TruncateString(c.Name.String(), width-6))
		}
		lines = append(lines, "")
	}
	if len(lines) == 2 {
		lines = append(lines, MutedStyle.Render("  empty preload set"))
	}

	return scrollWindow(lines, m.boundScroll(PreloadTab, len(lines), height), height)
}

// boundScroll clamps the stored scroll offset so the last page stays full.
func (m *Model) boundScroll(tab TabType, total, height int) int {
	maxTop := max(0, total-height)
	if m.scrollPositions[tab] > maxTop {
		m.scrollPositions[tab] = maxTop
	}
	return m.scrollPositions[tab]
}

func scrollWindow(lines []string, top, height int) string {
	if top >= len(lines) {
		top = max(0, len(lines)-1)
	}
	end := min(len(lines), top+height)
	return strings.Join(lines[top:end], "\n")
}
