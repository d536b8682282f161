package tui

import (
	"fmt"
	"strings"

	"github.com/mabhi256/jarc/internal/meta"
)

func (m *Model) filteredClasses() []*meta.Class {
	if m.classFilter == filterAll {
		return m.classes
	}
	var out []*meta.Class
	for _, c := range m.classes {
		if m.classFilter.matches(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m *Model) renderClasses(width, height int) string {
	classes := m.filteredClasses()

	var lines []string
	lines = append(lines, TitleStyle.Render(
		fmt.Sprintf("Classes: %d  filter: %s  (←/→ to change)", len(classes), m.classFilter)))
	lines = append(lines, "")

	if len(classes) == 0 {
		lines = append(lines, MutedStyle.Render("  no classes under this loader"))
		return strings.Join(lines, "\n")
	}

	// Keep the selection visible.
	visible := height - len(lines)
	if visible < 1 {
		visible = 1
	}
	top := m.scrollPositions[ClassesTab]
	if m.selectedClass < top {
		top = m.selectedClass
	}
	if m.selectedClass >= top+visible {
		top = m.selectedClass - visible + 1
	}
	m.scrollPositions[ClassesTab] = top

	nameWidth := max(20, width-40)
	for i := top; i < len(classes) && i < top+visible; i++ {
		c := classes[i]
		line := fmt.Sprintf("  %s  %-8s %-12s %s",
			PadRight(TruncateString(c.Name.String(), nameWidth), nameWidth),
			c.Loader, c.Module, classFlags(c))
		if i == m.selectedClass {
			line = SelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func classFlags(c *meta.Class) string {
	var flags []string
	if c.Linked {
		flags = append(flags, "linked")
	}
	if c.Initialized {
		flags = append(flags, "initialized")
	}
	if c.Hidden {
		flags = append(flags, "hidden")
	}
	if len(flags) == 0 {
		return MutedStyle.Render("loaded")
	}
	return strings.Join(flags, " ")
}
