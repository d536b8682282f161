package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/jarc/utils"
)

func (m *Model) renderRegions(width, height int) string {
	h := m.img.Header()

	kind := "dynamic archive"
	if m.img.Static() {
		kind = "base archive"
	}

	var lines []string
	lines = append(lines, TitleStyle.Render(fmt.Sprintf("%s  (%s)", m.img.Path(), kind)))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  %s %#x .. %#x",
		MutedStyle.Render("requested"), h.RequestedBase, h.RequestedTop))
	lines = append(lines, fmt.Sprintf("  %s %#x", MutedStyle.Render("roots    "), h.RootsAddr))
	if !m.img.Static() {
		lines = append(lines, fmt.Sprintf("  %s %#08x", MutedStyle.Render("base crc "), h.BaseHeaderCRC))
	}
	lines = append(lines, "")

	for i := range h.Regions {
		r := &h.Regions[i]
		lines = append(lines, fmt.Sprintf("  %-3s %10s  at %#x  file offset %d  crc %#08x",
			r.Kind, utils.MemorySize(r.Size), r.RequestedBase, r.FileOffset, r.CRC))
	}
	lines = append(lines, "")

	chartHeight := height - len(lines) - 1
	if chartHeight >= 4 {
		lines = append(lines, m.renderRegionChart(min(width-4, 48), chartHeight))
	}

	return strings.Join(lines, "\n")
}

// renderRegionChart draws region sizes side by side so a bloated
// region stands out at a glance.
func (m *Model) renderRegionChart(width, height int) string {
	h := m.img.Header()

	bc := barchart.New(width, height)
	styles := []lipgloss.Style{InfoStyle, GoodStyle}
	for i := range h.Regions {
		r := &h.Regions[i]
		bc.Push(barchart.BarData{
			Label: r.Kind.String(),
			Values: []barchart.BarValue{
				{Name: r.Kind.String(), Value: float64(r.Size), Style: styles[i%len(styles)]},
			},
		})
	}
	bc.Draw()
	return bc.View()
}
