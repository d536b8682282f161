package tui

import (
	"fmt"
	"strings"

	"github.com/mabhi256/jarc/internal/training"
	"github.com/mabhi256/jarc/utils"
)

func (m *Model) renderTraining(width, height int) string {
	var classLines, methodLines []string

	for _, rec := range m.records {
		switch r := rec.(type) {
		case *training.KlassRecord:
			status := MutedStyle.Render("touched")
			if r.ClinitDone {
				status = GoodStyle.Render("initialized")
			} else if r.ClinitSeq > 0 {
				status = WarningStyle.Render("initializing")
			}
			detail := fmt.Sprintf("seq %d, %d field inits, %d init deps",
				r.ClinitSeq, len(r.FieldInits), len(r.InitDeps))
			classLines = append(classLines, fmt.Sprintf("    %s  %s  %s",
				PadRight(TruncateString(r.ClassName().String(), max(20, width-48)), max(20, width-48)),
				status, MutedStyle.Render(detail)))

		case *training.MethodRecord:
			key := rec.Key()
			name := key.ClassName.String() + "." + key.MethodName.String()
			detail := fmt.Sprintf("level %d", r.Level)
			if r.OnlyInlined() {
				detail += ", inlined only"
			}
			if cr := r.Compiles; cr != nil && cr.Ended.After(cr.Started) {
				detail += ", last compile " + utils.FormatDuration(cr.Ended.Sub(cr.Started))
			}
			methodLines = append(methodLines, fmt.Sprintf("    %s  %s",
				PadRight(TruncateString(name, max(20, width-24)), max(20, width-24)),
				MutedStyle.Render(detail)))
		}
	}

	var lines []string
	lines = append(lines, TitleStyle.Render(fmt.Sprintf("Training records: %d", len(m.records))))
	lines = append(lines, "")
	if len(m.records) == 0 {
		lines = append(lines, MutedStyle.Render("  no training data archived"))
		return strings.Join(lines, "\n")
	}
	lines = append(lines, InfoStyle.Render(fmt.Sprintf("  classes — %d", len(classLines))))
	lines = append(lines, classLines...)
	lines = append(lines, "")
	lines = append(lines, InfoStyle.Render(fmt.Sprintf("  methods — %d", len(methodLines))))
	lines = append(lines, methodLines...)

	return scrollWindow(lines, m.boundScroll(TrainingTab, len(lines), height), height)
}
