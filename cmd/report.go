package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/tabpilot/internal/engine"
)

var (
	styleOK    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleFail  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleLabel = lipgloss.NewStyle().Faint(true)
)

// renderResult formats a run result for the terminal.
func renderResult(res *engine.Result) string {
	var b strings.Builder
	if res.OK {
		b.WriteString(styleOK.Render("✓ " + res.ScriptID))
	} else {
		b.WriteString(styleFail.Render("✗ " + res.ScriptID))
	}
	fmt.Fprintf(&b, " %s\n", styleLabel.Render(fmt.Sprintf("(%d ms)", res.DurationMs)))

	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "  %s %s\n", styleLabel.Render(fmt.Sprintf("%-10s", label)), value)
	}
	line("run", res.RunID)
	line("tab", res.TabID)
	line("target", truncateStr(res.TargetURL, 80))
	if res.Detached {
		line("session", "detached")
	}

	if f := res.Failure; f != nil {
		where := "before first step"
		if f.StepIndex >= 0 {
			where = fmt.Sprintf("step %s (%s)", f.StepPath, f.StepType)
		}
		line("failed at", where)
		line("error", styleFail.Render(f.Kind)+" "+f.Message)
		line("screenshot", res.Screenshot)
	}

	for _, w := range res.Warnings {
		msg := w.Message
		if w.Step != "" {
			msg = "step " + w.Step + ": " + msg
		}
		fmt.Fprintf(&b, "  %s %s\n", styleWarn.Render("! "+w.Kind), msg)
	}

	if len(res.Outputs) > 0 {
		keys := make([]string, 0, len(res.Outputs))
		for k := range res.Outputs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString(styleLabel.Render("  outputs") + "\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s = %s\n", k, truncateStr(res.Outputs[k], 100))
		}
	}
	return b.String()
}

// truncateStr cuts s to max display columns.
func truncateStr(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}
