package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/txlens/internal/graph"
	"github.com/ppiankov/txlens/internal/model"
)

// RenderJSON writes the report as indented JSON
func RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the human-readable report
func RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, []byte(FormatMarkdown(report)))
}

// FormatMarkdown formats the report as Markdown
func FormatMarkdown(report *model.Report) string {
	var b strings.Builder

	b.WriteString("# Transaction privacy report\n\n")
	fmt.Fprintf(&b, "- **Transaction:** `%s`\n", report.TxID)
	fmt.Fprintf(&b, "- **Provider:** %s\n", report.Provider)
	fmt.Fprintf(&b, "- **Analyzed:** %s\n", report.FetchedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- **Status:** %s\n", confirmation(report.Confirmed))
	if report.Fee > 0 {
		fmt.Fprintf(&b, "- **Fee:** %d sat\n", report.Fee)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Score: %d (%s)\n\n", report.Score.Value, report.Score.Judgment)
	if len(report.Score.Entries) == 0 {
		b.WriteString("No heuristic fired.\n\n")
	} else {
		b.WriteString("| Heuristic | Impact | Why |\n")
		b.WriteString("|---|---:|---|\n")
		for _, e := range report.Score.Entries {
			fmt.Fprintf(&b, "| %s | %+d | %s |\n", e.Label, e.Delta, e.Rationale)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Flow\n\n")
	b.WriteString("| Side | Label | Address | Amount (BTC) |\n")
	b.WriteString("|---|---|---|---:|\n")
	for i, addr := range report.Flow.Inputs {
		amount := "-"
		if i < len(report.Flow.InputValues) && report.Flow.InputValues[i] > 0 {
			amount = formatBTC(report.Flow.InputValues[i])
		}
		fmt.Fprintf(&b, "| in | %s | `%s` | %s |\n", report.Labels[addr], addr, amount)
	}
	for i, addr := range report.Flow.Outputs {
		label := report.Labels[addr]
		if report.Flow.HasInput(addr) {
			label = graph.ChangeLabel
		}
		amount := "-"
		if i < len(report.Flow.OutputValues) {
			amount = formatBTC(report.Flow.OutputValues[i])
		}
		fmt.Fprintf(&b, "| out | %s | `%s` | %s |\n", label, addr, amount)
	}
	b.WriteString("\n")

	if len(report.Graphs) > 0 {
		b.WriteString("## Graphs\n\n")
		for _, g := range report.Graphs {
			fmt.Fprintf(&b, "### %s\n\n![%s](%s)\n\n", g.Label, g.Label, g.Path)
		}
	}

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	b.WriteString("*Scores come from fixed heuristics over public data. They indicate exposure, not identity.*\n")
	return b.String()
}

// RenderSummary prints a short summary for the terminal
func RenderSummary(w io.Writer, report *model.Report) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Transaction:   %s\n", report.TxID)
	fmt.Fprintf(w, "Privacy score: %d (%s)\n", report.Score.Value, report.Score.Judgment)
	fmt.Fprintf(w, "Flow:          %d inputs -> %d outputs\n", len(report.Flow.Inputs), len(report.Flow.Outputs))

	if len(report.Score.Entries) > 0 {
		fmt.Fprintf(w, "\nBreakdown:\n")
		for _, e := range report.Score.Entries {
			fmt.Fprintf(w, "  %+4d  %s\n", e.Delta, e.Label)
		}
	}

	if len(report.Graphs) > 0 {
		fmt.Fprintf(w, "\nGraphs:\n")
		for _, g := range report.Graphs {
			fmt.Fprintf(w, "  %s: %s\n", g.Label, g.Path)
		}
	}

	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "\nWarning: %s\n", warning)
	}
	fmt.Fprintf(w, "\n")
}

func confirmation(confirmed bool) string {
	if confirmed {
		return "confirmed"
	}
	return "unconfirmed"
}

func formatBTC(sats int64) string {
	return fmt.Sprintf("%.8f", model.SatoshisToBTC(sats))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
