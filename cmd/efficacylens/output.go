package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/joelkehle/efficacylens/internal/render"
	"github.com/joelkehle/efficacylens/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			Foreground(lipgloss.Color("36"))

	subheaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("243"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true)
			}
			return cellStyle
		})
}

// printEnvelope writes a terminal rendering of a comparison outcome.
func printEnvelope(w io.Writer, env efficacylens.ResponseEnvelope) {
	fmt.Fprintln(w, headerStyle.Render("Clinical Trial Comparison Analysis"))
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Run:"), env.RunID)
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Publication 1:"), env.Publication1)
	fmt.Fprintf(w, "%s %s\n\n", dimStyle.Render("Publication 2:"), env.Publication2)

	switch env.Status {
	case efficacylens.StatusRejected:
		printRejection(w, env.Rejection)
	case efficacylens.StatusCompleted:
		printComparison(w, env)
	default:
		fmt.Fprintln(w, errorStyle.Render("Analysis failed"))
		if env.Error != "" {
			fmt.Fprintln(w, env.Error)
		}
	}
}

func printRejection(w io.Writer, r *efficacylens.Rejection) {
	fmt.Fprintln(w, errorStyle.Render("Comparative analysis not possible"))
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Publication 1 disease: %s\n", r.Publication1Disease)
	fmt.Fprintf(w, "Publication 2 disease: %s\n", r.Publication2Disease)
	fmt.Fprintf(w, "Decision: %s\n", r.Decision)
	fmt.Fprintf(w, "Reason: %s\n\n", r.Reason)
	fmt.Fprintln(w, subheaderStyle.Render("What to do next"))
	for _, g := range r.Guidance {
		fmt.Fprintf(w, "  - %s\n", g)
	}
}

func printComparison(w io.Writer, env efficacylens.ResponseEnvelope) {
	if v := env.Validation; v != nil {
		fmt.Fprintf(w, "%s %s / %s (%s)\n\n", successStyle.Render("Compatible:"),
			v.Profile1.PrimaryDisease, v.Profile2.PrimaryDisease, v.Decision)
	}
	if env.PipelineMetadata.InputTruncated {
		fmt.Fprintln(w, warningStyle.Render("Note: publication text was truncated before analysis."))
	}
	if env.Payload == nil {
		return
	}
	for _, t := range efficacylens.BuildTables(env.Payload.ComparisonTable) {
		fmt.Fprintln(w, subheaderStyle.Render(t.Title))
		tbl := newTable(t.Headers...)
		for _, r := range t.Rows {
			tbl.Row(r.Label, r.Values[0], r.Values[1])
		}
		fmt.Fprintln(w, tbl.Render())
		fmt.Fprintln(w)
	}
	summary := env.Payload.ExecutiveSummary
	fmt.Fprintln(w, subheaderStyle.Render("Investment Opportunity"))
	fmt.Fprintln(w, orNA(summary.InvestmentOpportunity))
	fmt.Fprintln(w)
	fmt.Fprintln(w, subheaderStyle.Render("Risk Assessment and Strategy"))
	fmt.Fprintln(w, orNA(summary.RiskAssessmentAndStrategy))
	for _, warn := range env.PipelineMetadata.SchemaWarnings {
		fmt.Fprintln(w, warningStyle.Render("warning: "+warn))
	}
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No runs recorded."))
		return
	}
	tbl := newTable("Run", "When", "Status", "Publication 1", "Publication 2", "Diseases")
	for _, r := range runs {
		diseases := strings.Trim(r.Disease1+" / "+r.Disease2, " /")
		tbl.Row(r.RunID, r.CreatedAt.Local().Format("2006-01-02 15:04"), string(r.Status), r.Publication1, r.Publication2, diseases)
	}
	fmt.Fprintln(w, tbl.Render())
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Analysis not available"
	}
	return s
}

func writeEnvelopeJSON(w io.Writer, env efficacylens.ResponseEnvelope) error {
	return writeJSONValue(w, env)
}

func writeJSONValue(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func storeFilter(status string, limit int) store.ListFilter {
	return store.ListFilter{Status: efficacylens.Status(strings.TrimSpace(status)), Limit: limit}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// writeMarkdown prints to w when path is empty.
func writeMarkdown(w io.Writer, path, markdown string) error {
	if path == "" {
		_, err := io.WriteString(w, markdown)
		return err
	}
	return writeFile(path, []byte(markdown))
}

func writeWorkbook(path string, env efficacylens.ResponseEnvelope) error {
	b, err := render.Workbook(env)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	return writeFile(path, b)
}
