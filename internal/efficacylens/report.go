package efficacylens

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const analysisNotAvailable = "Analysis not available"

func BuildResponse(out Outcome) ResponseEnvelope {
	env := ResponseEnvelope{
		RunID:            out.RunID,
		Status:           out.Status,
		Publication1:     out.Request.Publication1Name,
		Publication2:     out.Request.Publication2Name,
		Validation:       out.Validation,
		Rejection:        out.Rejection,
		Error:            out.Error,
		PipelineMetadata: out.Metadata,
		Disclaimer:       Disclaimer,
	}
	if out.Result != nil {
		payload := out.Result.RawPayload
		env.Payload = &payload
	}
	env.ReportMarkdown = BuildMarkdown(out)
	return env
}

// BuildMarkdown renders the human-readable report for any outcome status.
func BuildMarkdown(out Outcome) string {
	var b strings.Builder
	switch out.Status {
	case StatusRejected:
		writeRejectionReport(&b, out)
	case StatusCompleted:
		writeComparisonReport(&b, out)
	default:
		writeFailureReport(&b, out)
	}
	fmt.Fprintf(&b, "\n---\n\n*%s*\n", Disclaimer)
	return b.String()
}

func writeHeader(b *strings.Builder, out Outcome) {
	fmt.Fprintf(b, "# Clinical Trial Comparison Analysis\n\n")
	fmt.Fprintf(b, "- Run ID: %s\n", out.RunID)
	fmt.Fprintf(b, "- Date: %s\n", reportTime(out.Metadata).Format(time.RFC3339))
	if out.Metadata.Model != "" {
		fmt.Fprintf(b, "- Model: %s\n", out.Metadata.Model)
	}
	b.WriteString("\n## Publications Analyzed\n\n")
	fmt.Fprintf(b, "- %s: %s\n", Publication1, sanitizeLine(out.Request.Publication1Name))
	fmt.Fprintf(b, "- %s: %s\n\n", Publication2, sanitizeLine(out.Request.Publication2Name))
}

func writeComparisonReport(b *strings.Builder, out Outcome) {
	writeHeader(b, out)
	if v := out.Validation; v != nil {
		fmt.Fprintf(b, "Disease compatibility: **%s**. %s\n\n", v.Decision, sanitizeLine(v.Reason))
	}
	if out.Metadata.InputTruncated {
		fmt.Fprintf(b, "> Note: at least one publication exceeded %d characters and was truncated before analysis.\n\n", MaxComparisonChars)
	}

	b.WriteString("## Comparison Table\n\n")
	if out.Result != nil {
		for _, t := range out.Result.Tables {
			writeMarkdownTable(b, t, 3)
			b.WriteString("\n")
		}
	}

	b.WriteString("## Executive Summary\n\n")
	var invest, risk string
	if out.Result != nil {
		invest, risk = out.Result.InvestmentOpportunity, out.Result.RiskAssessmentAndStrategy
	}
	fmt.Fprintf(b, "### Investment Opportunity\n\n%s\n\n", orDefault(invest, analysisNotAvailable))
	fmt.Fprintf(b, "### Risk Assessment and Strategy\n\n%s\n", orDefault(risk, analysisNotAvailable))

	if len(out.Metadata.SchemaWarnings) > 0 || len(out.Metadata.DegradedProfiles) > 0 {
		b.WriteString("\n## Data Quality Notes\n\n")
		for _, p := range out.Metadata.DegradedProfiles {
			fmt.Fprintf(b, "- Disease profile for %s could not be extracted; the service-reported disease was used.\n", p)
		}
		for _, w := range out.Metadata.SchemaWarnings {
			fmt.Fprintf(b, "- %s\n", w)
		}
	}

	b.WriteString("\n## Appendix\n\n")
	fmt.Fprintf(b, "### Pipeline Metadata (JSON)\n\n```json\n%s\n```\n", prettyJSON(out.Metadata))
}

func writeRejectionReport(b *strings.Builder, out Outcome) {
	writeHeader(b, out)
	b.WriteString("## Comparative Analysis Not Possible\n\n")
	rej := out.Rejection
	if rej == nil {
		rej = &Rejection{}
	}
	fmt.Fprintf(b, "- %s disease: %s\n", Publication1, orDefault(rej.Publication1Disease, unknownValue))
	fmt.Fprintf(b, "- %s disease: %s\n", Publication2, orDefault(rej.Publication2Disease, unknownValue))
	fmt.Fprintf(b, "- Decision: %s\n\n", rej.Decision)
	fmt.Fprintf(b, "**Reason:** %s\n\n", sanitizeLine(rej.Reason))
	b.WriteString("### Why This Matters\n\n")
	b.WriteString("Cross-disease comparisons produce scientifically invalid results. Efficacy and safety endpoints, ")
	b.WriteString("patient populations and standards of care differ between diseases, so side-by-side figures would be misleading.\n\n")
	if len(rej.Guidance) > 0 {
		b.WriteString("### What To Do Next\n\n")
		for _, g := range rej.Guidance {
			fmt.Fprintf(b, "- %s\n", g)
		}
	}
}

func writeFailureReport(b *strings.Builder, out Outcome) {
	writeHeader(b, out)
	b.WriteString("## Analysis Failed\n\n")
	fmt.Fprintf(b, "The comparison stopped during the **%s** state.\n\n", failedState(out.Metadata))
	fmt.Fprintf(b, "```\n%s\n```\n", orDefault(out.Error, "unknown error"))
}

func failedState(md PipelineMetadata) State {
	for i := len(md.States) - 1; i >= 0; i-- {
		if md.States[i] != StateErrored {
			return md.States[i]
		}
	}
	return StateErrored
}

func reportTime(md PipelineMetadata) time.Time {
	if !md.CompletedAt.IsZero() {
		return md.CompletedAt
	}
	return time.Now()
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func sanitizeLine(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if s == "" {
		return "-"
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
