// Package render turns comparison envelopes into shareable documents.
package render

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed report.css
var reportCSS string

var (
	reRejectedHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Comparative Analysis Not Possible\s*</h2>`)
	reSummaryHeading  = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Executive Summary|Appendix)\s*</h2>`)
)

// HTML renders the envelope's markdown report as a standalone HTML page.
func HTML(env efficacylens.ResponseEnvelope) (string, error) {
	markdown := env.ReportMarkdown
	if strings.TrimSpace(markdown) == "" {
		rebuilt, err := efficacylens.RebuildResponseFromEnvelope(env)
		if err != nil {
			return "", err
		}
		markdown = rebuilt.ReportMarkdown
	}

	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>Clinical Trial Comparison</title>" +
		"<style>" + reportCSS + "</style></head><body>" +
		"<div class='pdf-wrap'><section class='report-viewer'><div class='report-header'>" +
		"<div class='report-meta'>" + metaHTML(env) + "</div>" +
		"<div class='report-badges'>" + badgeHTML(env) + "</div>" +
		"</div><div class='report-html'>" + applyPrintLayoutHooks(content.String()) + "</div></section></div>" +
		"</body></html>", nil
}

func applyPrintLayoutHooks(contentHTML string) string {
	out := reRejectedHeading.ReplaceAllString(contentHTML, `<h2$1 data-rejected="true">Comparative Analysis Not Possible</h2>`)
	return reSummaryHeading.ReplaceAllString(out, `<h2$1 data-page-break-before="true">$2</h2>`)
}

func metaHTML(env efficacylens.ResponseEnvelope) string {
	var out strings.Builder
	if env.RunID != "" {
		out.WriteString("<div><strong>Run:</strong> " + html.EscapeString(env.RunID) + "</div>")
	}
	if env.Publication1 != "" || env.Publication2 != "" {
		out.WriteString("<div><strong>Publications:</strong> " + html.EscapeString(env.Publication1) +
			" vs " + html.EscapeString(env.Publication2) + "</div>")
	}
	if ts := env.PipelineMetadata.CompletedAt; !ts.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(ts.Format("January 2, 2006 at 3:04 PM MST")) + "</div>")
	}
	return out.String()
}

func badgeHTML(env efficacylens.ResponseEnvelope) string {
	var out strings.Builder
	if env.Status != "" {
		out.WriteString("<span class='report-badge'>" + html.EscapeString(string(env.Status)) + "</span>")
	}
	if v := env.Validation; v != nil && v.Decision != "" {
		out.WriteString("<span class='report-badge'>Disease match: " + html.EscapeString(string(v.Decision)) + "</span>")
	}
	if env.PipelineMetadata.InputTruncated {
		out.WriteString("<span class='report-badge'>Input truncated</span>")
	}
	return out.String()
}
