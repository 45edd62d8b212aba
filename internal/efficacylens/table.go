package efficacylens

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const nullCell = "N/A"

type Row struct {
	Field  string    `json:"field"`
	Label  string    `json:"label"`
	Values [2]string `json:"values"`
}

type Table struct {
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Headers  []string `json:"headers"`
	Rows     []Row    `json:"rows"`
}

func (c ComparisonTable) Category(key string) CategoryTable {
	switch key {
	case "study_characteristics":
		return c.StudyCharacteristics
	case "efficacy_results":
		return c.EfficacyResults
	case "safety_profile":
		return c.SafetyProfile
	}
	return nil
}

func NewComparisonResult(payload ComparisonPayload) ComparisonResult {
	return ComparisonResult{
		FormattedTable:            FormatTable(payload.ComparisonTable),
		InvestmentOpportunity:     payload.ExecutiveSummary.InvestmentOpportunity,
		RiskAssessmentAndStrategy: payload.ExecutiveSummary.RiskAssessmentAndStrategy,
		Tables:                    BuildTables(payload.ComparisonTable),
		RawPayload:                payload,
	}
}

// BuildTables lays out each category with one row per field and one column
// per publication. Fields from the comparison template come first; anything
// extra the service supplied follows alphabetically.
func BuildTables(ct ComparisonTable) []Table {
	tables := make([]Table, 0, len(Categories))
	for _, cat := range Categories {
		data := ct.Category(cat.Key)
		pub1, pub2 := data[Publication1], data[Publication2]
		t := Table{
			Category: cat.Key,
			Title:    cat.Title,
			Headers:  []string{"Field", Publication1, Publication2},
		}
		for _, field := range orderedFields(cat.Fields, pub1, pub2) {
			t.Rows = append(t.Rows, Row{
				Field:  field,
				Label:  FieldLabel(field),
				Values: [2]string{cellValue(pub1, field), cellValue(pub2, field)},
			})
		}
		tables = append(tables, t)
	}
	return tables
}

func orderedFields(canonical []string, pubs ...PublicationFields) []string {
	seen := make(map[string]bool, len(canonical))
	out := make([]string, 0, len(canonical))
	for _, f := range canonical {
		seen[f] = true
		out = append(out, f)
	}
	var extra []string
	for _, pub := range pubs {
		for f := range pub {
			if !seen[f] {
				seen[f] = true
				extra = append(extra, f)
			}
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// FieldLabel turns an identifier such as "grade_3_4_adverse_events" into
// "Grade 3 4 Adverse Events".
func FieldLabel(field string) string {
	// Casers carry state and must not be shared between goroutines.
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(field, "_", " "))
}

func cellValue(pub PublicationFields, field string) string {
	v, ok := pub[field]
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case nil:
		return nullCell
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// FormatTable renders every category as a GitHub-flavored Markdown table.
func FormatTable(ct ComparisonTable) string {
	var sb strings.Builder
	for i, t := range BuildTables(ct) {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeMarkdownTable(&sb, t, 2)
	}
	return sb.String()
}

func writeMarkdownTable(sb *strings.Builder, t Table, level int) {
	fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", level), t.Title)
	sb.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(t.Headers)) + "\n")
	for _, r := range t.Rows {
		fmt.Fprintf(sb, "| %s | %s | %s |\n", escapeCell(r.Label), escapeCell(r.Values[0]), escapeCell(r.Values[1]))
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}
