package efficacylens

import (
	"fmt"
	"strings"
)

type Category struct {
	Key    string
	Title  string
	Fields []string
}

// Categories is the fixed comparison layout, in render order.
var Categories = []Category{
	{
		Key:   "study_characteristics",
		Title: "Study Characteristics",
		Fields: []string{
			"study_name",
			"drug_intervention",
			"patient_population",
			"sample_size",
			"study_phase",
			"primary_endpoint",
			"follow_up_duration",
			"market_size_potential",
			"competitive_landscape",
		},
	},
	{
		Key:   "efficacy_results",
		Title: "Efficacy Results",
		Fields: []string{
			"primary_outcome_result",
			"hazard_ratio",
			"confidence_interval",
			"p_value",
			"response_rate",
			"progression_free_survival",
			"overall_survival",
			"clinical_significance",
			"regulatory_implications",
		},
	},
	{
		Key:   "safety_profile",
		Title: "Safety Profile",
		Fields: []string{
			"grade_3_4_adverse_events",
			"serious_adverse_events",
			"discontinuation_rate",
			"most_common_aes",
			"safety_differentiation",
			"market_access_implications",
		},
	},
}

var profileFields = []string{"primary_disease", "indication", "therapeutic_area", "confidence", "patient_population"}

const validationTemplate = `{
    "compatible": false,
    "disease_analysis": {
        "publication1_disease": "",
        "publication2_disease": "",
        "compatibility_reason": ""
    }
}`

const analystRole = "You are a Business Analyst in the Biopharmaceutical investment field analyzing two clinical trial publications."

// BuildValidationPrompt asks only for disease identification and a
// compatibility verdict. Comparative analysis is explicitly out of bounds.
func BuildValidationPrompt(text1, text2 string) string {
	return fmt.Sprintf(`%s
Your ONLY task in this step is to identify the disease or therapeutic indication studied by each publication and decide whether the two publications study the same disease.
Do NOT compare efficacy, safety, endpoints or any other trial results. Do NOT produce any comparative analysis.
Two publications are compatible only when they study the same disease or therapeutic indication. Publications studying different diseases are never compatible, even if they share a drug class or endpoint.

PUBLICATION 1:
%s

PUBLICATION 2:
%s

Respond with JSON in exactly this format. "compatible" must be a JSON boolean:

%s
`, analystRole, truncateChars(text1, MaxComparisonChars), truncateChars(text2, MaxComparisonChars), validationTemplate)
}

func BuildComparisonPrompt(text1, text2 string) string {
	return fmt.Sprintf(`%s
Your task is to compare these studies and generate strategic investment insights for senior decision makers including Investment Managers, Head of R&D, Market Access Directors, and Chief Medical Officers (CMOs).

PUBLICATION 1:
%s

PUBLICATION 2:
%s

Please provide your analysis in the following JSON format:

%s

The "investment_opportunity" paragraph analyzes the investment potential of each study, highlighting competitive advantages, market differentiation, revenue potential, and key value drivers.
The "risk_assessment_and_strategy" paragraph analyzes safety profiles, regulatory risks, market access challenges, and strategic recommendations for portfolio management.

Ensure all data is accurately extracted from the publications. If specific data is not available, use 'Not reported' or 'N/A'.
`, analystRole, truncateChars(text1, MaxComparisonChars), truncateChars(text2, MaxComparisonChars), comparisonTemplate())
}

func BuildProfilePrompt(text string) string {
	var tmpl strings.Builder
	tmpl.WriteString("{\n")
	for i, f := range profileFields {
		fmt.Fprintf(&tmpl, "    %q: \"\"", f)
		if i < len(profileFields)-1 {
			tmpl.WriteString(",")
		}
		tmpl.WriteString("\n")
	}
	tmpl.WriteString("}")

	return fmt.Sprintf(`You are identifying the disease studied by one clinical trial publication.
Report the primary disease, the specific indication, the therapeutic area, the studied patient population, and your confidence (one of "high", "medium", "low").
Do not summarize results.

PUBLICATION:
%s

Respond with JSON in exactly this format:

%s
`, truncateChars(text, MaxProfileChars), tmpl.String())
}

func comparisonTemplate() string {
	var b strings.Builder
	b.WriteString("{\n    \"comparison_table\": {\n")
	for ci, c := range Categories {
		fmt.Fprintf(&b, "        %q: {\n", c.Key)
		for pi, pub := range []string{Publication1, Publication2} {
			fmt.Fprintf(&b, "            %q: {\n", pub)
			for fi, f := range c.Fields {
				fmt.Fprintf(&b, "                %q: \"\"", f)
				if fi < len(c.Fields)-1 {
					b.WriteString(",")
				}
				b.WriteString("\n")
			}
			b.WriteString("            }")
			if pi == 0 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString("        }")
		if ci < len(Categories)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("    },\n")
	b.WriteString("    \"executive_summary\": {\n")
	b.WriteString("        \"investment_opportunity\": \"\",\n")
	b.WriteString("        \"risk_assessment_and_strategy\": \"\"\n")
	b.WriteString("    }\n}")
	return b.String()
}

// truncateChars clips s to at most n characters (runes), not bytes.
func truncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func charCount(s string) int {
	return len([]rune(s))
}
