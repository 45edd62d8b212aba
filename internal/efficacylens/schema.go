package efficacylens

import (
	"fmt"
	"strings"
)

func checkValidationSchema(doc map[string]any) ([]string, error) {
	v, ok := doc["compatible"]
	if !ok {
		return nil, fmt.Errorf("missing key %q", "compatible")
	}
	if _, ok := v.(bool); !ok {
		return nil, fmt.Errorf("%q must be a boolean, got %T", "compatible", v)
	}
	analysis, err := object(doc, "disease_analysis")
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"publication1_disease", "publication2_disease", "compatibility_reason"} {
		if err := requireString(analysis, "disease_analysis", key); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func checkComparisonSchema(doc map[string]any) ([]string, error) {
	table, err := object(doc, "comparison_table")
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, c := range Categories {
		category, err := object(table, c.Key)
		if err != nil {
			return nil, fmt.Errorf("comparison_table: %w", err)
		}
		for _, pub := range []string{Publication1, Publication2} {
			fields, err := object(category, pub)
			if err != nil {
				return nil, fmt.Errorf("comparison_table.%s: %w", c.Key, err)
			}
			for _, f := range c.Fields {
				if _, ok := fields[f]; !ok {
					warnings = append(warnings, fmt.Sprintf("%s.%s.%s missing", c.Key, pub, f))
				}
			}
		}
	}
	summary, err := object(doc, "executive_summary")
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"investment_opportunity", "risk_assessment_and_strategy"} {
		if err := requireString(summary, "executive_summary", key); err != nil {
			return nil, err
		}
	}
	return warnings, nil
}

func checkProfileSchema(doc map[string]any) ([]string, error) {
	if err := requireString(doc, "profile", "primary_disease"); err != nil {
		return nil, err
	}
	if s, _ := doc["primary_disease"].(string); strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("primary_disease is empty")
	}
	var warnings []string
	for _, key := range profileFields[1:] {
		if _, ok := doc[key]; !ok {
			warnings = append(warnings, fmt.Sprintf("profile.%s missing", key))
		}
	}
	if c, ok := doc["confidence"].(string); ok && !validConfidence(Confidence(strings.ToLower(strings.TrimSpace(c)))) {
		warnings = append(warnings, fmt.Sprintf("profile.confidence %q not one of high, medium, low", c))
	}
	return warnings, nil
}

func validConfidence(c Confidence) bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

func object(doc map[string]any, key string) (map[string]any, error) {
	v, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("missing key %q", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%q must be an object, got %T", key, v)
	}
	return m, nil
}

func requireString(doc map[string]any, parent, key string) error {
	v, ok := doc[key]
	if !ok {
		return fmt.Errorf("missing key %s.%s", parent, key)
	}
	if _, ok := v.(string); !ok {
		return fmt.Errorf("%s.%s must be a string, got %T", parent, key, v)
	}
	return nil
}
