package efficacylens

import "fmt"

// Matcher decides whether two disease profiles describe the same disease.
// Unmapped names only match when textually identical after normalization;
// rejecting a valid pair is preferred over accepting an invalid one.
type Matcher struct {
	table *SynonymTable
}

func NewMatcher(table *SynonymTable) *Matcher {
	if table == nil {
		table = DefaultSynonymTable()
	}
	return &Matcher{table: table}
}

// IsCompatible is symmetric. Empty names and placeholders such as "unknown"
// or "N/A" never match anything, including each other.
func (m *Matcher) IsCompatible(a, b DiseaseProfile) bool {
	na, nb := normalizeDisease(a.PrimaryDisease), normalizeDisease(b.PrimaryDisease)
	if !determinable(na) || !determinable(nb) {
		return false
	}
	if na == nb {
		return true
	}
	ca, okA := m.table.Canonical(na)
	cb, okB := m.table.Canonical(nb)
	return okA && okB && ca == cb
}

func (m *Matcher) Match(a, b ProfileResult) MatchDecision {
	if !a.Known() || !b.Known() {
		return DecisionUndetermined
	}
	if m.IsCompatible(a.Profile, b.Profile) {
		return DecisionCompatible
	}
	return DecisionIncompatible
}

func (m *Matcher) explain(a, b DiseaseProfile, d MatchDecision) string {
	switch d {
	case DecisionCompatible:
		na, nb := normalizeDisease(a.PrimaryDisease), normalizeDisease(b.PrimaryDisease)
		if na == nb {
			return fmt.Sprintf("Both publications study %s.", a.PrimaryDisease)
		}
		canon, _ := m.table.Canonical(na)
		return fmt.Sprintf("%q and %q are recognized names for %s.", a.PrimaryDisease, b.PrimaryDisease, canon)
	case DecisionUndetermined:
		var which string
		switch {
		case !determinable(normalizeDisease(a.PrimaryDisease)) && !determinable(normalizeDisease(b.PrimaryDisease)):
			which = "either publication"
		case !determinable(normalizeDisease(a.PrimaryDisease)):
			which = Publication1
		default:
			which = Publication2
		}
		return fmt.Sprintf("The disease studied by %s could not be determined, so compatibility cannot be confirmed.", which)
	default:
		return fmt.Sprintf("%s studies %s while %s studies %s. Cross-disease comparisons are not supported.",
			Publication1, a.PrimaryDisease, Publication2, b.PrimaryDisease)
	}
}

// placeholderDiseases are the stand-ins a reply uses when it cannot name a
// disease. They are compared after normalizeDisease.
var placeholderDiseases = map[string]bool{
	"":              true,
	unknownValue:    true,
	"n/a":           true,
	"na":            true,
	"none":          true,
	"not reported":  true,
	"not specified": true,
	"not available": true,
	"unspecified":   true,
}

func determinable(normalized string) bool {
	return !placeholderDiseases[normalized]
}
