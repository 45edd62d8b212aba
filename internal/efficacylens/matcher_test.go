package efficacylens

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(disease string) DiseaseProfile {
	return DiseaseProfile{PrimaryDisease: disease, Confidence: ConfidenceHigh}
}

func TestMatcherSynonymsAreSymmetric(t *testing.T) {
	m := NewMatcher(nil)
	pairs := [][2]string{
		{"breast cancer", "breast carcinoma"},
		{"Melanoma", "metastatic melanoma"},
		{"NSCLC", "Non-Small Cell Lung Cancer"},
		{"lung cancer", "nsclc"},
		{"chronic migraine", "episodic migraine"},
		{"colon cancer", "CRC"},
	}
	for _, p := range pairs {
		assert.True(t, m.IsCompatible(profile(p[0]), profile(p[1])), "%q vs %q", p[0], p[1])
		assert.True(t, m.IsCompatible(profile(p[1]), profile(p[0])), "%q vs %q", p[1], p[0])
	}
}

func TestMatcherExactNamesAlwaysMatch(t *testing.T) {
	m := NewMatcher(nil)
	for _, name := range []string{"Idiopathic Pulmonary Fibrosis", "breast cancer", "rare disease x"} {
		assert.True(t, m.IsCompatible(profile(name), profile(name)), name)
	}
	assert.True(t, m.IsCompatible(profile("  Rare   Disease X "), profile("rare disease x")))
}

func TestMatcherDifferentDiseases(t *testing.T) {
	m := NewMatcher(nil)
	assert.False(t, m.IsCompatible(profile("melanoma"), profile("breast cancer")))
	assert.False(t, m.IsCompatible(profile("migraine"), profile("cluster headache")))
	assert.False(t, m.IsCompatible(profile("rare disease x"), profile("rare disease y")))
}

func TestMatcherUnknownNeverMatches(t *testing.T) {
	m := NewMatcher(nil)
	assert.False(t, m.IsCompatible(UnknownProfile(), UnknownProfile()))
	assert.False(t, m.IsCompatible(profile("Unknown"), profile("unknown")))
	assert.False(t, m.IsCompatible(profile(""), profile("")))
	assert.False(t, m.IsCompatible(UnknownProfile(), profile("melanoma")))
}

func TestMatcherPlaceholdersAreUndetermined(t *testing.T) {
	m := NewMatcher(nil)
	ok := func(d string) ProfileResult { return ProfileResult{Profile: profile(d)} }

	for _, name := range []string{"N/A", "n/a", "Not reported", "not  specified", "None"} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, m.IsCompatible(profile(name), profile(name)))
			assert.Equal(t, DecisionUndetermined, m.Match(ok(name), ok(name)))
			assert.Equal(t, DecisionUndetermined, m.Match(ok("melanoma"), ok(name)))
		})
	}
}

func TestMatcherMatchDecisions(t *testing.T) {
	m := NewMatcher(nil)
	ok := func(d string) ProfileResult { return ProfileResult{Profile: profile(d)} }
	failed := ProfileResult{Profile: UnknownProfile(), Err: errors.New("timeout")}

	assert.Equal(t, DecisionCompatible, m.Match(ok("breast cancer"), ok("breast neoplasm")))
	assert.Equal(t, DecisionIncompatible, m.Match(ok("breast cancer"), ok("melanoma")))
	assert.Equal(t, DecisionUndetermined, m.Match(failed, ok("melanoma")))
	assert.Equal(t, DecisionUndetermined, m.Match(ok("melanoma"), ok("unknown")))
	assert.Equal(t, DecisionUndetermined, m.Match(failed, failed))
}

func TestMatcherCustomTable(t *testing.T) {
	table, err := ParseSynonymTable([]byte("atopic dermatitis:\n  - eczema\n"))
	require.NoError(t, err)
	m := NewMatcher(table)
	assert.True(t, m.IsCompatible(profile("Eczema"), profile("atopic dermatitis")))
	assert.False(t, m.IsCompatible(profile("breast cancer"), profile("breast carcinoma")))
}

func TestMatcherExplain(t *testing.T) {
	m := NewMatcher(nil)
	assert.Contains(t, m.explain(profile("NSCLC"), profile("lung cancer"), DecisionCompatible), "non-small cell lung cancer")
	assert.Contains(t, m.explain(profile("melanoma"), profile("migraine"), DecisionIncompatible), "Cross-disease")
	assert.Contains(t, m.explain(UnknownProfile(), profile("migraine"), DecisionUndetermined), Publication1)
	assert.Contains(t, m.explain(UnknownProfile(), UnknownProfile(), DecisionUndetermined), "either publication")
}
