package efficacylens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayloadPrefersJSONFence(t *testing.T) {
	raw := "Some prose {\"decoy\": true}\n```\n{\"plain\": 1}\n```\n```json\n{\"wanted\": 1}\n```\ntrailing {\"decoy\": 2}"
	got, err := ExtractPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"wanted": 1}`, got)
}

func TestExtractPayloadFenceCaseInsensitive(t *testing.T) {
	got, err := ExtractPayload("Résumé follows:\n```JSON\n{\"a\": \"é\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": "é"}`, got)
}

func TestExtractPayloadBareFence(t *testing.T) {
	got, err := ExtractPayload("Result:\n```\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)

	got, err = ExtractPayload("```javascript\n{\"b\": 2}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"b": 2}`, got)
}

func TestExtractPayloadUnterminatedFence(t *testing.T) {
	got, err := ExtractPayload("```json\n{\"a\": [1, 2]}")
	require.NoError(t, err)
	assert.Equal(t, `{"a": [1, 2]}`, got)
}

func TestExtractPayloadFenceWithProseInside(t *testing.T) {
	got, err := ExtractPayload("```json\nHere you go: {\"a\": 1} done\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)
}

func TestExtractPayloadBraceFallback(t *testing.T) {
	got, err := ExtractPayload("Sure! {\"outer\": {\"inner\": 1}} Hope that helps.")
	require.NoError(t, err)
	assert.Equal(t, `{"outer": {"inner": 1}}`, got)
}

func TestExtractPayloadFenceMarkerInsideString(t *testing.T) {
	got, err := ExtractPayload("{\"a\":\"```json\"}")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"```json\"}", got)

	got, err = ExtractPayload("Reply: {\"note\": \"see ``` block\", \"b\": 1}")
	require.NoError(t, err)
	assert.Equal(t, "{\"note\": \"see ``` block\", \"b\": 1}", got)

	_, err = ExtractPayload("```json\n{broken\n```")
	assert.Error(t, err)
}

func TestExtractPayloadFailures(t *testing.T) {
	_, err := ExtractPayload("   ")
	assert.ErrorIs(t, err, errEmptyReply)

	_, err = ExtractPayload("no structure here")
	assert.ErrorIs(t, err, errNoJSON)

	_, err = ExtractPayload("} backwards {")
	assert.ErrorIs(t, err, errNoJSON)

	_, err = ExtractPayload("{not json}")
	assert.Error(t, err)
}

func TestDecodeReplyWrapsFailures(t *testing.T) {
	var out ValidationReply
	_, err := DecodeReply(StageValidation, strings.Repeat("z", 900), &out, checkValidationSchema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, StageValidation, mre.Stage)
	assert.Equal(t, MaxPreviewChars, len([]rune(mre.Preview)))
}

func TestDecodeReplyValidation(t *testing.T) {
	var out ValidationReply
	raw := "```json\n{\"compatible\": true, \"disease_analysis\": {\"publication1_disease\": \"melanoma\", \"publication2_disease\": \"melanoma\", \"compatibility_reason\": \"same\"}}\n```"
	warnings, err := DecodeReply(StageValidation, raw, &out, checkValidationSchema)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, out.Compatible)
	assert.Equal(t, "melanoma", out.DiseaseAnalysis.Publication2Disease)
}

func TestDecodeReplyValidationSchema(t *testing.T) {
	cases := map[string]string{
		"string compatible": `{"compatible": "yes", "disease_analysis": {"publication1_disease": "a", "publication2_disease": "a", "compatibility_reason": "r"}}`,
		"missing analysis":  `{"compatible": true}`,
		"missing reason":    `{"compatible": true, "disease_analysis": {"publication1_disease": "a", "publication2_disease": "a"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var out ValidationReply
			_, err := DecodeReply(StageValidation, raw, &out, checkValidationSchema)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestComparisonSchemaMissingCategoryIsFatal(t *testing.T) {
	raw := `{"comparison_table": {"study_characteristics": {"Publication 1": {}, "Publication 2": {}}}, "executive_summary": {"investment_opportunity": "", "risk_assessment_and_strategy": ""}}`
	var out ComparisonPayload
	_, err := DecodeReply(StageComparison, raw, &out, checkComparisonSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "efficacy_results")
}

func TestComparisonSchemaMissingFieldsWarn(t *testing.T) {
	pubs := `{"Publication 1": {"study_name": "A"}, "Publication 2": {}}`
	raw := `{"comparison_table": {"study_characteristics": ` + pubs + `, "efficacy_results": ` + pubs + `, "safety_profile": ` + pubs + `},
		"executive_summary": {"investment_opportunity": "x", "risk_assessment_and_strategy": "y"}}`
	var out ComparisonPayload
	warnings, err := DecodeReply(StageComparison, raw, &out, checkComparisonSchema)
	require.NoError(t, err)
	assert.Contains(t, warnings, "study_characteristics.Publication 2.study_name missing")
	assert.NotContains(t, warnings, "study_characteristics.Publication 1.study_name missing")
	assert.Equal(t, "x", out.ExecutiveSummary.InvestmentOpportunity)
}

func TestProfileSchema(t *testing.T) {
	warnings, err := checkProfileSchema(map[string]any{"primary_disease": "melanoma", "confidence": "certain"})
	require.NoError(t, err)
	assert.Contains(t, warnings, "profile.indication missing")
	assert.Contains(t, warnings, `profile.confidence "certain" not one of high, medium, low`)

	_, err = checkProfileSchema(map[string]any{"primary_disease": " "})
	assert.Error(t, err)
	_, err = checkProfileSchema(map[string]any{"indication": "x"})
	assert.Error(t, err)
}
