package efficacylens

import "time"

const Disclaimer = "This is an automated comparison of published trial data for decision support. " +
	"It is not medical advice and does not replace review of the source publications by qualified experts."

const (
	MaxComparisonChars = 15000
	MaxProfileChars    = 10000
	MaxPreviewChars    = 500

	Publication1 = "Publication 1"
	Publication2 = "Publication 2"

	unknownValue = "unknown"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type DiseaseProfile struct {
	PrimaryDisease    string     `json:"primary_disease"`
	Indication        string     `json:"indication"`
	TherapeuticArea   string     `json:"therapeutic_area"`
	Confidence        Confidence `json:"confidence"`
	PatientPopulation string     `json:"patient_population"`
}

// UnknownProfile is the sentinel produced when a profile cannot be extracted.
func UnknownProfile() DiseaseProfile {
	return DiseaseProfile{
		PrimaryDisease:    unknownValue,
		Indication:        unknownValue,
		TherapeuticArea:   unknownValue,
		Confidence:        ConfidenceLow,
		PatientPopulation: unknownValue,
	}
}

// ProfileResult keeps a failed extraction distinguishable from a genuinely
// ambiguous publication.
type ProfileResult struct {
	Profile DiseaseProfile `json:"profile"`
	Err     error          `json:"-"`
}

func (r ProfileResult) Known() bool {
	if r.Err != nil {
		return false
	}
	return determinable(normalizeDisease(r.Profile.PrimaryDisease))
}

type MatchDecision string

const (
	DecisionCompatible   MatchDecision = "compatible"
	DecisionIncompatible MatchDecision = "incompatible"
	DecisionUndetermined MatchDecision = "undetermined"
)

type DiseaseAnalysis struct {
	Publication1Disease string `json:"publication1_disease"`
	Publication2Disease string `json:"publication2_disease"`
	CompatibilityReason string `json:"compatibility_reason"`
}

type ValidationReply struct {
	Compatible      bool            `json:"compatible"`
	DiseaseAnalysis DiseaseAnalysis `json:"disease_analysis"`
}

type ValidationResult struct {
	Compatible     bool             `json:"compatible"`
	Profile1       DiseaseProfile   `json:"profile1"`
	Profile2       DiseaseProfile   `json:"profile2"`
	Reason         string           `json:"reason"`
	Decision       MatchDecision    `json:"decision"`
	ServiceVerdict *ValidationReply `json:"service_verdict,omitempty"`
}

type PublicationFields map[string]any

type CategoryTable map[string]PublicationFields

type ComparisonTable struct {
	StudyCharacteristics CategoryTable `json:"study_characteristics"`
	EfficacyResults      CategoryTable `json:"efficacy_results"`
	SafetyProfile        CategoryTable `json:"safety_profile"`
}

type ExecutiveSummary struct {
	InvestmentOpportunity     string `json:"investment_opportunity"`
	RiskAssessmentAndStrategy string `json:"risk_assessment_and_strategy"`
}

type ComparisonPayload struct {
	ComparisonTable  ComparisonTable  `json:"comparison_table"`
	ExecutiveSummary ExecutiveSummary `json:"executive_summary"`
}

type ComparisonResult struct {
	FormattedTable            string            `json:"formatted_table"`
	InvestmentOpportunity     string            `json:"investment_opportunity"`
	RiskAssessmentAndStrategy string            `json:"risk_assessment_and_strategy"`
	Tables                    []Table           `json:"tables"`
	RawPayload                ComparisonPayload `json:"raw_payload"`
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

type Rejection struct {
	Publication1Disease string        `json:"publication1_disease"`
	Publication2Disease string        `json:"publication2_disease"`
	Reason              string        `json:"reason"`
	Decision            MatchDecision `json:"decision"`
	Guidance            []string      `json:"guidance"`
}

type Request struct {
	Publication1Path string `json:"publication1_path,omitempty"`
	Publication2Path string `json:"publication2_path,omitempty"`
	Publication1Name string `json:"publication1_name,omitempty"`
	Publication2Name string `json:"publication2_name,omitempty"`
}

type PipelineMetadata struct {
	Model            string         `json:"model"`
	States           []State        `json:"states"`
	TotalLLMCalls    int            `json:"total_llm_calls"`
	StageCalls       map[string]int `json:"stage_calls,omitempty"`
	InputChars       [2]int         `json:"input_chars"`
	InputTruncated   bool           `json:"input_truncated"`
	DegradedProfiles []string       `json:"degraded_profiles,omitempty"`
	SchemaWarnings   []string       `json:"schema_warnings,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      time.Time      `json:"completed_at"`
}

type Outcome struct {
	RunID      string            `json:"run_id"`
	Status     Status            `json:"status"`
	Request    Request           `json:"request"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Result     *ComparisonResult `json:"result,omitempty"`
	Rejection  *Rejection        `json:"rejection,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   PipelineMetadata  `json:"pipeline_metadata"`
}

type ResponseEnvelope struct {
	RunID            string             `json:"run_id"`
	Status           Status             `json:"status"`
	Publication1     string             `json:"publication1"`
	Publication2     string             `json:"publication2"`
	Validation       *ValidationResult  `json:"validation,omitempty"`
	Rejection        *Rejection         `json:"rejection,omitempty"`
	Payload          *ComparisonPayload `json:"payload,omitempty"`
	Error            string             `json:"error,omitempty"`
	ReportMarkdown   string             `json:"report_markdown"`
	PipelineMetadata PipelineMetadata   `json:"pipeline_metadata"`
	Disclaimer       string             `json:"disclaimer"`
}
