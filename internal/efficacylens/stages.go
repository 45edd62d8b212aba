package efficacylens

import "context"

const (
	StageValidation = "validation"
	StageComparison = "comparison"
)

// StageRunner issues the service-backed steps of a comparison. Each method
// makes exactly one service call.
type StageRunner interface {
	ExtractProfile(ctx context.Context, label, text string) ProfileResult
	Validate(ctx context.Context, text1, text2 string) (ValidationReply, error)
	Compare(ctx context.Context, text1, text2 string) (ComparisonPayload, []string, error)
}

type LLMStageRunner struct {
	exec     *StageExecutor
	profiles *ProfileExtractor
}

func NewLLMStageRunner(exec *StageExecutor, profiles *ProfileExtractor) *LLMStageRunner {
	return &LLMStageRunner{exec: exec, profiles: profiles}
}

func (r *LLMStageRunner) ExtractProfile(ctx context.Context, label, text string) ProfileResult {
	return r.profiles.Extract(ctx, label, text)
}

func (r *LLMStageRunner) Validate(ctx context.Context, text1, text2 string) (ValidationReply, error) {
	var out ValidationReply
	_, err := r.exec.Run(ctx, StageValidation, BuildValidationPrompt(text1, text2), &out, checkValidationSchema)
	return out, err
}

func (r *LLMStageRunner) Compare(ctx context.Context, text1, text2 string) (ComparisonPayload, []string, error) {
	var out ComparisonPayload
	warnings, err := r.exec.Run(ctx, StageComparison, BuildComparisonPrompt(text1, text2), &out, checkComparisonSchema)
	return out, warnings, err
}
