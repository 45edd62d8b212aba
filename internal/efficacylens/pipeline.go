package efficacylens

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State string

const (
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateAnalyzing  State = "analyzing"
	StateFormatting State = "formatting"
	StateDone       State = "done"
	StateErrored    State = "errored"
)

// TextSource turns a document path into publication text.
type TextSource interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

type ProgressFn func(state State, message string)

// Pipeline runs extraction, the compatibility gate, comparative analysis and
// formatting, strictly in that order. It holds no per-run state, so a single
// Pipeline may serve concurrent comparisons.
type Pipeline struct {
	source  TextSource
	runner  StageRunner
	matcher *Matcher
	model   string
	logger  *zap.Logger
	tracer  trace.Tracer
	newID   func() string
}

type Option func(*Pipeline)

func WithMatcher(m *Matcher) Option { return func(p *Pipeline) { p.matcher = m } }

func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithModel records the model name in run metadata.
func WithModel(model string) Option { return func(p *Pipeline) { p.model = model } }

func WithTracer(t trace.Tracer) Option { return func(p *Pipeline) { p.tracer = t } }

func WithIDGenerator(fn func() string) Option { return func(p *Pipeline) { p.newID = fn } }

func NewPipeline(source TextSource, runner StageRunner, opts ...Option) *Pipeline {
	p := &Pipeline{
		source: source,
		runner: runner,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.matcher == nil {
		p.matcher = NewMatcher(nil)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/joelkehle/efficacylens")
	}
	return p
}

func (p *Pipeline) Compare(ctx context.Context, req Request) (Outcome, error) {
	return p.CompareWithProgress(ctx, req, nil)
}

func (p *Pipeline) CompareWithProgress(ctx context.Context, req Request, progress ProgressFn) (Outcome, error) {
	run := p.start(ctx, req, progress)
	defer run.end()

	run.enter(StateExtracting, "Extracting publication text...")
	if p.source == nil {
		return run.fail(StateExtracting, fmt.Errorf("%w: no text source configured", ErrExtraction))
	}
	text1, err := p.extract(run.ctx, req.Publication1Path)
	if err != nil {
		return run.fail(StateExtracting, err)
	}
	text2, err := p.extract(run.ctx, req.Publication2Path)
	if err != nil {
		return run.fail(StateExtracting, err)
	}
	run.logger.Info("extracted publication text",
		zap.Int("publication1_chars", charCount(text1)), zap.Int("publication2_chars", charCount(text2)))
	return p.analyze(run, text1, text2)
}

// CompareTexts runs the pipeline over text that has already been extracted.
func (p *Pipeline) CompareTexts(ctx context.Context, req Request, text1, text2 string, progress ProgressFn) (Outcome, error) {
	run := p.start(ctx, req, progress)
	defer run.end()
	return p.analyze(run, text1, text2)
}

func (p *Pipeline) extract(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: publication path is required", ErrExtraction)
	}
	text, err := p.source.ExtractText(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExtraction, filepath.Base(path), err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: no text content", ErrExtraction, filepath.Base(path))
	}
	return text, nil
}

func (p *Pipeline) analyze(run *runState, text1, text2 string) (Outcome, error) {
	md := &run.out.Metadata
	md.InputChars = [2]int{charCount(text1), charCount(text2)}
	md.InputTruncated = md.InputChars[0] > MaxComparisonChars || md.InputChars[1] > MaxComparisonChars

	run.enter(StateValidating, "Validating disease compatibility...")
	validation, err := p.validate(run, text1, text2)
	if err != nil {
		return run.fail(StateValidating, err)
	}
	run.out.Validation = &validation
	run.span.SetAttributes(attribute.String("decision", string(validation.Decision)))

	if !validation.Compatible {
		run.out.Status = StatusRejected
		run.out.Rejection = buildRejection(validation)
		run.enter(StateRejected, "Comparative analysis not possible: "+validation.Reason)
		run.logger.Info("publications rejected by compatibility gate",
			zap.String("decision", string(validation.Decision)),
			zap.String("publication1_disease", validation.Profile1.PrimaryDisease),
			zap.String("publication2_disease", validation.Profile2.PrimaryDisease))
		return run.finish(), nil
	}

	run.enter(StateAnalyzing, "Running comparative analysis...")
	payload, warnings, err := p.runner.Compare(run.ctx, text1, text2)
	run.count(StageComparison)
	if err != nil {
		return run.fail(StateAnalyzing, err)
	}
	md.SchemaWarnings = append(md.SchemaWarnings, warnings...)

	run.enter(StateFormatting, "Formatting comparison tables...")
	result := NewComparisonResult(payload)
	run.out.Result = &result
	run.out.Status = StatusCompleted

	run.enter(StateDone, fmt.Sprintf("Comparison complete in %s", time.Since(md.StartedAt).Round(time.Millisecond)))
	run.logger.Info("comparison completed", zap.Int("llm_calls", md.TotalLLMCalls), zap.Int("schema_warnings", len(md.SchemaWarnings)))
	return run.finish(), nil
}

func (p *Pipeline) validate(run *runState, text1, text2 string) (ValidationResult, error) {
	p1 := p.runner.ExtractProfile(run.ctx, Publication1, text1)
	run.count(StageProfile)
	p2 := p.runner.ExtractProfile(run.ctx, Publication2, text2)
	run.count(StageProfile)
	if p1.Err != nil {
		run.out.Metadata.DegradedProfiles = append(run.out.Metadata.DegradedProfiles, Publication1)
	}
	if p2.Err != nil {
		run.out.Metadata.DegradedProfiles = append(run.out.Metadata.DegradedProfiles, Publication2)
	}

	reply, err := p.runner.Validate(run.ctx, text1, text2)
	run.count(StageValidation)
	if err != nil {
		return ValidationResult{}, err
	}

	p1 = adoptServiceDisease(p1, reply.DiseaseAnalysis.Publication1Disease)
	p2 = adoptServiceDisease(p2, reply.DiseaseAnalysis.Publication2Disease)
	decision := p.matcher.Match(p1, p2)

	res := ValidationResult{
		Compatible:     decision == DecisionCompatible && reply.Compatible,
		Profile1:       p1.Profile,
		Profile2:       p2.Profile,
		Decision:       decision,
		ServiceVerdict: &reply,
	}
	res.Reason = p.matcher.explain(p1.Profile, p2.Profile, decision)
	serviceReason := strings.TrimSpace(reply.DiseaseAnalysis.CompatibilityReason)
	switch {
	case decision == DecisionCompatible && !reply.Compatible:
		if serviceReason == "" {
			serviceReason = "no reason given"
		}
		res.Reason = "The analysis service judged the publications incompatible: " + serviceReason
	case serviceReason != "":
		res.Reason += " Service assessment: " + serviceReason
	}
	return res, nil
}

// adoptServiceDisease fills an undetermined profile with the disease the
// validation reply reported for the same publication.
func adoptServiceDisease(pr ProfileResult, disease string) ProfileResult {
	if pr.Known() || !determinable(normalizeDisease(disease)) {
		return pr
	}
	profile := pr.Profile
	profile.PrimaryDisease = strings.TrimSpace(disease)
	profile.Confidence = ConfidenceLow
	return ProfileResult{Profile: profile}
}

// SamplePairs are publication pairs known to pass the compatibility gate.
var SamplePairs = []struct {
	Disease string
	Files   [2]string
}{
	{Disease: "Breast Cancer", Files: [2]string{"BreastCancer1.pdf", "BreastCancer2.pdf"}},
	{Disease: "Melanoma", Files: [2]string{"Melanoma1.pdf", "melanoma2.pdf"}},
	{Disease: "Lung Cancer (NSCLC)", Files: [2]string{"NSCLC_1.pdf", "NSCLC_2.pdf"}},
	{Disease: "Migraine", Files: [2]string{"Migraine1.pdf", "Migraine2.pdf"}},
}

func buildRejection(v ValidationResult) *Rejection {
	decision := v.Decision
	if decision == DecisionCompatible {
		decision = DecisionIncompatible
	}
	guidance := []string{"Select publications studying the same disease or therapeutic indication."}
	if decision == DecisionUndetermined {
		guidance = append(guidance, "Check that both documents contain readable publication text; scanned PDFs without a text layer cannot be analyzed.")
	}
	for _, pair := range SamplePairs {
		guidance = append(guidance, fmt.Sprintf("Validated sample pair, %s: %s + %s", pair.Disease, pair.Files[0], pair.Files[1]))
	}
	return &Rejection{
		Publication1Disease: v.Profile1.PrimaryDisease,
		Publication2Disease: v.Profile2.PrimaryDisease,
		Reason:              v.Reason,
		Decision:            decision,
		Guidance:            guidance,
	}
}

type runState struct {
	out      Outcome
	progress ProgressFn
	logger   *zap.Logger
	tracer   trace.Tracer

	root     context.Context
	rootSpan trace.Span
	ctx      context.Context
	span     trace.Span
	// child is set once span refers to a per-state span rather than rootSpan.
	child bool
}

func (p *Pipeline) start(ctx context.Context, req Request, progress ProgressFn) *runState {
	if req.Publication1Name == "" {
		req.Publication1Name = publicationName(req.Publication1Path, Publication1)
	}
	if req.Publication2Name == "" {
		req.Publication2Name = publicationName(req.Publication2Path, Publication2)
	}
	id := p.newID()
	root, rootSpan := p.tracer.Start(ctx, "efficacylens.compare", trace.WithAttributes(attribute.String("run_id", id)))
	return &runState{
		out: Outcome{
			RunID:   id,
			Request: req,
			Metadata: PipelineMetadata{
				Model:      p.model,
				StageCalls: map[string]int{},
				StartedAt:  time.Now(),
			},
		},
		progress: progress,
		logger:   p.logger.With(zap.String("run_id", id)),
		tracer:   p.tracer,
		root:     root,
		rootSpan: rootSpan,
		ctx:      root,
		span:     rootSpan,
	}
}

func publicationName(path, fallback string) string {
	if strings.TrimSpace(path) == "" {
		return fallback
	}
	return filepath.Base(path)
}

func (r *runState) enter(state State, message string) {
	if r.child {
		r.span.End()
	}
	r.ctx, r.span = r.tracer.Start(r.root, "efficacylens."+string(state))
	r.child = true
	r.out.Metadata.States = append(r.out.Metadata.States, state)
	r.logger.Debug("pipeline state", zap.String("state", string(state)), zap.String("message", message))
	if r.progress != nil {
		r.progress(state, message)
	}
}

func (r *runState) count(stage string) {
	r.out.Metadata.StageCalls[stage]++
	r.out.Metadata.TotalLLMCalls++
}

func (r *runState) fail(state State, err error) (Outcome, error) {
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
	r.out.Status = StatusFailed
	r.out.Error = err.Error()
	r.enter(StateErrored, err.Error())
	r.logger.Error("comparison failed", zap.String("state", string(state)), zap.Error(err))
	return r.finish(), &StageError{Stage: string(state), Err: err}
}

func (r *runState) finish() Outcome {
	r.out.Metadata.CompletedAt = time.Now()
	r.rootSpan.SetAttributes(attribute.String("status", string(r.out.Status)))
	return r.out
}

func (r *runState) end() {
	if r.child {
		r.span.End()
		r.child = false
	}
	r.rootSpan.End()
}
