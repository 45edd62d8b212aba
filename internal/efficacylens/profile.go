package efficacylens

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const StageProfile = "profile"

type ProfileExtractor struct {
	exec   *StageExecutor
	logger *zap.Logger
}

func NewProfileExtractor(exec *StageExecutor, logger *zap.Logger) *ProfileExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileExtractor{exec: exec, logger: logger}
}

// Extract never fails. Any call, parse or schema error yields the unknown
// sentinel with Err set, so callers can tell "could not determine" apart
// from a confirmed disease.
func (p *ProfileExtractor) Extract(ctx context.Context, label, text string) ProfileResult {
	var out DiseaseProfile
	warnings, err := p.exec.Run(ctx, StageProfile, BuildProfilePrompt(text), &out, checkProfileSchema)
	if err != nil {
		p.logger.Warn("disease profile extraction degraded to unknown",
			zap.String("publication", label), zap.Error(err))
		return ProfileResult{Profile: UnknownProfile(), Err: err}
	}
	for _, w := range warnings {
		p.logger.Debug("disease profile schema warning", zap.String("publication", label), zap.String("warning", w))
	}
	return ProfileResult{Profile: normalizeProfile(out)}
}

func normalizeProfile(p DiseaseProfile) DiseaseProfile {
	p.PrimaryDisease = strings.TrimSpace(p.PrimaryDisease)
	p.Indication = orUnknown(p.Indication)
	p.TherapeuticArea = orUnknown(p.TherapeuticArea)
	p.PatientPopulation = orUnknown(p.PatientPopulation)
	c := Confidence(strings.ToLower(strings.TrimSpace(string(p.Confidence))))
	if !validConfidence(c) {
		c = ConfidenceLow
	}
	p.Confidence = c
	return p
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknownValue
	}
	return s
}
