package efficacylens

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutcomeFromEnvelope reconstructs an Outcome from a saved envelope so the
// report can be re-rendered without calling the analysis service again.
func OutcomeFromEnvelope(env ResponseEnvelope) (Outcome, error) {
	out := Outcome{
		RunID:  strings.TrimSpace(env.RunID),
		Status: env.Status,
		Request: Request{
			Publication1Name: env.Publication1,
			Publication2Name: env.Publication2,
		},
		Validation: env.Validation,
		Rejection:  env.Rejection,
		Error:      env.Error,
		Metadata:   env.PipelineMetadata,
	}
	switch env.Status {
	case StatusCompleted:
		if env.Payload == nil {
			return Outcome{}, fmt.Errorf("envelope %q: completed run has no payload", env.RunID)
		}
		result := NewComparisonResult(*env.Payload)
		out.Result = &result
	case StatusRejected:
		if env.Rejection == nil {
			return Outcome{}, fmt.Errorf("envelope %q: rejected run has no rejection details", env.RunID)
		}
	case StatusFailed:
	default:
		return Outcome{}, fmt.Errorf("envelope %q: unknown status %q", env.RunID, env.Status)
	}
	return out, nil
}

// RebuildResponseFromEnvelope regenerates report markdown from a saved envelope.
func RebuildResponseFromEnvelope(env ResponseEnvelope) (ResponseEnvelope, error) {
	out, err := OutcomeFromEnvelope(env)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return BuildResponse(out), nil
}

func DecodeEnvelope(data []byte) (ResponseEnvelope, error) {
	var env ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
