package efficacylens

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, env ResponseEnvelope) ResponseEnvelope {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	decoded, err := DecodeEnvelope(b)
	require.NoError(t, err)
	return decoded
}

func TestRebuildResponseFromEnvelopeCompleted(t *testing.T) {
	original := BuildResponse(completedOutcome(t))
	saved := roundTrip(t, original)
	saved.ReportMarkdown = ""

	rebuilt, err := RebuildResponseFromEnvelope(saved)
	require.NoError(t, err)
	assert.Equal(t, original.ReportMarkdown, rebuilt.ReportMarkdown)
	assert.Equal(t, original.RunID, rebuilt.RunID)
}

func TestRebuildResponseFromEnvelopeRejected(t *testing.T) {
	original := BuildResponse(rejectedOutcome(t))
	rebuilt, err := RebuildResponseFromEnvelope(roundTrip(t, original))
	require.NoError(t, err)
	assert.Equal(t, original.ReportMarkdown, rebuilt.ReportMarkdown)
	assert.Nil(t, rebuilt.Payload)
}

func TestOutcomeFromEnvelopeRejectsInconsistentEnvelopes(t *testing.T) {
	_, err := OutcomeFromEnvelope(ResponseEnvelope{RunID: "x", Status: StatusCompleted})
	assert.Error(t, err)

	_, err = OutcomeFromEnvelope(ResponseEnvelope{RunID: "x", Status: StatusRejected})
	assert.Error(t, err)

	_, err = OutcomeFromEnvelope(ResponseEnvelope{RunID: "x", Status: "pending"})
	assert.Error(t, err)

	out, err := OutcomeFromEnvelope(ResponseEnvelope{RunID: "x", Status: StatusFailed, Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, "boom", out.Error)
}

func TestDecodeEnvelopeInvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}
