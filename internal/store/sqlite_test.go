package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func envelope(id string, status efficacylens.Status, started time.Time) efficacylens.ResponseEnvelope {
	return efficacylens.ResponseEnvelope{
		RunID:          id,
		Status:         status,
		Publication1:   "Melanoma1.pdf",
		Publication2:   "melanoma2.pdf",
		ReportMarkdown: "# Clinical Trial Comparison Analysis\n",
		Disclaimer:     efficacylens.Disclaimer,
		Validation: &efficacylens.ValidationResult{
			Compatible: true,
			Profile1:   efficacylens.DiseaseProfile{PrimaryDisease: "melanoma"},
			Profile2:   efficacylens.DiseaseProfile{PrimaryDisease: "metastatic melanoma"},
			Decision:   efficacylens.DecisionCompatible,
			Reason:     "same disease",
		},
		PipelineMetadata: efficacylens.PipelineMetadata{
			Model:         "test-model",
			TotalLLMCalls: 4,
			StartedAt:     started,
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	env := envelope("run-1", efficacylens.StatusCompleted, started)

	require.NoError(t, s.Save(t.Context(), env))

	run, got, err := s.Get(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, env.RunID, got.RunID)
	assert.Equal(t, env.ReportMarkdown, got.ReportMarkdown)
	require.NotNil(t, got.Validation)
	assert.Equal(t, "metastatic melanoma", got.Validation.Profile2.PrimaryDisease)

	assert.Equal(t, efficacylens.StatusCompleted, run.Status)
	assert.Equal(t, "melanoma", run.Disease1)
	assert.Equal(t, "metastatic melanoma", run.Disease2)
	assert.Equal(t, "compatible", run.Decision)
	assert.Equal(t, "test-model", run.Model)
	assert.Equal(t, 4, run.LLMCalls)
	assert.True(t, run.CreatedAt.Equal(started))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRequiresRunID(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(t.Context(), envelope(" ", efficacylens.StatusCompleted, time.Now()))
	assert.Error(t, err)
}

func TestSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	env := envelope("run-1", efficacylens.StatusCompleted, started)
	require.NoError(t, s.Save(t.Context(), env))

	env.Status = efficacylens.StatusFailed
	env.Error = "comparison reply malformed"
	require.NoError(t, s.Save(t.Context(), env))

	runs, err := s.List(t.Context(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, efficacylens.StatusFailed, runs[0].Status)
	assert.Equal(t, "comparison reply malformed", runs[0].Reason)
}

func TestListOrderFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(t.Context(), envelope("old", efficacylens.StatusCompleted, base)))
	// Sub-second offset checks ordering against a whole-second timestamp.
	require.NoError(t, s.Save(t.Context(), envelope("mid", efficacylens.StatusCompleted, base.Add(500*time.Millisecond))))

	rejected := envelope("new", efficacylens.StatusRejected, base.Add(time.Minute))
	rejected.Validation = nil
	rejected.Rejection = &efficacylens.Rejection{
		Publication1Disease: "melanoma",
		Publication2Disease: "migraine",
		Reason:              "different diseases",
		Decision:            efficacylens.DecisionIncompatible,
	}
	require.NoError(t, s.Save(t.Context(), rejected))

	runs, err := s.List(t.Context(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Equal(t, "migraine", runs[0].Disease2)
	assert.Equal(t, "incompatible", runs[0].Decision)
	assert.Equal(t, "different diseases", runs[0].Reason)

	completed, err := s.List(t.Context(), ListFilter{Status: efficacylens.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, "mid", completed[0].RunID)

	limited, err := s.List(t.Context(), ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new", limited[0].RunID)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Save(t.Context(), envelope("run-1", efficacylens.StatusCompleted, time.Now())))
	require.NoError(t, s1.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	_, got, err := s2.Get(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Melanoma1.pdf", got.Publication1)
}
