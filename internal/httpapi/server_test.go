package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/joelkehle/efficacylens/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComparer struct {
	out efficacylens.Outcome
	err error

	calls    int
	req      efficacylens.Request
	contents [2]string
}

func (f *fakeComparer) CompareWithProgress(_ context.Context, req efficacylens.Request, progress efficacylens.ProgressFn) (efficacylens.Outcome, error) {
	f.calls++
	f.req = req
	for i, p := range []string{req.Publication1Path, req.Publication2Path} {
		b, err := os.ReadFile(p)
		if err == nil {
			f.contents[i] = string(b)
		}
	}
	if progress != nil {
		progress(efficacylens.StateExtracting, "Extracting publication text...")
		progress(efficacylens.StateValidating, "Checking disease compatibility...")
	}
	out := f.out
	out.Request = req
	return out, f.err
}

type fakePDF struct{ calls int }

func (f *fakePDF) Render(_ context.Context, env efficacylens.ResponseEnvelope) ([]byte, error) {
	f.calls++
	return []byte("%PDF-1.7 " + env.RunID), nil
}

func completedOutcome(id string) efficacylens.Outcome {
	pub := func(name string) efficacylens.PublicationFields {
		return efficacylens.PublicationFields{"study_name": name}
	}
	cat := efficacylens.CategoryTable{efficacylens.Publication1: pub("TRIAL-A"), efficacylens.Publication2: pub("TRIAL-B")}
	result := efficacylens.NewComparisonResult(efficacylens.ComparisonPayload{
		ComparisonTable: efficacylens.ComparisonTable{StudyCharacteristics: cat, EfficacyResults: cat, SafetyProfile: cat},
		ExecutiveSummary: efficacylens.ExecutiveSummary{
			InvestmentOpportunity:     "Trial A leads on response.",
			RiskAssessmentAndStrategy: "Monitor hepatotoxicity.",
		},
	})
	return efficacylens.Outcome{
		RunID:  id,
		Status: efficacylens.StatusCompleted,
		Validation: &efficacylens.ValidationResult{
			Compatible: true,
			Profile1:   efficacylens.DiseaseProfile{PrimaryDisease: "melanoma"},
			Profile2:   efficacylens.DiseaseProfile{PrimaryDisease: "metastatic melanoma"},
			Decision:   efficacylens.DecisionCompatible,
			Reason:     "same disease",
		},
		Result: &result,
		Metadata: efficacylens.PipelineMetadata{
			Model:     "test-model",
			StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func rejectedOutcome(id string) efficacylens.Outcome {
	return efficacylens.Outcome{
		RunID:  id,
		Status: efficacylens.StatusRejected,
		Rejection: &efficacylens.Rejection{
			Publication1Disease: "melanoma",
			Publication2Disease: "migraine",
			Reason:              "different diseases",
			Decision:            efficacylens.DecisionIncompatible,
			Guidance:            []string{"Select publications studying the same disease or therapeutic indication."},
		},
	}
}

func failedOutcome(id string, err error) efficacylens.Outcome {
	return efficacylens.Outcome{RunID: id, Status: efficacylens.StatusFailed, Error: err.Error()}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range []string{"publication1", "publication2"} {
		content, ok := files[field]
		if !ok {
			continue
		}
		fw, err := mw.CreateFormFile(field, field+".txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postComparison(t *testing.T, h http.Handler, files map[string]string, accept string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/v1/comparisons", body)
	req.Header.Set("Content-Type", contentType)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

var bothFiles = map[string]string{"publication1": "trial one text", "publication2": "trial two text"}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (code, stage, runID string) {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Stage string `json:"stage"`
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Error.Code, body.Stage, body.RunID
}

func TestCompareCompletedIsRecorded(t *testing.T) {
	cmp := &fakeComparer{out: completedOutcome("run-1")}
	runs := newTestStore(t)
	h := NewServer(cmp, Options{Runs: runs})

	rr := postComparison(t, h, bothFiles, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var env efficacylens.ResponseEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "run-1", env.RunID)
	assert.Equal(t, efficacylens.StatusCompleted, env.Status)
	require.NotNil(t, env.Payload)
	assert.Contains(t, env.ReportMarkdown, "## Comparison Table")

	assert.Equal(t, "publication1.txt", cmp.req.Publication1Name)
	assert.Equal(t, "publication2.txt", cmp.req.Publication2Name)
	assert.Equal(t, [2]string{"trial one text", "trial two text"}, cmp.contents)

	_, err := os.Stat(cmp.req.Publication1Path)
	assert.True(t, os.IsNotExist(err), "uploads are removed after the request")

	run, saved, err := runs.Get(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "melanoma", run.Disease1)
	assert.Equal(t, env.ReportMarkdown, saved.ReportMarkdown)
}

func TestCompareRejectedReturns422(t *testing.T) {
	h := NewServer(&fakeComparer{out: rejectedOutcome("run-2")}, Options{})

	rr := postComparison(t, h, bothFiles, "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var env efficacylens.ResponseEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NotNil(t, env.Rejection)
	assert.Equal(t, "migraine", env.Rejection.Publication2Disease)
	assert.Nil(t, env.Payload)
	assert.Contains(t, env.ReportMarkdown, "Comparative Analysis Not Possible")
}

func TestCompareFailuresMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		stage  string
	}{
		{
			name:   "extraction",
			err:    &efficacylens.StageError{Stage: "extracting", Err: fmt.Errorf("%w: a.pdf: no text content", efficacylens.ErrExtraction)},
			status: http.StatusBadRequest,
			code:   "extraction_failed",
			stage:  "extracting",
		},
		{
			name: "service",
			err: &efficacylens.StageError{Stage: "analyzing", Err: &efficacylens.ServiceCallError{
				Stage: "comparison", Class: efficacylens.FailureServer, Err: errors.New("503"),
			}},
			status: http.StatusBadGateway,
			code:   "service_call_failed",
			stage:  "analyzing",
		},
		{
			name: "malformed",
			err: &efficacylens.StageError{Stage: "analyzing", Err: &efficacylens.MalformedResponseError{
				Stage: "comparison", Preview: "not json", Err: errors.New("no structured content found"),
			}},
			status: http.StatusBadGateway,
			code:   "malformed_response",
			stage:  "analyzing",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal",
			stage:  "pipeline",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runs := newTestStore(t)
			h := NewServer(&fakeComparer{out: failedOutcome("run-x", tc.err), err: tc.err}, Options{Runs: runs})

			rr := postComparison(t, h, bothFiles, "")
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			code, stage, runID := decodeError(t, rr)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.stage, stage)
			assert.Equal(t, "run-x", runID)

			run, _, err := runs.Get(t.Context(), "run-x")
			require.NoError(t, err)
			assert.Equal(t, efficacylens.StatusFailed, run.Status)
		})
	}
}

func TestCompareRequiresBothFiles(t *testing.T) {
	cmp := &fakeComparer{out: completedOutcome("run-1")}
	h := NewServer(cmp, Options{})

	rr := postComparison(t, h, map[string]string{"publication1": "only one"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	code, _, _ := decodeError(t, rr)
	assert.Equal(t, "invalid_request", code)
	assert.Equal(t, 0, cmp.calls)

	req := httptest.NewRequest(http.MethodPost, "/v1/comparisons", bytes.NewBufferString(`{"publication1":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCompareRejectsOversizedUpload(t *testing.T) {
	cmp := &fakeComparer{out: completedOutcome("run-1")}
	h := NewServer(cmp, Options{MaxUploadBytes: 64})

	big := string(bytes.Repeat([]byte("x"), 4096))
	rr := postComparison(t, h, map[string]string{"publication1": big, "publication2": big}, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, 0, cmp.calls)
}

func TestCompareStreamsStates(t *testing.T) {
	h := NewServer(&fakeComparer{out: completedOutcome("run-1")}, Options{})

	rr := postComparison(t, h, bothFiles, "text/event-stream")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, "event: state\ndata: {\"message\":\"Extracting publication text...\",\"state\":\"extracting\"}\n\n")
	assert.Contains(t, body, "event: result\n")
	assert.Contains(t, body, `"run_id":"run-1"`)
	assert.Less(t, bytes.Index(rr.Body.Bytes(), []byte("event: state")), bytes.Index(rr.Body.Bytes(), []byte("event: result")))
}

func TestCompareStreamsError(t *testing.T) {
	err := &efficacylens.StageError{Stage: "extracting", Err: fmt.Errorf("%w: a.pdf", efficacylens.ErrExtraction)}
	h := NewServer(&fakeComparer{out: failedOutcome("run-1", err), err: err}, Options{})

	rr := postComparison(t, h, bothFiles, "text/event-stream")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "event: error\n")
	assert.Contains(t, rr.Body.String(), `"code":"extraction_failed"`)
	assert.NotContains(t, rr.Body.String(), "event: result")
}

func TestHistoryDisabled(t *testing.T) {
	h := NewServer(&fakeComparer{}, Options{})
	for _, path := range []string{"/v1/comparisons", "/v1/comparisons/run-1", "/v1/comparisons/run-1/report.md"} {
		rr := get(t, h, path)
		assert.Equal(t, http.StatusNotImplemented, rr.Code, path)
	}
}

func TestGetRunNotFound(t *testing.T) {
	h := NewServer(&fakeComparer{}, Options{Runs: newTestStore(t)})
	rr := get(t, h, "/v1/comparisons/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	code, _, _ := decodeError(t, rr)
	assert.Equal(t, "not_found", code)
}

func TestReportFormats(t *testing.T) {
	runs := newTestStore(t)
	pdf := &fakePDF{}
	h := NewServer(&fakeComparer{out: completedOutcome("run-1")}, Options{Runs: runs, PDF: pdf})
	require.Equal(t, http.StatusOK, postComparison(t, h, bothFiles, "").Code)

	rr := get(t, h, "/v1/comparisons/run-1/report.md")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "# Clinical Trial Comparison Analysis")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "efficacylens-run-1.md")

	rr = get(t, h, "/v1/comparisons/run-1/report.xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rr = get(t, h, "/v1/comparisons/run-1/report.pdf")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.7 run-1", rr.Body.String())
	assert.Equal(t, 1, pdf.calls)

	rr = get(t, h, "/v1/comparisons/run-1/report.docx")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReportPDFDisabled(t *testing.T) {
	runs := newTestStore(t)
	h := NewServer(&fakeComparer{out: completedOutcome("run-1")}, Options{Runs: runs})
	require.Equal(t, http.StatusOK, postComparison(t, h, bothFiles, "").Code)

	rr := get(t, h, "/v1/comparisons/run-1/report.pdf")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestListRuns(t *testing.T) {
	runs := newTestStore(t)
	cmp := &fakeComparer{out: completedOutcome("run-1")}
	h := NewServer(cmp, Options{Runs: runs})
	require.Equal(t, http.StatusOK, postComparison(t, h, bothFiles, "").Code)

	rejected := rejectedOutcome("run-2")
	rejected.Metadata.StartedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cmp.out = rejected
	require.Equal(t, http.StatusUnprocessableEntity, postComparison(t, h, bothFiles, "").Code)

	var body struct {
		OK   bool        `json:"ok"`
		Runs []store.Run `json:"runs"`
	}
	rr := get(t, h, "/v1/comparisons")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "run-2", body.Runs[0].RunID)

	rr = get(t, h, "/v1/comparisons?status=completed&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-1", body.Runs[0].RunID)
}

func TestHealth(t *testing.T) {
	h := NewServer(&fakeComparer{}, Options{PDF: &fakePDF{}})
	rr := get(t, h, "/v1/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true,"history":false,"pdf":true}`, rr.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(&fakeComparer{}, Options{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
