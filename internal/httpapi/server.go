package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/joelkehle/efficacylens/internal/render"
	"github.com/joelkehle/efficacylens/internal/store"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes = 40 << 20
	multipartMemory       = 8 << 20
	defaultListLimit      = 50
)

// Comparer runs one comparison. *efficacylens.Pipeline satisfies it.
type Comparer interface {
	CompareWithProgress(ctx context.Context, req efficacylens.Request, progress efficacylens.ProgressFn) (efficacylens.Outcome, error)
}

type RunStore interface {
	Save(ctx context.Context, env efficacylens.ResponseEnvelope) error
	Get(ctx context.Context, runID string) (store.Run, efficacylens.ResponseEnvelope, error)
	List(ctx context.Context, filter store.ListFilter) ([]store.Run, error)
}

type PDFRenderer interface {
	Render(ctx context.Context, env efficacylens.ResponseEnvelope) ([]byte, error)
}

type Options struct {
	// Runs is optional; without it comparisons are not kept and history
	// endpoints answer 501.
	Runs           RunStore
	PDF            PDFRenderer
	Logger         *zap.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Server struct {
	comparer  Comparer
	runs      RunStore
	pdf       PDFRenderer
	logger    *zap.Logger
	maxUpload int64
}

func NewServer(comparer Comparer, opts Options) http.Handler {
	s := &Server{
		comparer:  comparer,
		runs:      opts.Runs,
		pdf:       opts.PDF,
		logger:    opts.Logger,
		maxUpload: opts.MaxUploadBytes,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/v1/health", s.handleHealth)
	r.Route("/v1/comparisons", func(r chi.Router) {
		r.Post("/", s.handleCompare)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/report.{format}", s.handleReport)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody(code, message, ""))
}

func errorBody(code, message, runID string) map[string]any {
	body := map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if runID != "" {
		body["run_id"] = runID
	}
	return body
}

// classify maps a pipeline error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, efficacylens.ErrExtraction):
		return http.StatusBadRequest, "extraction_failed"
	case errors.Is(err, efficacylens.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response"
	case errors.Is(err, efficacylens.ErrServiceCall):
		return http.StatusBadGateway, "service_call_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func outcomeStatus(out efficacylens.Outcome) int {
	if out.Status == efficacylens.StatusRejected {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"history": s.runs != nil,
		"pdf":     s.pdf != nil,
	})
}

// handleCompare accepts multipart fields publication1 and publication2. With
// Accept: text/event-stream the pipeline states are streamed as server-sent
// events followed by a final result or error event.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with publication1 and publication2")
		return
	}
	defer r.MultipartForm.RemoveAll()

	dir, err := os.MkdirTemp("", "efficacylens-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	defer os.RemoveAll(dir)

	req := efficacylens.Request{}
	req.Publication1Path, req.Publication1Name, err = saveUpload(r, "publication1", filepath.Join(dir, "1"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Publication2Path, req.Publication2Name, err = saveUpload(r, "publication2", filepath.Join(dir, "2"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamCompare(w, r, req)
		return
	}

	out, err := s.comparer.CompareWithProgress(r.Context(), req, nil)
	env := s.record(r.Context(), out)
	if err != nil {
		status, code := classify(err)
		body := errorBody(code, err.Error(), out.RunID)
		body["stage"] = efficacylens.StageNameFromError(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, outcomeStatus(out), env)
}

func (s *Server) streamCompare(w http.ResponseWriter, r *http.Request, req efficacylens.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	send := func(event string, payload any) {
		blob, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", event, blob)
		if bw.Flush() == nil {
			flusher.Flush()
		}
	}

	out, err := s.comparer.CompareWithProgress(r.Context(), req, func(state efficacylens.State, message string) {
		send("state", map[string]string{"state": string(state), "message": message})
	})
	env := s.record(r.Context(), out)
	if err != nil {
		_, code := classify(err)
		body := errorBody(code, err.Error(), out.RunID)
		body["stage"] = efficacylens.StageNameFromError(err)
		send("error", body)
		return
	}
	send("result", env)
}

// record builds the envelope for an outcome and keeps it in run history.
func (s *Server) record(ctx context.Context, out efficacylens.Outcome) efficacylens.ResponseEnvelope {
	env := efficacylens.BuildResponse(out)
	if s.runs == nil || env.RunID == "" {
		return env
	}
	if err := s.runs.Save(context.WithoutCancel(ctx), env); err != nil {
		s.logger.Error("save run failed", zap.String("run_id", env.RunID), zap.Error(err))
	}
	return env
}

func saveUpload(r *http.Request, field, dir string) (path, name string, err error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", "", fmt.Errorf("missing file field %q", field)
	}
	defer file.Close()
	return writeUpload(file, header, dir)
}

func writeUpload(file multipart.File, header *multipart.FileHeader, dir string) (string, string, error) {
	name := filepath.Base(filepath.Clean("/" + header.Filename))
	if name == "/" || name == "." {
		name = "upload"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", err
	}
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", "", fmt.Errorf("store upload %s: %w", name, err)
	}
	return path, name, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "run history is not configured")
		return
	}
	filter := store.ListFilter{
		Status: efficacylens.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  parseInt(r.URL.Query().Get("limit"), defaultListLimit),
	}
	runs, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (efficacylens.ResponseEnvelope, bool) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, "history_disabled", "run history is not configured")
		return efficacylens.ResponseEnvelope{}, false
	}
	id := chi.URLParam(r, "id")
	_, env, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("run %q not found", id))
		return efficacylens.ResponseEnvelope{}, false
	}
	if err != nil {
		s.logger.Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return efficacylens.ResponseEnvelope{}, false
	}
	return env, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	env, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	switch format {
	case "md", "pdf", "xlsx":
	default:
		writeError(w, http.StatusNotFound, "unknown_format", fmt.Sprintf("unsupported report format %q", format))
		return
	}
	if format == "pdf" && s.pdf == nil {
		writeError(w, http.StatusNotImplemented, "pdf_disabled", "no PDF renderer configured")
		return
	}
	env, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	var (
		body        []byte
		contentType string
		err         error
	)
	switch format {
	case "md":
		if env.ReportMarkdown == "" {
			env, err = efficacylens.RebuildResponseFromEnvelope(env)
		}
		body, contentType = []byte(env.ReportMarkdown), "text/markdown; charset=utf-8"
	case "pdf":
		body, err = s.pdf.Render(r.Context(), env)
		contentType = "application/pdf"
	case "xlsx":
		body, err = render.Workbook(env)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		s.logger.Error("render report failed", zap.String("run_id", env.RunID), zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="efficacylens-%s.%s"`, env.RunID, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
