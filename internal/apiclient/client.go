// Package apiclient talks to a running efficacylens HTTP API.
package apiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/joelkehle/efficacylens/internal/store"
)

const (
	callTimeout  = 15 * time.Second
	maxEventSize = 64 << 20
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Stage   string
	RunID   string
}

func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s (%s, status %d): %s", e.Code, e.Stage, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps server error codes back onto the pipeline's sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "extraction_failed":
		return efficacylens.ErrExtraction
	case "service_call_failed":
		return efficacylens.ErrServiceCall
	case "malformed_response":
		return efficacylens.ErrMalformedResponse
	case "not_found":
		return ErrNotFound
	}
	return nil
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Stage string `json:"stage"`
	RunID string `json:"run_id"`
}

func (b errorBody) apiError(status int) *APIError {
	return &APIError{Status: status, Code: b.Error.Code, Message: b.Error.Message, Stage: b.Stage, RunID: b.RunID}
}

func decodeAPIError(status int, blob []byte) *APIError {
	var body errorBody
	if err := json.Unmarshal(blob, &body); err != nil || body.Error.Code == "" {
		return &APIError{Status: status, Code: "http_error", Message: strings.TrimSpace(string(blob))}
	}
	return body.apiError(status)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, nil, decodeAPIError(resp.StatusCode, blob)
	}
	return blob, resp.Header, nil
}

func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodGet, "/v1/health")
	return err
}

func (c *Client) Get(ctx context.Context, runID string) (efficacylens.ResponseEnvelope, error) {
	blob, _, err := c.do(ctx, http.MethodGet, "/v1/comparisons/"+url.PathEscape(runID))
	if err != nil {
		return efficacylens.ResponseEnvelope{}, err
	}
	return efficacylens.DecodeEnvelope(blob)
}

func (c *Client) List(ctx context.Context, filter store.ListFilter) ([]store.Run, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/v1/comparisons"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	blob, _, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Runs []store.Run `json:"runs"`
	}
	if err := json.Unmarshal(blob, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Report downloads a rendered report; format is md, pdf or xlsx.
func (c *Client) Report(ctx context.Context, runID, format string) ([]byte, error) {
	blob, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/comparisons/%s/report.%s", url.PathEscape(runID), format))
	return blob, err
}

// CompareWithProgress uploads both publications and follows the server's
// state stream until the result arrives. It has the same shape as
// efficacylens.Pipeline so callers can switch between local and remote runs.
func (c *Client) CompareWithProgress(ctx context.Context, req efficacylens.Request, progress efficacylens.ProgressFn) (efficacylens.Outcome, error) {
	body, contentType, err := multipartRequest(req)
	if err != nil {
		return efficacylens.Outcome{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/comparisons", body)
	if err != nil {
		return efficacylens.Outcome{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return efficacylens.Outcome{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		blob, _ := io.ReadAll(resp.Body)
		return efficacylens.Outcome{}, decodeAPIError(resp.StatusCode, blob)
	}

	var out efficacylens.Outcome
	done := false
	err = readEvents(resp.Body, func(event string, data []byte) error {
		switch event {
		case "state":
			var st struct {
				State   string `json:"state"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("decode state event: %w", err)
			}
			if progress != nil {
				progress(efficacylens.State(st.State), st.Message)
			}
		case "result":
			env, err := efficacylens.DecodeEnvelope(data)
			if err != nil {
				return err
			}
			if out, err = efficacylens.OutcomeFromEnvelope(env); err != nil {
				return err
			}
			done = true
		case "error":
			var body errorBody
			if err := json.Unmarshal(data, &body); err != nil {
				return fmt.Errorf("decode error event: %w", err)
			}
			apiErr := body.apiError(http.StatusOK)
			out = efficacylens.Outcome{RunID: body.RunID, Status: efficacylens.StatusFailed, Request: req, Error: apiErr.Message}
			done = true
			return apiErr
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	if !done {
		return out, errors.New("comparison stream ended without a result")
	}
	return out, nil
}

// readEvents dispatches each server-sent event until the stream ends or fn
// returns an error.
func readEvents(r io.Reader, fn func(event string, data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	var (
		event string
		data  bytes.Buffer
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 || event != "" {
				if err := fn(event, bytes.TrimSuffix(data.Bytes(), []byte("\n"))); err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	return sc.Err()
}

func multipartRequest(req efficacylens.Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	files := []struct{ field, path, name string }{
		{"publication1", req.Publication1Path, req.Publication1Name},
		{"publication2", req.Publication2Path, req.Publication2Name},
	}
	for _, f := range files {
		if err := addFile(mw, f.field, f.path, f.name); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func addFile(mw *multipart.Writer, field, path, name string) error {
	if name == "" {
		name = filepath.Base(path)
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", efficacylens.ErrExtraction, filepath.Base(path), err)
	}
	defer src.Close()
	dst, err := mw.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
