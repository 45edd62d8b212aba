package efficacylens

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrExtraction        = errors.New("text extraction failed")
	ErrServiceCall       = errors.New("analysis service call failed")
	ErrMalformedResponse = errors.New("malformed response")

	errEmptyReply = errors.New("empty reply")
	errNoJSON     = errors.New("no structured content found")
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

type FailureClass string

const (
	FailureTimeout   FailureClass = "timeout"
	FailureRateLimit FailureClass = "rate_limit"
	FailureServer    FailureClass = "server"
	FailureClient    FailureClass = "client"
)

// ServiceCallError is returned when the analysis service itself fails. The
// class is informational; nothing in this package retries on it.
type ServiceCallError struct {
	Stage string
	Class FailureClass
	Err   error
}

func (e *ServiceCallError) Error() string {
	return fmt.Sprintf("%s service call failed (%s): %v", e.Stage, e.Class, e.Err)
}

func (e *ServiceCallError) Unwrap() []error { return []error{ErrServiceCall, e.Err} }

type MalformedResponseError struct {
	Stage   string
	Preview string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Preview == "" {
		return fmt.Sprintf("%s: malformed response: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %v (reply preview: %q)", e.Stage, e.Err, e.Preview)
}

func (e *MalformedResponseError) Unwrap() []error { return []error{ErrMalformedResponse, e.Err} }

func classifyTransportError(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return FailureRateLimit
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return FailureServer
	case strings.Contains(msg, "status code: 4") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return FailureClient
	default:
		return FailureServer
	}
}

func preview(raw string) string {
	return truncateChars(strings.TrimSpace(raw), MaxPreviewChars)
}
