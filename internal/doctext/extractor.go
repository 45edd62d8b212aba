// Package doctext turns publication files into plain text for analysis.
package doctext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
	"go.uber.org/zap"
)

const (
	DefaultMaxBytes = 20 * 1024 * 1024
	minTextRun      = 24
)

const (
	MethodPDFText      = "pdf-text"
	MethodPdftotext    = "pdftotext"
	MethodByteFallback = "byte-fallback"
	MethodDocument     = "document"
	MethodPlain        = "plain"
)

var ErrNoText = errors.New("no extractable text found")

type Result struct {
	Text   string
	Method string
	Pages  int
}

type Extractor struct {
	logger    *zap.Logger
	pdftotext string
	maxBytes  int64
}

type Option func(*Extractor)

// WithPdftotext sets the pdftotext binary used when the PDF reader yields
// nothing. An empty path disables the fallback.
func WithPdftotext(path string) Option { return func(e *Extractor) { e.pdftotext = path } }

func WithMaxBytes(n int64) Option { return func(e *Extractor) { e.maxBytes = n } }

func New(logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{logger: logger, pdftotext: "pdftotext", maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	res, err := e.Extract(ctx, path)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}
	if e.maxBytes > 0 && info.Size() > e.maxBytes {
		return Result{}, fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), e.maxBytes)
	}

	var res Result
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		res, err = e.extractPDF(ctx, path)
	case ".odt", ".rtf":
		var text string
		text, err = cat.File(path)
		res = Result{Text: text, Method: MethodDocument}
	case ".txt", ".md", "":
		var b []byte
		b, err = os.ReadFile(path)
		res = Result{Text: strings.ToValidUTF8(string(b), "\uFFFD"), Method: MethodPlain}
	default:
		return Result{}, fmt.Errorf("unsupported document type %q", ext)
	}
	if err != nil {
		return Result{}, err
	}

	res.Text = Clean(res.Text)
	if res.Text == "" {
		return Result{}, ErrNoText
	}
	e.logger.Info("extracted document text",
		zap.String("file", filepath.Base(path)),
		zap.String("method", res.Method),
		zap.Int("pages", res.Pages),
		zap.Int("chars", len([]rune(res.Text))))
	return res, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}

	text, pages, err := readPDFPages(blob)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: text, Method: MethodPDFText, Pages: pages}, nil
	}
	if err != nil {
		e.logger.Debug("pdf reader failed", zap.String("file", filepath.Base(path)), zap.Error(err))
	}

	if e.pdftotext != "" {
		if text, err := runPdftotext(ctx, e.pdftotext, path); err == nil && strings.TrimSpace(text) != "" {
			return Result{Text: text, Method: MethodPdftotext}, nil
		} else if err != nil {
			e.logger.Debug("pdftotext failed", zap.String("file", filepath.Base(path)), zap.Error(err))
		}
	}

	fallback := printableRuns(blob)
	if fallback == "" {
		return Result{}, ErrNoText
	}
	return Result{Text: fallback, Method: MethodByteFallback}, nil
}

func readPDFPages(blob []byte) (text string, pages int, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", 0, fmt.Errorf("open PDF: %w", err)
	}
	var buf strings.Builder
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(pageText)
		buf.WriteByte('\n')
		pages++
	}
	return buf.String(), pages, nil
}

func runPdftotext(ctx context.Context, bin, path string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func printableRuns(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= minTextRun {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if r < unicode.MaxASCII && (unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.Join(runs, "\n")
}

// Clean collapses all whitespace to single spaces and normalizes common PDF
// artifacts.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\uf0b7", "•")
	return strings.Join(strings.Fields(text), " ")
}
