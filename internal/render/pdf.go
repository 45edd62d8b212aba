package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
)

const defaultPDFTimeout = 30 * time.Second

type ChromiumPDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

// NewChromiumPDFRenderer uses chromePath when set, otherwise the first
// Chromium or Chrome binary found in the usual locations.
func NewChromiumPDFRenderer(chromePath string, timeout time.Duration) *ChromiumPDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	if timeout <= 0 {
		timeout = defaultPDFTimeout
	}
	return &ChromiumPDFRenderer{chromePath: chromePath, timeout: timeout}
}

// Render prints the report to a landscape PDF with page numbers in the footer.
func (r *ChromiumPDFRenderer) Render(ctx context.Context, env efficacylens.ResponseEnvelope) ([]byte, error) {
	doc, err := HTML(env)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err = chromedp.Run(browserCtx, chromedp.Tasks{
		chromedp.Navigate("data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))),
		chromedp.WaitReady("body", chromedp.ByQuery),
		printToPDF(&pdf),
	})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

func (r *ChromiumPDFRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	return opts
}

const pdfFooter = `<div style="width:100%;text-align:center;font-size:8px;color:#57534e;">` +
	`EfficacyLens &middot; page <span class="pageNumber"></span> / <span class="totalPages"></span></div>`

func printToPDF(out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithLandscape(true).
			WithPrintBackground(true).
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate(`<span></span>`).
			WithFooterTemplate(pdfFooter).
			WithMarginTop(0.4).
			WithMarginBottom(0.6).
			WithMarginLeft(0.4).
			WithMarginRight(0.4).
			Do(ctx)
		*out = buf
		return err
	})
}

func detectChromePath() string {
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
