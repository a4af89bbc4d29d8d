// Package headless converts intermediate HTML documents into PDF artifacts
// using headless Chrome via chromedp.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultPageSize = "Letter"
	DefaultMargin   = 0.75
	DefaultTimeout  = 60 * time.Second
	ArtifactExt     = ".pdf"
)

// ErrStylesheet reports a configured stylesheet that cannot be read.
var ErrStylesheet = errors.New("stylesheet unavailable")

// paperSizes maps page size names to width and height in inches.
var paperSizes = map[string][2]float64{
	"letter": {8.5, 11},
	"legal":  {8.5, 14},
	"a4":     {8.27, 11.69},
	"a5":     {5.83, 8.27},
}

// Config controls PDF rendering.
type Config struct {
	// PageSize is one of Letter, Legal, A4 or A5.
	PageSize string
	// Margin is applied to all four sides, in inches.
	Margin float64
	// Stylesheet is a CSS file injected into every document. Empty disables
	// injection.
	Stylesheet string
	// Timeout bounds a single conversion.
	Timeout time.Duration
	// ExecPath overrides the Chrome binary chromedp looks up.
	ExecPath string
}

// Converter implements archive.Converter with one shared browser; every
// conversion runs in its own tab.
type Converter struct {
	cfg           Config
	paperWidth    float64
	paperHeight   float64
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromedp creates a converter. The browser is started lazily on the
// first conversion.
func NewChromedp(cfg Config) (*Converter, error) {
	if cfg.PageSize == "" {
		cfg.PageSize = DefaultPageSize
	}
	size, ok := paperSizes[strings.ToLower(cfg.PageSize)]
	if !ok {
		return nil, fmt.Errorf("unsupported page size %q", cfg.PageSize)
	}
	if cfg.Margin < 0 {
		return nil, fmt.Errorf("margin must be >= 0")
	}
	if cfg.Margin*2 >= size[0] || cfg.Margin*2 >= size[1] {
		return nil, fmt.Errorf("margin %.2fin leaves no printable area on %s", cfg.Margin, cfg.PageSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Converter{
		cfg:           cfg,
		paperWidth:    size[0],
		paperHeight:   size[1],
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down.
func (c *Converter) Close() {
	c.browserCancel()
	c.allocCancel()
}

// Convert renders documentPath into a PDF next to it and returns the PDF
// path. The PDF is written under a temporary name and renamed into place,
// so a finished artifact is never observed half written.
func (c *Converter) Convert(ctx context.Context, documentPath string) (string, error) {
	abs, err := filepath.Abs(documentPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", documentPath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	css, err := c.stylesheet()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()
	taskCtx, cancel := context.WithTimeout(tabCtx, c.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	if err := chromedp.Run(taskCtx, c.printActions(fileURL(abs), css, &pdf)...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	if len(pdf) == 0 {
		return "", fmt.Errorf("renderer returned an empty document")
	}

	out := ArtifactPath(documentPath)
	if err := writeAtomic(out, pdf); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Converter) printActions(target, css string, pdf *[]byte) []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if css != "" {
		actions = append(actions, chromedp.Evaluate(injectStyleScript(css), nil))
	}
	return append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		m := c.cfg.Margin
		buf, _, err := page.PrintToPDF().
			WithPaperWidth(c.paperWidth).
			WithPaperHeight(c.paperHeight).
			WithMarginTop(m).
			WithMarginRight(m).
			WithMarginBottom(m).
			WithMarginLeft(m).
			WithPrintBackground(true).
			WithGenerateDocumentOutline(false).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("print to pdf: %w", err)
		}
		*pdf = buf
		return nil
	}))
}

func (c *Converter) stylesheet() (string, error) {
	if c.cfg.Stylesheet == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.cfg.Stylesheet)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStylesheet, err)
	}
	return string(data), nil
}

// ArtifactPath returns the PDF path for an intermediate document.
func ArtifactPath(documentPath string) string {
	return strings.TrimSuffix(documentPath, filepath.Ext(documentPath)) + ArtifactExt
}

func injectStyleScript(css string) string {
	quoted, _ := json.Marshal(css)
	return fmt.Sprintf(`(function(css){var s=document.createElement("style");s.textContent=css;(document.head||document.documentElement).appendChild(s);})(%s)`, quoted)
}

func fileURL(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
