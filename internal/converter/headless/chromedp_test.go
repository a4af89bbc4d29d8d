package headless

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{PageSize: "Tabloid"}); err == nil {
		t.Fatal("expected error for unsupported page size")
	}
	if _, err := NewChromedp(Config{Margin: -1}); err == nil {
		t.Fatal("expected error for negative margin")
	}
	if _, err := NewChromedp(Config{Margin: 5}); err == nil {
		t.Fatal("expected error for margins wider than the page")
	}

	conv, err := NewChromedp(Config{Margin: DefaultMargin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conv.Close()
	if conv.paperWidth != 8.5 || conv.paperHeight != 11 {
		t.Fatalf("expected Letter paper by default, got %vx%v", conv.paperWidth, conv.paperHeight)
	}
	if conv.cfg.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", conv.cfg.Timeout)
	}
}

func TestPageSizeCaseInsensitive(t *testing.T) {
	t.Parallel()

	conv, err := NewChromedp(Config{PageSize: "a4", Margin: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conv.Close()
	if conv.paperWidth != 8.27 {
		t.Fatalf("expected A4 width, got %v", conv.paperWidth)
	}
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"pdfs/homepage/42 Hello.html": "pdfs/homepage/42 Hello.pdf",
		"/abs/7.html":                 "/abs/7.pdf",
		"noext":                       "noext.pdf",
	}
	for in, want := range testCases {
		if got := ArtifactPath(in); got != want {
			t.Errorf("ArtifactPath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestFileURL(t *testing.T) {
	t.Parallel()

	if got := fileURL("/tmp/out/42 Hello World.html"); got != "file:///tmp/out/42%20Hello%20World.html" {
		t.Fatalf("unexpected file url %q", got)
	}
}

func TestInjectStyleScriptQuotesCSS(t *testing.T) {
	t.Parallel()

	script := injectStyleScript("body { font-family: \"Georgia\"; }\n")
	if !strings.Contains(script, `"body { font-family: \"Georgia\"; }\n"`) {
		t.Fatalf("css not quoted as a JS string: %s", script)
	}
}

func TestConvertMissingStylesheet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := filepath.Join(dir, "1 Doc.html")
	if err := os.WriteFile(doc, []byte("<p>x</p>"), 0o600); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	conv, err := NewChromedp(Config{Stylesheet: filepath.Join(dir, "missing.css")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conv.Close()

	_, err = conv.Convert(context.Background(), doc)
	if !errors.Is(err, ErrStylesheet) {
		t.Fatalf("expected ErrStylesheet, got %v", err)
	}
}

func TestConvertMissingDocument(t *testing.T) {
	t.Parallel()

	conv, err := NewChromedp(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conv.Close()

	if _, err := conv.Convert(context.Background(), filepath.Join(t.TempDir(), "nope.html")); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestWriteAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1 Doc.pdf")
	if err := writeAtomic(path, []byte("%PDF-1.4")); err != nil {
		t.Fatalf("writeAtomic() error = %v", err)
	}
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected artifact %q (err %v)", data, err)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected temporary file to be gone, stat err = %v", err)
	}
}

// TestConvertWithChrome renders a real document. It runs only when a Chrome
// binary is available.
func TestConvertWithChrome(t *testing.T) {
	execPath := findChrome()
	if execPath == "" {
		t.Skip("chrome not available")
	}

	dir := t.TempDir()
	css := filepath.Join(dir, "styles.css")
	if err := os.WriteFile(css, []byte("body { font-family: serif; }"), 0o600); err != nil {
		t.Fatalf("write css: %v", err)
	}
	doc := filepath.Join(dir, "42 Hello World.html")
	html := `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body><h1>Hello</h1>` +
		`<img src="https://invalid.example/missing.png"><p>Body</p></body></html>`
	if err := os.WriteFile(doc, []byte(html), 0o600); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	conv, err := NewChromedp(Config{Stylesheet: css, Margin: DefaultMargin, Timeout: 30 * time.Second, ExecPath: execPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conv.Close()

	out, err := conv.Convert(context.Background(), doc)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out != filepath.Join(dir, "42 Hello World.pdf") {
		t.Fatalf("unexpected artifact path %q", out)
	}
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("artifact is not a PDF")
	}
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
