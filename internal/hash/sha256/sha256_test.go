// Package sha256 includes tests for the artifact checksum helpers.
package sha256

import (
	"testing"

	"github.com/spf13/afero"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

// TestFileDigest checks the streamed digest against a known value and that
// repeated hashing yields the same digest.
func TestFileDigest(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "pdfs/1 Doc.pdf", []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := File(fs, "pdfs/1 Doc.pdf")
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if got != helloDigest {
		t.Fatalf("expected %s, got %s", helloDigest, got)
	}
	again, err := File(fs, "pdfs/1 Doc.pdf")
	if err != nil {
		t.Fatalf("File() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

// TestFileMissing reports an error for absent files.
func TestFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := File(afero.NewMemMapFs(), "missing.pdf"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
