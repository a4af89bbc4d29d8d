// Package local implements the on-disk item store: the output folder layout,
// the artifact dedup lookup and the intermediate documents handed to the
// converter.
package local

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/paper-archiver/internal/archive"
)

// Default file extensions.
const (
	DefaultArtifactExt = ".pdf"
	DocumentExt        = ".html"
)

// Config captures the parameters for the local item store.
type Config struct {
	// Root is the output folder; collection subfolders are created below it.
	Root string `mapstructure:"root" yaml:"root"`
	// ArtifactExt is the extension of finished artifacts.
	ArtifactExt string `mapstructure:"artifact_ext" yaml:"artifact_ext"`
}

// Store keeps artifacts and intermediate documents on an afero filesystem.
// The presence of a finished artifact is the only archive state.
type Store struct {
	fs   afero.Fs
	root string
	ext  string
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<div id="origin">{{.Origin}} · {{.ID}}</div>
{{.Body}}
</body>
</html>
`))

type documentView struct {
	ID     string
	Title  string
	Origin string
	Body   template.HTML
}

// New creates a store rooted at cfg.Root, creating the folder if needed.
func New(fs afero.Fs, cfg Config) (*Store, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	ext := cfg.ArtifactExt
	if ext == "" {
		ext = DefaultArtifactExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == DocumentExt {
		return nil, fmt.Errorf("artifact extension must differ from %s", DocumentExt)
	}

	info, err := fs.Stat(cfg.Root)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("root path %s is not a directory", cfg.Root)
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if err := fs.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Store{
		fs:   fs,
		root: filepath.Clean(cfg.Root),
		ext:  ext,
	}, nil
}

// Root returns the output root folder.
func (s *Store) Root() string {
	return s.root
}

// Prepare returns the folder for a collection and creates it on demand.
// An empty subfolder selects the root.
func (s *Store) Prepare(subfolder string) (string, error) {
	folder := s.root
	if subfolder != "" {
		folder = filepath.Join(s.root, subfolder)
		if !strings.HasPrefix(folder, s.root+string(filepath.Separator)) {
			return "", fmt.Errorf("subfolder %q escapes the output root", subfolder)
		}
	}
	if err := s.fs.MkdirAll(folder, 0o750); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	return folder, nil
}

// Lookup scans folder for a finished artifact of itemID. Artifacts are named
// after the sanitized ID, so a file matches when its name is "<key><ext>" or
// starts with "<key> " and ends with the artifact extension, where key is
// the sanitized ID. Intermediate documents and IDs sharing a prefix never
// match.
func (s *Store) Lookup(folder, itemID string) (string, bool, error) {
	if strings.TrimSpace(itemID) == "" {
		return "", false, fmt.Errorf("item id is required")
	}
	key := archive.Sanitize(itemID, "")
	if strings.TrimSpace(key) == "" {
		return "", false, fmt.Errorf("item id %q has no filename characters", itemID)
	}
	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		return "", false, fmt.Errorf("read folder %s: %w", folder, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, s.ext) {
			continue
		}
		stem := strings.TrimSuffix(name, s.ext)
		if stem == key || strings.HasPrefix(stem, key+" ") {
			return filepath.Join(folder, name), true, nil
		}
	}
	return "", false, nil
}

// WriteDocument renders doc as an intermediate HTML document named after its
// sanitized stem and returns its path.
func (s *Store) WriteDocument(folder string, doc archive.Document) (string, error) {
	stem := doc.Stem()
	if stem == "" {
		return "", fmt.Errorf("item %q has an empty filename stem", doc.ID)
	}
	var buf bytes.Buffer
	view := documentView{
		ID:     doc.ID,
		Title:  doc.Title,
		Origin: doc.Origin,
		// #nosec G203 -- the body is the item's own markup and is passed through untouched.
		Body: template.HTML(doc.Body),
	}
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render document %s: %w", doc.ID, err)
	}
	target := filepath.Join(folder, stem+DocumentExt)
	if err := afero.WriteFile(s.fs, target, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", target, err)
	}
	return target, nil
}

// Remove deletes an intermediate document.
func (s *Store) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
