package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/paper-archiver/internal/config"
	"github.com/JakeFAU/paper-archiver/internal/converter/headless"
)

type fakeConverter struct {
	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *fakeConverter) Convert(_ context.Context, documentPath string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := headless.ArtifactPath(documentPath)
	if err := os.WriteFile(out, []byte("%PDF-1.4"), 0o600); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeConverter) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func useFakeConverter(t *testing.T) *fakeConverter {
	t.Helper()
	fake := &fakeConverter{}
	prev := newConverter
	newConverter = func(headless.Config) (converter, error) { return fake, nil }
	t.Cleanup(func() { newConverter = prev })
	return fake
}

// newInstapaperServer serves two home pages and one folder page. Article 3
// always fails.
func newInstapaperServer(t *testing.T) *httptest.Server {
	t.Helper()

	articles := map[string]string{"1": "First Post", "2": "Second Post", "4": "Go Tips"}
	mux := http.NewServeMux()
	mux.HandleFunc("/user/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.ParseForm() != nil ||
			r.PostForm.Get("username") != "reader" || r.PostForm.Get("password") != "secret" ||
			r.PostForm.Get("keep_logged_in") != "yes" {
			http.Error(w, "bad login", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "pfu", Value: "1", Path: "/"})
		_, _ = w.Write([]byte(`<p>welcome</p>`))
	})
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := r.Cookie("pfu"); err != nil {
				http.Error(w, "login required", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/u/1", authed(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div id="article_list"><article id="article_1"></article><article id="article_2"></article></div><a class="paginate_older" href="/u/2">older</a>`))
	}))
	mux.HandleFunc("/u/2", authed(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div id="article_list"><article id="article_3"></article></div>`))
	}))
	mux.HandleFunc("/u/folder/9/golang/1", authed(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div id="article_list"><article id="article_4"></article></div>`))
	}))
	mux.HandleFunc("/read/", authed(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/read/")
		title, ok := articles[id]
		if !ok {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `<div id="titlebar"><h1>%s</h1><div class="origin_line">example.com</div></div><div id="story"><p>body %s</p></div>`, title, id)
	}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeConfig(t *testing.T, dir, baseURL, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
instapaper:
  base_url: %s
  categories:
    - name: golang
      id: 9
    - name: career
      id: 10
output:
  root: %s
  failure_log: %s
pipeline:
  min_interval: 0s
%s`, baseURL, filepath.Join(dir, "pdfs", "homepage"), filepath.Join(dir, "failed.txt"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestArchiveRequiresCredentials(t *testing.T) {
	t.Setenv(config.UsernameEnv, "")
	t.Setenv(config.PasswordEnv, "")

	conv := useFakeConverter(t)
	out, err := executeRoot(t, "archive", "--config", writeConfig(t, t.TempDir(), "http://127.0.0.1:1/", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, errReported)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Equal(t, config.MissingCredentialsMessage+"\n", out)
	assert.Zero(t, conv.calls)
}

func TestArchiveRunsAllCollections(t *testing.T) {
	t.Setenv(config.UsernameEnv, "reader")
	t.Setenv(config.PasswordEnv, "secret")

	conv := useFakeConverter(t)
	server := newInstapaperServer(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, server.URL, "")

	out, err := executeRoot(t, "archive", "--config", cfgPath, "--category", "golang")
	require.NoError(t, err)

	assert.Contains(t, out, server.URL+"/u/ - Page 1\n")
	assert.Contains(t, out, server.URL+"/u/ - Page 2\n")
	assert.Contains(t, out, server.URL+"/u/folder/9/golang/ - Page 1\n")
	assert.NotContains(t, out, "career")
	assert.Contains(t, out, "  3: failed downloading the item")
	assert.True(t, conv.closed)
	assert.Equal(t, 3, conv.calls)

	home := filepath.Join(dir, "pdfs", "homepage")
	assert.FileExists(t, filepath.Join(home, "1 First Post.pdf"))
	assert.FileExists(t, filepath.Join(home, "2 Second Post.pdf"))
	assert.FileExists(t, filepath.Join(home, "golang", "4 Go Tips.pdf"))
	assert.NoFileExists(t, filepath.Join(home, "1 First Post.html"))

	failed, err := os.ReadFile(filepath.Join(dir, "failed.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(failed), "3\t"), "unexpected failure log %q", failed)

	// A second run skips everything already archived.
	out, err = executeRoot(t, "archive", "--config", cfgPath, "--category", "golang")
	require.NoError(t, err)
	assert.Contains(t, out, "  1: exists\n")
	assert.Contains(t, out, "  2: exists\n")
	assert.Contains(t, out, "  4: exists\n")
	assert.Equal(t, 3, conv.calls)

	out, err = executeRoot(t, "failures", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 failed item(s)")
}

func TestArchiveSkipHome(t *testing.T) {
	t.Setenv(config.UsernameEnv, "reader")
	t.Setenv(config.PasswordEnv, "secret")

	useFakeConverter(t)
	server := newInstapaperServer(t)
	dir := t.TempDir()

	out, err := executeRoot(t, "archive", "--config", writeConfig(t, dir, server.URL, ""), "--skip-home", "--category", "golang")
	require.NoError(t, err)
	assert.NotContains(t, out, server.URL+"/u/ - Page")
	assert.FileExists(t, filepath.Join(dir, "pdfs", "homepage", "golang", "4 Go Tips.pdf"))
}

func TestArchiveContinuesAfterCollectionError(t *testing.T) {
	t.Setenv(config.UsernameEnv, "reader")
	t.Setenv(config.PasswordEnv, "secret")

	useFakeConverter(t)
	server := newInstapaperServer(t)
	dir := t.TempDir()

	// The career folder is not served, so only that collection aborts.
	out, err := executeRoot(t, "archive", "--config", writeConfig(t, dir, server.URL, ""), "--skip-home")
	require.NoError(t, err)
	assert.Contains(t, out, server.URL+"/u/folder/10/career/ - Page 1\n")
	assert.FileExists(t, filepath.Join(dir, "pdfs", "homepage", "golang", "4 Go Tips.pdf"))
}

func TestArchiveBadLogin(t *testing.T) {
	t.Setenv(config.UsernameEnv, "reader")
	t.Setenv(config.PasswordEnv, "wrong")

	conv := useFakeConverter(t)
	server := newInstapaperServer(t)

	_, err := executeRoot(t, "archive", "--config", writeConfig(t, t.TempDir(), server.URL, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
	assert.Zero(t, conv.calls)
}

func TestArchiveUnknownCategory(t *testing.T) {
	t.Setenv(config.UsernameEnv, "reader")
	t.Setenv(config.PasswordEnv, "secret")

	useFakeConverter(t)
	_, err := executeRoot(t, "archive", "--config", writeConfig(t, t.TempDir(), "http://127.0.0.1:1/", ""), "--category", "knitting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "knitting")
}

func TestArchiveMirrorsToGCS(t *testing.T) {
	t.Setenv(config.UsernameEnv, "reader")
	t.Setenv(config.PasswordEnv, "secret")

	useFakeConverter(t)
	server := newInstapaperServer(t)

	var (
		mu    sync.Mutex
		names []string
	)
	gcsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		name := r.URL.Query().Get("name")
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
		fmt.Fprintln(w, `{"name": "`+name+`", "bucket": "archive-bucket"}`)
	}))
	t.Cleanup(gcsServer.Close)

	prev := newStorageClient
	newStorageClient = func(ctx context.Context) (*storage.Client, error) {
		return storage.NewClient(ctx, option.WithEndpoint(gcsServer.URL), option.WithoutAuthentication())
	}
	t.Cleanup(func() { newStorageClient = prev })

	extra := "storage:\n  gcs_bucket: archive-bucket\n  prefix: instapaper\n"
	_, err := executeRoot(t, "archive", "--config", writeConfig(t, t.TempDir(), server.URL, extra), "--category", "golang")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		"instapaper/1 First Post.pdf",
		"instapaper/2 Second Post.pdf",
		"instapaper/golang/4 Go Tips.pdf",
	}, names)
}
