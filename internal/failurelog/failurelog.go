// Package failurelog implements the append-only log of items that reached a
// terminal failure state.
package failurelog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// DefaultPath is the log location relative to the working directory.
const DefaultPath = "failed.txt"

var flattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// Entry is one parsed failure record.
type Entry struct {
	ItemID  string
	Message string
}

// Log appends tab separated "<item-id>\t<error>" lines to a file. Records are
// never rewritten or deduplicated.
type Log struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// New returns a Log writing to path on fs. The file is created on the first
// record.
func New(fs afero.Fs, path string) (*Log, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Log{fs: fs, path: path}, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Record appends one failure line for itemID.
func (l *Log) Record(itemID string, cause error) error {
	line := FormatLine(itemID, cause)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open failure log %s: %w", l.path, err)
	}
	if _, err := f.WriteString(line); err != nil {
		closeErr := f.Close()
		return errors.Join(fmt.Errorf("append failure log %s: %w", l.path, err), closeErr)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close failure log %s: %w", l.path, err)
	}
	return nil
}

// Entries reads back every record in file order. A missing file yields no
// entries.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fs.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open failure log %s: %w", l.path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		id, msg, _ := strings.Cut(line, "\t")
		entries = append(entries, Entry{ItemID: id, Message: msg})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read failure log %s: %w", l.path, err)
	}
	return entries, nil
}

// FormatLine renders a record. Line breaks and tabs in the error text are
// replaced with spaces so each record stays on one line.
func FormatLine(itemID string, cause error) string {
	msg := ""
	if cause != nil {
		msg = flattener.Replace(cause.Error())
	}
	return itemID + "\t" + msg + "\n"
}
