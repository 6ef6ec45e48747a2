// Package bundle packages the reconciliation report and renamed invoices into
// one ZIP archive.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrEmptyName is returned for an entry without a usable name.
var ErrEmptyName = errors.New("bundle: entry name is empty")

// Entry is one file placed in the archive.
type Entry struct {
	Name string
	Data []byte
}

// Writer streams entries into a ZIP archive. Names colliding with an earlier
// entry get a numeric suffix before the extension.
type Writer struct {
	zw       *zip.Writer
	modified time.Time
	seen     map[string]int
	names    []string
}

// NewWriter starts an archive on w. modified stamps every entry; zero means now.
func NewWriter(w io.Writer, modified time.Time) *Writer {
	if modified.IsZero() {
		modified = time.Now()
	}
	return &Writer{zw: zip.NewWriter(w), modified: modified, seen: make(map[string]int)}
}

// Add writes one entry with DEFLATE compression and returns the name used.
func (b *Writer) Add(e Entry) (string, error) {
	name := cleanName(e.Name)
	if name == "" {
		return "", ErrEmptyName
	}
	name = b.unique(name)
	fw, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: b.modified,
	})
	if err != nil {
		return "", fmt.Errorf("bundle: create %s: %w", name, err)
	}
	if _, err := fw.Write(e.Data); err != nil {
		return "", fmt.Errorf("bundle: write %s: %w", name, err)
	}
	b.names = append(b.names, name)
	return name, nil
}

// Names lists the entry names written so far, in order.
func (b *Writer) Names() []string {
	return append([]string(nil), b.names...)
}

// Close finalises the archive directory.
func (b *Writer) Close() error {
	return b.zw.Close()
}

// Write is a convenience wrapper that archives entries in order.
func Write(w io.Writer, entries []Entry) error {
	bw := NewWriter(w, time.Time{})
	for _, e := range entries {
		if _, err := bw.Add(e); err != nil {
			return err
		}
	}
	return bw.Close()
}

func (b *Writer) unique(name string) string {
	n := b.seen[name]
	b.seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, taken := b.seen[candidate]; !taken {
			b.seen[candidate] = 1
			b.seen[name] = n
			return candidate
		}
	}
}

// cleanName flattens a name to its base so entries cannot escape the archive root.
func cleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
