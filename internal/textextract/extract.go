// Package textextract obtains normalised per-page text for documents.
package textextract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNoText marks a document that yielded no text at all.
var ErrNoText = errors.New("textextract: document has no extractable text")

// ExtractionError ties a document-level failure to the document name.
type ExtractionError struct {
	Document string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("textextract: %s: %v", e.Document, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Document is the normalised text of one source file, one entry per page.
type Document struct {
	Name  string   `json:"name"`
	Pages []string `json:"pages"`
}

// Text joins all pages with a newline.
func (d Document) Text() string {
	return strings.Join(d.Pages, "\n")
}

// Extractor turns raw document bytes into normalised page text.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (Document, error)
}

var (
	horizontalSpaceRe = regexp.MustCompile(`[ \t]+`)
	blankRunRe        = regexp.MustCompile(`\n{3,}`)
)

// Normalize applies the page text contract: CRLF becomes LF, horizontal
// whitespace runs collapse to one space, lines are trimmed, three or more
// newlines collapse to one blank line and the result is trimmed. Text is also
// brought to Unicode NFC.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalSpaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// finish normalises every page and fails the document when nothing is left.
func finish(name string, pages []string) (Document, error) {
	doc := Document{Name: name, Pages: make([]string, len(pages))}
	empty := true
	for i, p := range pages {
		doc.Pages[i] = Normalize(p)
		if doc.Pages[i] != "" {
			empty = false
		}
	}
	if empty {
		return Document{}, &ExtractionError{Document: name, Err: ErrNoText}
	}
	return doc, nil
}

// PlainText reads documents that already are UTF-8 text, such as pdftotext
// output. Form feeds separate pages.
type PlainText struct{}

// Extract implements Extractor.
func (PlainText) Extract(_ context.Context, name string, data []byte) (Document, error) {
	pages := strings.Split(strings.TrimRight(string(data), "\f"), "\f")
	return finish(name, pages)
}

// TextFallback routes .txt documents to PlainText and everything else to next.
type TextFallback struct {
	Next Extractor
}

// Extract implements Extractor.
func (t TextFallback) Extract(ctx context.Context, name string, data []byte) (Document, error) {
	if strings.EqualFold(filepath.Ext(name), ".txt") || t.Next == nil {
		return PlainText{}.Extract(ctx, name, data)
	}
	return t.Next.Extract(ctx, name, data)
}
