package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Kind int

const (
	KindFileNotFound Kind = iota + 1
	KindEmptyContent
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file_not_found"
	case KindEmptyContent:
		return "empty_content"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is returned for every extraction failure. Its message is meant for the
// report reader, so it is phrased as a sentence.
type Error struct {
	Kind  Kind
	Path  string
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindFileNotFound:
		return fmt.Sprintf("Error: File not found at path %s. Please ensure the correct path is provided.", e.Path)
	case KindEmptyContent:
		return "Error: No text could be extracted from the PDF. The file might be empty, corrupted, or contain only images."
	default:
		return fmt.Sprintf("Error reading or processing the PDF file: %v. The file might be encrypted or malformed.", e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Extractor returns the plain text of a document on disk.
type Extractor interface {
	Extract(path string) (string, error)
}

type pageSource interface {
	NumPage() int
	// PageText returns the text of page i (1-indexed); "" when the page has none.
	PageText(i int) (string, error)
}

type openFunc func(path string) (pageSource, io.Closer, error)

// PDF extracts text with github.com/ledongthuc/pdf.
type PDF struct {
	open openFunc
}

func NewPDF() *PDF {
	return &PDF{open: openPDF}
}

// Extract concatenates every page that yields text, each followed by "\n".
func (p *PDF) Extract(path string) (text string, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return "", &Error{Kind: KindFileNotFound, Path: path, Cause: statErr}
		}
		return "", &Error{Kind: KindMalformed, Path: path, Cause: statErr}
	}

	// the parser panics on some corrupt inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &Error{Kind: KindMalformed, Path: path, Cause: fmt.Errorf("%v", r)}
		}
	}()

	src, closer, err := p.open(path)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Path: path, Cause: err}
	}
	defer closer.Close()

	var b strings.Builder
	for i := 1; i <= src.NumPage(); i++ {
		pt, err := src.PageText(i)
		if err != nil {
			return "", &Error{Kind: KindMalformed, Path: path, Cause: err}
		}
		if pt == "" {
			continue
		}
		b.WriteString(pt)
		b.WriteString("\n")
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", &Error{Kind: KindEmptyContent, Path: path}
	}
	return b.String(), nil
}

type pdfReader struct {
	r *pdf.Reader
}

func (p pdfReader) NumPage() int { return p.r.NumPage() }

func (p pdfReader) PageText(i int) (string, error) {
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func openPDF(path string) (pageSource, io.Closer, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return pdfReader{r: r}, f, nil
}
