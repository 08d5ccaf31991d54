// Package extract turns uploaded documents into plain text. Supported formats
// are PDF, DOCX and plain text; the format is chosen from the file extension.
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/dharsanguruparan/DocChat/internal/blob"
)

// Supported extensions.
const (
	FormatPDF  = ".pdf"
	FormatDOCX = ".docx"
	FormatText = ".txt"
)

// Format normalizes a file name or bare extension into a lower-case
// extension with a leading dot.
func Format(hint string) string {
	ext := strings.ToLower(filepath.Ext(hint))
	if ext == "" && hint != "" && !strings.ContainsAny(hint, `/\`) {
		ext = "." + strings.ToLower(strings.TrimPrefix(hint, "."))
	}
	return ext
}

// Supported reports whether the hint names an extractable format.
func Supported(hint string) bool {
	switch Format(hint) {
	case FormatPDF, FormatDOCX, FormatText:
		return true
	}
	return false
}

// FromBytes extracts text from data using the format named by hint.
func FromBytes(data []byte, hint string) (string, error) {
	format := Format(hint)
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = pdfText(data)
	case FormatDOCX:
		text, err = docxText(data)
	case FormatText:
		text = string(data)
	default:
		return "", &ExtractionError{Kind: UnsupportedFormat, Format: format}
	}
	if err != nil {
		return "", &ExtractionError{Kind: Malformed, Format: strings.TrimPrefix(format, "."), Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ExtractionError{Kind: EmptyContent, Format: format}
	}
	return text, nil
}

// Extractor reads documents out of a blob store.
type Extractor struct {
	blobs blob.Store
}

// New builds an Extractor over blobs.
func New(blobs blob.Store) *Extractor {
	return &Extractor{blobs: blobs}
}

// Extract loads ref and extracts its text, using ref itself as the format
// hint. Unsupported formats fail before the blob is read.
func (e *Extractor) Extract(ctx context.Context, ref string) (string, error) {
	if !Supported(ref) {
		return "", &ExtractionError{Kind: UnsupportedFormat, Format: Format(ref)}
	}
	data, err := e.blobs.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			err = errors.New("file is missing from storage")
		}
		return "", &ExtractionError{Kind: Unavailable, Format: Format(ref), Err: err}
	}
	return FromBytes(data, ref)
}
