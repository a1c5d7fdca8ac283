// Package extract turns uploaded document bytes into plain text. The decoder
// is chosen from the file extension alone.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// UnsupportedMediaTypeError is returned for files whose extension has no
// decoder.
type UnsupportedMediaTypeError struct {
	Filename string
}

func (e *UnsupportedMediaTypeError) Error() string {
	return fmt.Sprintf("Unsupported file type: %s", e.Filename)
}

type decodeFunc func(content []byte) (string, error)

type Extractor struct {
	decoders map[string]decodeFunc
}

func New() *Extractor {
	return &Extractor{
		decoders: map[string]decodeFunc{
			".pdf":  pdfText,
			".docx": docxText,
			".doc":  docText,
			".txt":  plainText,
		},
	}
}

// Supported lists the recognized extensions in sorted order.
func (x *Extractor) Supported() []string {
	exts := make([]string, 0, len(x.decoders))
	for ext := range x.decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract decodes content according to the extension of filename. Matching
// is case-insensitive.
func (x *Extractor) Extract(ctx context.Context, content []byte, filename string) (string, error) {
	decode, ok := x.decoders[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", &UnsupportedMediaTypeError{Filename: filename}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := decode(content)
	if err != nil {
		return "", fmt.Errorf("Failed to extract text from %s: %w", filename, err)
	}
	return text, nil
}

func plainText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("invalid UTF-8 content")
	}
	return string(content), nil
}
