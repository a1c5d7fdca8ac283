package search

import (
	"errors"
	"fmt"

	"sandbox/docsearch/pkg/extract"
)

// Kind classifies a failure. The transport maps kinds to status codes.
type Kind string

const (
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindExtraction           Kind = "extraction"
	KindEmbedding            Kind = "embedding"
	KindStore                Kind = "store"
	KindEmptyResult          Kind = "empty_result"
	KindMalformedRequest     Kind = "malformed_request"
	KindInternal             Kind = "internal"
)

var ErrEmptyResult = errors.New("No results returned from collection query")

// Error is the single error type returned by Service. Its message is the
// underlying error's message, so callers can show it as-is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind unless err already carries one.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Malformed reports a request the service could not interpret.
func Malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformedRequest, Op: "decode", Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind carried by err. Errors without one are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	var unsupported *extract.UnsupportedMediaTypeError
	if errors.As(err, &unsupported) {
		return KindUnsupportedMediaType
	}
	return KindInternal
}
