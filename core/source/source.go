// Package source abstracts where ingested bytes come from. The engine
// only needs a stream and a completion signal; concrete transfer
// protocol clients (archive library sync, swarm transfers) live
// outside the engine and plug in through the Source interface.
package source

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	ErrInvalidSource = errors.New("invalid source descriptor")
	ErrUnreachable   = errors.New("source unreachable")
)

// Source yields the bytes of one object to ingest.
type Source interface {
	// Open starts the transfer and returns the byte stream. The
	// stream ending without error is the source's success signal.
	Open(ctx context.Context) (io.ReadCloser, error)

	// ExpectedLength returns the total transfer size if the source
	// knows it up front. Streamed and variable length sources
	// return ok=false.
	ExpectedLength() (length int64, ok bool)

	// Close releases source resources.
	Close() error
}

// FromDescriptor resolves a caller supplied source descriptor into a
// Source. Supported forms are http(s) URLs and file paths prefixed
// with "file:". Other source kinds must be provided by the caller as
// Source implementations directly.
func FromDescriptor(descriptor string) (Source, error) {
	switch {
	case strings.HasPrefix(descriptor, "http://"), strings.HasPrefix(descriptor, "https://"):
		return NewHTTPSource(descriptor), nil
	case strings.HasPrefix(descriptor, "file:"):
		return NewFileSource(strings.TrimPrefix(descriptor, "file:")), nil
	default:
		return nil, ErrInvalidSource
	}
}
