package engine

import (
	"context"
	"io"
)

type Named interface {
	Name() string
	Kind() string
}

type Closer interface {
	Close(context.Context) error
}

const (
	// ISO8601Basic is a URL-safe timestamp format without colons.
	// This is the recommended format for S3 keys and filesystem paths.
	ISO8601Basic = "20060102T150405Z"
)

// Output is the byte sink a pipeline run writes its archive to. The run owns
// it for its whole duration and always either closes or aborts it.
type Output interface {
	io.Writer
	Close() error
}

// Flusher is implemented by outputs that buffer and can push bytes to their
// consumer on demand.
type Flusher interface {
	Flush() error
}

// Aborter is implemented by outputs that can signal abnormal termination to
// their consumer. A run that ends Aborted calls Abort instead of Close.
type Aborter interface {
	Abort(cause error) error
}
