package engine

import (
	"context"
	"io"
)

// Sink stores a named archive. Write consumes data until EOF; path is relative
// to the sink's own root (directory, bucket prefix) and ignored by streams.
type Sink interface {
	Named
	Closer
	Write(ctx context.Context, path string, data io.Reader) error
}
