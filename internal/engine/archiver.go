package engine

import (
	"context"
	"io"
	"time"
)

// EntryHeader describes one archive entry.
type EntryHeader struct {
	Name     string
	Modified time.Time
}

// Archiver turns named byte streams into entries of a single compressed output
// stream. Append is safe for concurrent use; the bytes of one entry are never
// interleaved with another's.
type Archiver interface {
	// Append drains data into a new entry and closes it. It returns the number
	// of uncompressed bytes stored.
	Append(ctx context.Context, header EntryHeader, data io.ReadCloser) (int64, error)

	// Finalize writes the archive trailer. Every Append must have returned.
	Finalize() error

	// Extension returns the file extension for this archive type (e.g., ".zip").
	Extension() string
}

// ArchiverFactory opens an archiver writing to w.
type ArchiverFactory func(w io.Writer) Archiver
