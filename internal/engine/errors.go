package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCatalogUnavailable       = errors.New("catalog unavailable")
	ErrCatalogAuth              = errors.New("catalog rejected authorization")
	ErrCatalogMalformedResponse = errors.New("catalog response malformed")

	ErrFetchUnavailable = errors.New("object fetch unavailable")
	ErrFetchAuth        = errors.New("object fetch rejected authorization")
	ErrFetchNotFound    = errors.New("object not found")

	ErrArchiveWrite          = errors.New("archive write failed")
	ErrSinkClosedPrematurely = errors.New("output closed prematurely")

	ErrDuplicateEntryName = errors.New("duplicate entry name")
	ErrArchiveFinalized   = errors.New("archive already finalized")
	ErrAppendsInFlight    = errors.New("archive finalized with appends in flight")
)

// IsFatal reports whether err ends a run regardless of the fail-fast setting.
func IsFatal(err error) bool {
	return errors.Is(err, ErrArchiveWrite) || errors.Is(err, ErrSinkClosedPrematurely)
}

// RunError is the terminal error of an aborted run.
type RunError struct {
	// State is the state the run was in when it aborted.
	State State
	// Batch is the index of the batch being processed, or -1.
	Batch int
	Err   error
	// Skipped lists the ids of descriptors that are not in the archive.
	Skipped []string
}

func (e *RunError) Error() string {
	var sb strings.Builder
	sb.WriteString("pipeline aborted while ")
	sb.WriteString(strings.ToLower(e.State.String()))
	if e.Batch >= 0 {
		sb.WriteString(fmt.Sprintf(" (batch %d)", e.Batch))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	if len(e.Skipped) > 0 {
		sb.WriteString(fmt.Sprintf(" (%d objects skipped)", len(e.Skipped)))
	}
	return sb.String()
}

func (e *RunError) Unwrap() error {
	return e.Err
}
