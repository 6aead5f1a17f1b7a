package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/infracollect/imgbundle/internal/engine"
)

// responseOutput writes an archive as the body of an HTTP response. Headers
// are committed on the first byte so a run that fails while listing can
// still answer with an error status.
type responseOutput struct {
	w        http.ResponseWriter
	rc       *http.ResponseController
	filename string
	started  bool
}

func newResponseOutput(w http.ResponseWriter, filename string) *responseOutput {
	return &responseOutput{
		w:        w,
		rc:       http.NewResponseController(w),
		filename: filename,
	}
}

var (
	_ engine.Output  = (*responseOutput)(nil)
	_ engine.Flusher = (*responseOutput)(nil)
	_ engine.Aborter = (*responseOutput)(nil)
)

func (o *responseOutput) start() {
	if o.started {
		return
	}
	o.started = true

	h := o.w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", o.filename))
	h.Set("Trailer", skippedTrailer)
	o.w.WriteHeader(http.StatusOK)
}

func (o *responseOutput) Write(p []byte) (int, error) {
	o.start()
	return o.w.Write(p)
}

func (o *responseOutput) Flush() error {
	if !o.started {
		return nil
	}
	if err := o.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Close commits the headers of an archive that produced no bytes yet.
func (o *responseOutput) Close() error {
	o.start()
	return nil
}

// Abort leaves the response untouched. The handler decides how to end it
// once the run returns.
func (o *responseOutput) Abort(error) error {
	return nil
}
