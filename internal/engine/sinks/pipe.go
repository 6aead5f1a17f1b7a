package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/infracollect/imgbundle/internal/engine"
)

// PipeOutput adapts a Sink to engine.Output. Bytes written to it are streamed
// through an io.Pipe into a single Sink.Write call running in the background.
type PipeOutput struct {
	ctx  context.Context
	sink engine.Sink
	pw   *io.PipeWriter
	done chan error

	once sync.Once
	err  error
}

// NewPipeOutput starts writing path on sink. The output must be closed or
// aborted to release the background writer.
func NewPipeOutput(ctx context.Context, sink engine.Sink, path string) *PipeOutput {
	pr, pw := io.Pipe()
	o := &PipeOutput{
		ctx:  context.WithoutCancel(ctx),
		sink: sink,
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		err := sink.Write(ctx, path, pr)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			// writes after the sink returned must not block forever
			_ = pr.CloseWithError(fmt.Errorf("sink %s stopped reading", sink.Name()))
		}
		o.done <- err
	}()

	return o
}

var (
	_ engine.Output  = (*PipeOutput)(nil)
	_ engine.Aborter = (*PipeOutput)(nil)
)

func (o *PipeOutput) Write(p []byte) (int, error) {
	n, err := o.pw.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", engine.ErrSinkClosedPrematurely, err)
	}
	return n, nil
}

// Close signals the end of the archive and waits for the sink to store it.
func (o *PipeOutput) Close() error {
	o.once.Do(func() {
		_ = o.pw.Close()
		o.err = errors.Join(<-o.done, o.closeSink())
	})
	return o.err
}

// Abort fails the sink's reader with cause so the partial archive is
// discarded instead of stored.
func (o *PipeOutput) Abort(cause error) error {
	if cause == nil {
		cause = errors.New("export aborted")
	}
	o.once.Do(func() {
		_ = o.pw.CloseWithError(cause)
		<-o.done
		o.err = o.closeSink()
	})
	return o.err
}

func (o *PipeOutput) closeSink() error {
	if err := o.sink.Close(o.ctx); err != nil {
		return fmt.Errorf("failed to close sink %s: %w", o.sink.Name(), err)
	}
	return nil
}
