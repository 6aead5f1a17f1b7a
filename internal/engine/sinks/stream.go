package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/infracollect/imgbundle/internal/engine"
)

// StreamSink copies the archive to a writer such as stdout. The path is
// ignored.
type StreamSink struct {
	name string
	w    io.Writer
}

func NewStreamSink(name string, w io.Writer) *StreamSink {
	return &StreamSink{name: name, w: w}
}

var _ engine.Sink = (*StreamSink)(nil)

func (s *StreamSink) Name() string {
	return s.name
}

func (s *StreamSink) Kind() string {
	return "stream"
}

func (s *StreamSink) Write(ctx context.Context, _ string, data io.Reader) error {
	n, err := io.Copy(s.w, data)
	if err != nil {
		return fmt.Errorf("failed to copy archive to %s after %d bytes: %w", s.name, n, err)
	}
	if f, ok := s.w.(engine.Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (s *StreamSink) Close(context.Context) error {
	return nil
}
