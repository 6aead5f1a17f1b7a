package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/spf13/afero"
)

const partialSuffix = ".partial"

// FilesystemSink writes archives below a base directory. Data lands in a
// ".partial" sibling first and is renamed into place once fully written, so an
// aborted export never leaves a truncated archive under the final name.
type FilesystemSink struct {
	fs afero.Fs
}

func NewFilesystemSink(fs afero.Fs) *FilesystemSink {
	return &FilesystemSink{fs: fs}
}

func NewFilesystemSinkFromPath(dir string) (*FilesystemSink, error) {
	cleanPath := filepath.Clean(dir)

	if err := os.MkdirAll(cleanPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cleanPath, err)
	}

	return NewFilesystemSink(afero.NewBasePathFs(afero.NewOsFs(), cleanPath)), nil
}

var _ engine.Sink = (*FilesystemSink)(nil)

func (s *FilesystemSink) Name() string {
	return fmt.Sprintf("filesystem(%s)", s.fs.Name())
}

func (s *FilesystemSink) Kind() string {
	return "filesystem"
}

func (s *FilesystemSink) Write(ctx context.Context, path string, data io.Reader) (err error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	partial := path + partialSuffix
	f, err := s.fs.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.fs.Remove(partial))
		}
	}()

	if _, err := io.Copy(f, data); err != nil {
		return errors.Join(fmt.Errorf("failed to write to file: %w", err), f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := s.fs.Rename(partial, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	return nil
}

func (s *FilesystemSink) Close(context.Context) error {
	return nil
}
