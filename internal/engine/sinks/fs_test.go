package sinks

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemSink_Write(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := NewFilesystemSink(fs)

	require.NoError(t, sink.Write(t.Context(), "exports/images.zip", bytes.NewBufferString("PK")))

	content, err := afero.ReadFile(fs, "exports/images.zip")
	require.NoError(t, err)
	assert.Equal(t, "PK", string(content))

	exists, err := afero.Exists(fs, "exports/images.zip"+partialSuffix)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, "filesystem", sink.Kind())
	assert.Contains(t, sink.Name(), "filesystem(")
}

func TestFilesystemSink_Write_FailedSourceLeavesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := NewFilesystemSink(fs)
	srcErr := errors.New("export aborted")

	err := sink.Write(t.Context(), "images.zip", iotest.ErrReader(srcErr))
	require.ErrorIs(t, err, srcErr)

	for _, name := range []string{"images.zip", "images.zip" + partialSuffix} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}

func TestNewFilesystemSinkFromPath(t *testing.T) {
	dir := t.TempDir() + "/nested/out"

	sink, err := NewFilesystemSinkFromPath(dir)
	require.NoError(t, err)
	require.NoError(t, sink.Write(t.Context(), "a.zip", bytes.NewBufferString("zip")))

	content, err := afero.ReadFile(afero.NewOsFs(), dir+"/a.zip")
	require.NoError(t, err)
	assert.Equal(t, "zip", string(content))
}

func TestStreamSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink("stdout", &buf)

	require.NoError(t, sink.Write(t.Context(), "ignored.zip", bytes.NewBufferString("archive bytes")))
	assert.Equal(t, "archive bytes", buf.String())
	assert.Equal(t, "stdout", sink.Name())
	require.NoError(t, sink.Close(t.Context()))
}
