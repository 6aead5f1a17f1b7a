package sinks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUploader struct {
	uploads []mockUpload
	err     error
}

type mockUpload struct {
	bucket      string
	key         string
	body        []byte
	contentType string
	disposition string
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	upload := mockUpload{
		bucket: *input.Bucket,
		key:    *input.Key,
		body:   body,
	}
	if input.ContentType != nil {
		upload.contentType = *input.ContentType
	}
	if input.ContentDisposition != nil {
		upload.disposition = *input.ContentDisposition
	}
	m.uploads = append(m.uploads, upload)
	return &manager.UploadOutput{}, nil
}

func TestS3Sink_Name(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		prefix   string
		expected string
	}{
		{
			name:     "bucket only",
			bucket:   "images",
			expected: "s3(images)",
		},
		{
			name:     "bucket with prefix",
			bucket:   "images",
			prefix:   "exports/cloudflare",
			expected: "s3(images/exports/cloudflare)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewS3SinkWithUploader(tt.bucket, tt.prefix, &mockUploader{})
			assert.Equal(t, tt.expected, sink.Name())
			assert.Equal(t, "s3", sink.Kind())
		})
	}
}

func TestS3Sink_Write(t *testing.T) {
	tests := []struct {
		name                string
		prefix              string
		path                string
		expectedKey         string
		expectedContentType string
		expectedDisposition string
	}{
		{
			name:                "archive without prefix",
			path:                "190f1c2b3a4.zip",
			expectedKey:         "190f1c2b3a4.zip",
			expectedContentType: "application/zip",
			expectedDisposition: `attachment; filename="190f1c2b3a4.zip"`,
		},
		{
			name:                "archive with prefix",
			prefix:              "exports/2024",
			path:                "nightly/images.zip",
			expectedKey:         "exports/2024/nightly/images.zip",
			expectedContentType: "application/zip",
			expectedDisposition: `attachment; filename="images.zip"`,
		},
		{
			name:                "listing",
			prefix:              "data",
			path:                "listing.jsonl",
			expectedKey:         "data/listing.jsonl",
			expectedContentType: "application/json",
		},
		{
			name:        "unknown extension",
			path:        "data.bin",
			expectedKey: "data.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &mockUploader{}
			sink := NewS3SinkWithUploader("images", tt.prefix, uploader)

			err := sink.Write(t.Context(), tt.path, bytes.NewBufferString("content"))
			require.NoError(t, err)

			require.Len(t, uploader.uploads, 1)
			upload := uploader.uploads[0]
			assert.Equal(t, "images", upload.bucket)
			assert.Equal(t, tt.expectedKey, upload.key)
			assert.Equal(t, "content", string(upload.body))
			assert.Equal(t, tt.expectedContentType, upload.contentType)
			assert.Equal(t, tt.expectedDisposition, upload.disposition)
		})
	}
}

func TestS3Sink_Write_Error(t *testing.T) {
	uploader := &mockUploader{err: errors.New("access denied")}
	sink := NewS3SinkWithUploader("images", "exports", uploader)

	err := sink.Write(t.Context(), "a.zip", bytes.NewBufferString("content"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "s3://images/exports/a.zip")
	assert.ErrorContains(t, err, "access denied")
}
