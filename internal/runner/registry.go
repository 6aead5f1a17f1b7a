package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	v1 "github.com/infracollect/imgbundle/apis/v1"
	"github.com/infracollect/imgbundle/internal/collectors/cloudflare"
	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/infracollect/imgbundle/internal/engine/sinks"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// BuildRegistry creates a registry with every collector and sink kind
// registered. The stdout sink writes to stdout.
func BuildRegistry(logger *zap.Logger, stdout io.Writer) *engine.Registry {
	registry := engine.NewRegistry(logger)

	cloudflare.Register(registry)

	registry.RegisterSink(SinkStdout, engine.NewSinkFactory(SinkStdout,
		func(context.Context, *zap.Logger, *v1.StdoutSinkSpec) (engine.Sink, error) {
			return sinks.NewStreamSink(SinkStdout, stdout), nil
		},
	))
	registry.RegisterSink(SinkFilesystem, engine.NewSinkFactory(SinkFilesystem, buildFilesystemSink))
	registry.RegisterSink(SinkS3, engine.NewSinkFactory(SinkS3, buildS3Sink))

	return registry
}

func buildFilesystemSink(_ context.Context, _ *zap.Logger, spec *v1.FilesystemSinkSpec) (engine.Sink, error) {
	path := lo.FromPtr(spec.Path)
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = wd
	}

	sink, err := sinks.NewFilesystemSinkFromPath(filepath.Join(path, lo.FromPtr(spec.Prefix)))
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func buildS3Sink(ctx context.Context, _ *zap.Logger, spec *v1.S3SinkSpec) (engine.Sink, error) {
	cfg := sinks.S3Config{
		Bucket:         spec.Bucket,
		Region:         lo.FromPtr(spec.Region),
		Endpoint:       lo.FromPtr(spec.Endpoint),
		Prefix:         lo.FromPtr(spec.Prefix),
		ForcePathStyle: spec.ForcePathStyle,
		PartSize:       lo.FromPtr(spec.PartSize),
	}
	if spec.Credentials != nil {
		cfg.AccessKeyID = spec.Credentials.AccessKeyID
		cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
	}

	sink, err := sinks.NewS3Sink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sink, nil
}
