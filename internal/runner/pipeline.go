package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	v1 "github.com/infracollect/imgbundle/apis/v1"
	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/infracollect/imgbundle/internal/engine/archivers"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const archiveExt = ".zip"

// BuildCollector creates the collector for the job's source.
func BuildCollector(ctx context.Context, registry *engine.Registry, source v1.SourceSpec) (engine.Collector, error) {
	resolved, err := ResolveCollectorSpec(source)
	if err != nil {
		return nil, err
	}

	collector, err := registry.CreateCollector(ctx, resolved.Kind, resolved.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s collector: %w", resolved.Kind, err)
	}
	return collector, nil
}

// BuildPipeline creates the export pipeline for collector from the job's
// pipeline section. A nil spec selects every default.
func BuildPipeline(logger *zap.Logger, collector engine.Collector, spec *v1.PipelineSpec, opts ...engine.PipelineOption) (*engine.Pipeline, error) {
	ps := lo.FromPtr(spec)

	duplicates, err := engine.ParseDuplicatePolicy(ps.Duplicates)
	if err != nil {
		return nil, err
	}

	options := engine.Options{
		BatchSize:  lo.FromPtr(ps.BatchSize),
		FailFast:   ps.FailFast,
		Duplicates: duplicates,
	}
	if ps.FetchTimeout != nil {
		options.FetchTimeout = time.Duration(*ps.FetchTimeout) * time.Second
	}

	if ps.Filter != "" {
		filter, err := engine.NewFilter(ps.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to build filter: %w", err)
		}
		options.Filter = filter
	}

	zipOpts := []archivers.ZipOption{
		archivers.WithQueueSize(lo.CoalesceOrEmpty(options.BatchSize, engine.DefaultBatchSize)),
	}
	if ps.CompressionLevel != nil {
		zipOpts = append(zipOpts, archivers.WithCompressionLevel(*ps.CompressionLevel))
	}

	newArchiver, err := archivers.NewZipFactory(zipOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip archiver: %w", err)
	}

	logger.Debug("creating pipeline",
		zap.String("collector", collector.Name()),
		zap.Int("batch_size", options.BatchSize),
		zap.String("duplicates", string(options.Duplicates)),
		zap.Bool("fail_fast", options.FailFast),
	)

	return engine.NewPipeline(logger, collector, collector, newArchiver, options, opts...)
}

// BuildVariables creates the variables map for expansion.
// It includes built-in variables and reads allowed environment variables.
// If a variable is not set, an error is returned.
func BuildVariables(job v1.ExportJob, allowedEnv []string) (map[string]string, error) {
	date := time.Now().UTC()
	variables := map[string]string{
		"JOB_NAME":         job.Metadata.Name,
		"JOB_DATE_ISO8601": date.Format(engine.ISO8601Basic),
		"JOB_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, envName := range allowedEnv {
		val, ok := os.LookupEnv(envName)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", envName))
			continue
		}
		variables[envName] = val
	}

	if errs != nil {
		return nil, errs
	}

	return variables, nil
}

// defaultArchiveName is used when the job does not name its output.
func defaultArchiveName(job v1.ExportJob, now time.Time) string {
	return fmt.Sprintf("%s-%s", job.Metadata.Name, now.UTC().Format(engine.ISO8601Basic))
}
