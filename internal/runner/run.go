package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	v1 "github.com/infracollect/imgbundle/apis/v1"
	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/infracollect/imgbundle/internal/engine/sinks"
	"go.uber.org/zap"
)

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
)

// ParseExportJob parses a YAML or JSON job document and validates it. It
// returns the validated ExportJob or an error if parsing or validation fails.
func ParseExportJob(data []byte) (v1.ExportJob, error) {
	job, err := DecodeExportJob(data)
	if err != nil {
		return v1.ExportJob{}, err
	}

	if err := ValidateExportJob(job); err != nil {
		return v1.ExportJob{}, err
	}

	return job, nil
}

// DecodeExportJob parses a job document without validating it, for callers
// that complete the job before validation.
func DecodeExportJob(data []byte) (v1.ExportJob, error) {
	var job v1.ExportJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return v1.ExportJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	return job, nil
}

// ValidateExportJob checks struct constraints on job.
func ValidateExportJob(job v1.ExportJob) error {
	err := defaultValidator.Struct(job)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		err = &ValidationError{Fields: verrs}
	}
	return fmt.Errorf("failed to validate job: %w", err)
}

// ValidationError reports every field of a job that failed validation, one
// per line.
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("job has %d validation error(s):", len(e.Fields)))
	for _, fe := range e.Fields {
		sb.WriteString(fmt.Sprintf("\n  %s: failed on '%s'", fe.Namespace(), fe.Tag()))
		if fe.Param() != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", fe.Param()))
		}
	}
	return sb.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Fields
}

type Option func(*Runner)

// WithRegistry replaces the default collector and sink registry.
func WithRegistry(registry *engine.Registry) Option {
	return func(r *Runner) {
		r.registry = registry
	}
}

// WithStdout sets the writer of the stdout sink of the default registry.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		r.stdout = w
	}
}

func WithPipelineOptions(opts ...engine.PipelineOption) Option {
	return func(r *Runner) {
		r.pipelineOpts = append(r.pipelineOpts, opts...)
	}
}

// Runner executes one ExportJob.
type Runner struct {
	logger       *zap.Logger
	job          v1.ExportJob
	registry     *engine.Registry
	stdout       io.Writer
	pipelineOpts []engine.PipelineOption

	collector   engine.Collector
	pipeline    *engine.Pipeline
	archiveName string
}

// New builds the collector and the pipeline for job. Templates in job must
// already be expanded. The destination is only created by Export.
func New(ctx context.Context, logger *zap.Logger, job v1.ExportJob, opts ...Option) (*Runner, error) {
	logger.Info("creating runner", zap.String("job_name", job.Metadata.Name))

	r := &Runner{
		logger: logger,
		job:    job,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = BuildRegistry(logger, r.stdout)
	}

	collector, err := BuildCollector(ctx, r.registry, job.Spec.Source)
	if err != nil {
		return nil, err
	}

	pipeline, err := BuildPipeline(logger.Named("pipeline"), collector, job.Spec.Pipeline, r.pipelineOpts...)
	if err != nil {
		_ = collector.Close(ctx)
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	r.collector = collector
	r.pipeline = pipeline
	r.archiveName = defaultArchiveName(job, time.Now())
	if job.Spec.Output != nil && job.Spec.Output.Name != "" {
		r.archiveName = job.Spec.Output.Name
	}
	r.archiveName += archiveExt
	return r, nil
}

// ArchiveName is the archive's file name including its extension.
func (r *Runner) ArchiveName() string {
	return r.archiveName
}

// Export runs the pipeline into the job's destination.
func (r *Runner) Export(ctx context.Context) (*engine.Result, error) {
	dest, err := ResolveSinkSpec(r.job.Spec.Output)
	if err != nil {
		return nil, err
	}

	sink, err := r.registry.CreateSink(ctx, dest.Kind, dest.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sink: %w", dest.Kind, err)
	}

	name := r.ArchiveName()
	r.logger.Info("exporting archive", zap.String("sink", sink.Name()), zap.String("archive", name))

	return r.pipeline.Run(ctx, sinks.NewPipeOutput(ctx, sink, name))
}

// List returns the descriptors the export would archive, with their entry
// names, without fetching anything.
func (r *Runner) List(ctx context.Context) ([]engine.Item, error) {
	return r.pipeline.List(ctx)
}

// Close releases the collector. It uses a context detached from ctx's
// cancellation so cleanup runs after an interrupted export.
func (r *Runner) Close(ctx context.Context) error {
	if err := r.collector.Close(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to close collector '%s': %w", r.collector.Name(), err)
	}
	return nil
}
