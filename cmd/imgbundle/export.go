package main

import (
	"context"
	"fmt"
	"os"

	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/infracollect/imgbundle/internal/engine/progress"
	"github.com/infracollect/imgbundle/internal/runner"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var exportCommand = &cli.Command{
	Name:      "export",
	Usage:     "Export the catalog as one ZIP archive",
	Arguments: jobArgument("The job file to export (optional, - reads stdin)"),
	Flags: append(jobFlags(),
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Destination: - for stdout, a directory, a .zip path or s3://bucket/prefix",
			Sources: cli.EnvVars("OUTPUT"),
		},
	),
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		job, err := loadJob(command)
		if err != nil {
			return err
		}

		if command.IsSet("output") {
			target, err := runner.ParseOutputTarget(command.String("output"))
			if err != nil {
				return err
			}
			if target.Name == "" && job.Spec.Output != nil {
				target.Name = job.Spec.Output.Name
			}
			job.Spec.Output = &target
		}

		dest, err := runner.ResolveSinkSpec(job.Spec.Output)
		if err != nil {
			return err
		}
		stdout := command.Root().Writer
		if f, ok := stdout.(*os.File); ok && dest.Kind == runner.SinkStdout && isTerminal(f) {
			return errTerminalOutput
		}

		r, err := runner.New(ctx, logger.Named("runner"), job,
			runner.WithStdout(stdout),
			runner.WithPipelineOptions(engine.WithReporter(progress.NewLogger(logger.Named("progress")))),
		)
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}
		defer func() {
			if err := r.Close(ctx); err != nil {
				logger.Warn("failed to close runner", zap.Error(err))
			}
		}()

		result, err := r.Export(ctx)
		if err != nil {
			return fmt.Errorf("failed to export catalog: %w", err)
		}

		failed := result.Failed()
		logger.Info("export complete",
			zap.String("run_id", result.RunID),
			zap.String("archive", r.ArchiveName()),
			zap.Int("objects", result.Total),
			zap.Int("archived", len(result.Succeeded())),
			zap.Int("batches", result.Batches),
			zap.Duration("duration", result.Duration),
		)
		for _, o := range failed {
			logger.Warn("object skipped", zap.String("id", o.ID), zap.String("entry", o.Name), zap.Error(o.Err))
		}

		if len(failed) > 0 {
			return fmt.Errorf("%d of %d objects were skipped", len(failed), result.Total)
		}
		return nil
	},
}
