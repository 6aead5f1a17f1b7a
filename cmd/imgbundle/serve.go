package main

import (
	"context"
	"fmt"
	"io"

	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/infracollect/imgbundle/internal/runner"
	"github.com/infracollect/imgbundle/internal/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var serveCommand = &cli.Command{
	Name:      "serve",
	Usage:     "Serve the catalog archive over HTTP at /download",
	Arguments: jobArgument("The job file configuring the catalog (optional, - reads stdin)"),
	Flags: append(jobFlags(),
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.EnvVars("PORT"),
		},
		&cli.DurationFlag{
			Name:  "shutdown-timeout",
			Value: server.DefaultShutdownTimeout,
			Usage: "Time allowed for in-flight downloads after a shutdown signal",
		},
	),
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		job, err := loadJob(command)
		if err != nil {
			return err
		}

		// Downloads go to the response, so no sink writes to stdout.
		registry := runner.BuildRegistry(logger.Named("registry"), io.Discard)
		collector, err := runner.BuildCollector(ctx, registry, job.Spec.Source)
		if err != nil {
			return err
		}
		defer func() {
			if err := collector.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to close collector", zap.Error(err))
			}
		}()

		build := func(opts ...engine.PipelineOption) (*engine.Pipeline, error) {
			return runner.BuildPipeline(logger.Named("pipeline"), collector, job.Spec.Pipeline, opts...)
		}

		s, err := server.New(logger.Named("server"), build, server.WithShutdownTimeout(command.Duration("shutdown-timeout")))
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		addr := fmt.Sprintf(":%d", command.Int("port"))
		logger.Info("listening", zap.String("addr", addr), zap.String("collector", collector.Name()))
		return s.ListenAndServe(ctx, addr)
	},
}
