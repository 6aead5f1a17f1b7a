package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/infracollect/imgbundle/internal/runner"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "Print the objects an export would archive, one JSON document per line",
	Arguments: jobArgument("The job file to list (optional, - reads stdin)"),
	Flags:     jobFlags(),
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		job, err := loadJob(command)
		if err != nil {
			return err
		}

		// The stdout sink is never created by a listing.
		r, err := runner.New(ctx, logger.Named("runner"), job, runner.WithStdout(io.Discard))
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}
		defer func() {
			if err := r.Close(ctx); err != nil {
				logger.Warn("failed to close runner", zap.Error(err))
			}
		}()

		items, err := r.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list catalog: %w", err)
		}

		enc := json.NewEncoder(command.Root().Writer)
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return fmt.Errorf("failed to write item: %w", err)
			}
		}

		logger.Debug("listed catalog", zap.Int("objects", len(items)))
		return nil
	},
}
