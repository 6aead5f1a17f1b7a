package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/infracollect/imgbundle/internal/runner"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Validate a job file",
	Arguments: jobArgument("The job file to validate (- reads stdin)"),
	Flags:     jobFlags(),
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		jobFilename := command.StringArg("job")
		if jobFilename == "" {
			return fmt.Errorf("no job file provided")
		}

		logger = logger.With(zap.String("job_filename", jobFilename))
		logger.Debug("validating job file")

		w := command.Root().Writer
		if _, err := loadJob(command); err != nil {
			var verr *runner.ValidationError
			if errors.As(err, &verr) {
				_, _ = fmt.Fprintln(w, verr.Error())
				return fmt.Errorf("job file '%s' is invalid", jobFilename)
			}
			return err
		}

		_, _ = fmt.Fprintf(w, "✓ Job file '%s' is valid\n", jobFilename)
		return nil
	},
}
