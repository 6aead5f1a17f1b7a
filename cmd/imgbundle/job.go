package main

import (
	"fmt"
	"io"
	"os"

	v1 "github.com/infracollect/imgbundle/apis/v1"
	"github.com/infracollect/imgbundle/internal/runner"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
)

func jobArgument(usage string) []cli.Argument {
	return []cli.Argument{
		&cli.StringArg{
			Name:      "job",
			UsageText: usage,
		},
	}
}

// jobFlags returns fresh flag instances; flags keep their parsed value, so
// commands cannot share them.
func jobFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "allowed-env",
			Usage: "Environment variables allowed in job configuration (can be repeated)",
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Cloudflare API token",
			Sources: cli.EnvVars("CF_API_TOKEN", "TOKEN"),
		},
		&cli.StringFlag{
			Name:    "account-id",
			Usage:   "Cloudflare account id",
			Sources: cli.EnvVars("CF_ACCOUNT_ID", "ACCOUNT_ID"),
		},
		&cli.StringFlag{
			Name:    "account-hash",
			Usage:   "Cloudflare Images account hash used by delivery URLs",
			Sources: cli.EnvVars("CF_ACCOUNT_HASH", "ACCOUNT_HASH"),
		},
		&cli.StringFlag{
			Name:    "api-base-url",
			Usage:   "Override the Cloudflare API base URL",
			Sources: cli.EnvVars("CF_API_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "delivery-base-url",
			Usage:   "Override the image delivery base URL",
			Sources: cli.EnvVars("CF_DELIVERY_BASE_URL"),
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Number of objects fetched concurrently",
			Sources: cli.EnvVars("BATCH_SIZE"),
		},
		&cli.BoolFlag{
			Name:    "fail-fast",
			Usage:   "Abort the export on the first failed object",
			Sources: cli.EnvVars("FAIL_FAST"),
		},
		&cli.IntFlag{
			Name:    "fetch-timeout",
			Usage:   "Seconds to wait for data on each download",
			Sources: cli.EnvVars("FETCH_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "duplicates",
			Usage:   "Policy for repeated filenames (rename, reject, overwrite)",
			Sources: cli.EnvVars("DUPLICATES"),
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: "CEL expression selecting the objects to export",
		},
		&cli.IntFlag{
			Name:  "compression-level",
			Usage: "Deflate level from -2 (huffman only) to 9",
		},
	}
}

func defaultJob() v1.ExportJob {
	return v1.ExportJob{
		Kind:     v1.ExportJobKind,
		Metadata: v1.Metadata{Name: "imgbundle"},
		Spec: v1.ExportJobSpec{
			Source: v1.SourceSpec{Cloudflare: &v1.CloudflareCollector{}},
		},
	}
}

// loadJob reads the optional job file, expands its templates and applies the
// flags that were set on the command line or through their environment
// variables. Flag values are taken literally. The result is validated.
func loadJob(command *cli.Command) (v1.ExportJob, error) {
	job := defaultJob()

	if filename := command.StringArg("job"); filename != "" {
		data, err := readJobFile(command, filename)
		if err != nil {
			return v1.ExportJob{}, fmt.Errorf("failed to read job file '%s': %w", filename, err)
		}

		job, err = runner.DecodeExportJob(data)
		if err != nil {
			return v1.ExportJob{}, err
		}
	}

	variables, err := runner.BuildVariables(job, command.StringSlice("allowed-env"))
	if err != nil {
		return v1.ExportJob{}, fmt.Errorf("failed to build variables: %w", err)
	}

	if err := runner.ExpandTemplates(&job, variables); err != nil {
		return v1.ExportJob{}, fmt.Errorf("failed to expand templates: %w", err)
	}

	applyFlags(command, &job)

	if err := runner.ValidateExportJob(job); err != nil {
		return v1.ExportJob{}, err
	}
	return job, nil
}

func applyFlags(command *cli.Command, job *v1.ExportJob) {
	if job.Spec.Source.Cloudflare == nil {
		job.Spec.Source.Cloudflare = &v1.CloudflareCollector{}
	}
	cf := job.Spec.Source.Cloudflare

	if command.IsSet("token") {
		cf.Token = command.String("token")
	}
	if command.IsSet("account-id") {
		cf.AccountID = command.String("account-id")
	}
	if command.IsSet("account-hash") {
		cf.AccountHash = command.String("account-hash")
	}
	if command.IsSet("api-base-url") {
		cf.APIBaseURL = lo.ToPtr(command.String("api-base-url"))
	}
	if command.IsSet("delivery-base-url") {
		cf.DeliveryBaseURL = lo.ToPtr(command.String("delivery-base-url"))
	}

	ps := lo.FromPtr(job.Spec.Pipeline)
	if command.IsSet("batch-size") {
		ps.BatchSize = lo.ToPtr(command.Int("batch-size"))
	}
	if command.IsSet("fail-fast") {
		ps.FailFast = command.Bool("fail-fast")
	}
	if command.IsSet("fetch-timeout") {
		ps.FetchTimeout = lo.ToPtr(command.Int("fetch-timeout"))
	}
	if command.IsSet("duplicates") {
		ps.Duplicates = command.String("duplicates")
	}
	if command.IsSet("filter") {
		ps.Filter = command.String("filter")
	}
	if command.IsSet("compression-level") {
		ps.CompressionLevel = lo.ToPtr(command.Int("compression-level"))
	}
	if job.Spec.Pipeline != nil || ps != (v1.PipelineSpec{}) {
		job.Spec.Pipeline = &ps
	}
}

// readJobFile reads filename, or the command's input when filename is "-".
func readJobFile(command *cli.Command, filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(command.Root().Reader)
	}
	return os.ReadFile(filename)
}
