package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sensiblebit/certbatch/internal"
	"github.com/sensiblebit/certbatch/internal/batch"
	"github.com/spf13/cobra"
)

var runContinue bool

var runCmd = &cobra.Command{
	Use:   "run <jobs.yaml>",
	Short: "Run jobs defined in a YAML file",
	Long: "Run the jobs listed in a YAML job file in order. A file holds either a single job " +
		"or a defaults: mapping plus a jobs: list.",
	Args: cobra.ExactArgs(1),
	RunE: runJobFile,
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return yamlCompletion(cmd, args, toComplete)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runContinue, "keep-going", false, "Run remaining jobs after one fails")
}

func runJobFile(cmd *cobra.Command, args []string) error {
	configs, err := internal.LoadJobConfigs(args[0])
	if err != nil {
		return fmt.Errorf("loading job file: %w", err)
	}
	passwords, err := loadPasswords()
	if err != nil {
		return err
	}

	// Validate every entry before running any of them.
	opts := make([]batch.Options, len(configs))
	for i, c := range configs {
		if opts[i], err = c.Options(passwords); err != nil {
			return fmt.Errorf("job %d (%s): %w", i+1, c.Label(), err)
		}
	}
	return runJobs(cmd.Context(), configs, opts, runContinue, executeJob)
}

// jobExecutor runs one job; executeJob in production.
type jobExecutor func(ctx context.Context, label string, opts batch.Options) (*jobOutcome, error)

// runJobs runs the validated jobs in order. With keepGoing a failed job does
// not stop the rest, but an interrupt always does.
func runJobs(ctx context.Context, configs []internal.JobConfig, opts []batch.Options, keepGoing bool, exec jobExecutor) error {
	var errs []error
	for i, c := range configs {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("interrupted, skipped %d remaining job(s) from job %d (%s)", len(configs)-i, i+1, c.Label()))
			return errors.Join(errs...)
		}
		slog.Info("running job", "index", i+1, "of", len(configs), "label", c.Label())
		out, err := exec(ctx, c.Label(), opts[i])
		if err == nil {
			if out.report != nil {
				err = printReport(out, "none")
			} else {
				err = printResult(out.result)
			}
		}
		if err != nil {
			err = fmt.Errorf("job %d (%s): %w", i+1, c.Label(), err)
			if !keepGoing {
				return err
			}
			slog.Error("job failed", "label", c.Label(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
