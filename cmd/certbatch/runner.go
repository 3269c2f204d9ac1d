package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensiblebit/certbatch/internal"
	"github.com/sensiblebit/certbatch/internal/batch"
)

// jobOutcome is what a finished job produced.
type jobOutcome struct {
	result *batch.Result
	report *batch.ExpirationReport
}

// errItemsFailed marks a job that finished with failed items.
var errItemsFailed = errors.New("item(s) failed")

// loadPasswords merges the built-in defaults with --passwords and
// --password-file.
func loadPasswords() ([]string, error) {
	passwords, err := internal.ProcessPasswords(passwordList, passwordFile)
	if err != nil {
		return nil, fmt.Errorf("loading passwords: %w", err)
	}
	return passwords, nil
}

// executeJob submits and runs one job, rendering progress and recording the
// result in the history database when one is configured. Cancelling ctx
// cancels the job cooperatively.
func executeJob(ctx context.Context, label string, opts batch.Options) (*jobOutcome, error) {
	o := batch.New(batch.Config{Workers: workers})

	id, err := o.Submit(ctx, opts)
	if err != nil {
		return nil, err
	}
	job, err := o.Job(id)
	if err != nil {
		return nil, err
	}

	progress, unsubscribe, err := o.Subscribe(id)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		showProgress(progress, job.TotalItems, label)
	}()

	if err := o.Run(ctx, id); err != nil {
		return nil, err
	}
	<-rendered

	out := &jobOutcome{}
	if out.result, err = o.Result(id); err != nil {
		return nil, err
	}
	if job.Type == batch.JobExpirationReport {
		if out.report, err = o.ExpirationReport(id); err != nil {
			return nil, err
		}
	}

	if historyPath != "" {
		if err := recordHistory(o, id, label, out.result); err != nil {
			slog.Warn("recording job history", "error", err)
		}
	}
	return out, nil
}

func recordHistory(o *batch.Orchestrator, id, label string, res *batch.Result) error {
	job, err := o.Job(id)
	if err != nil {
		return err
	}
	h, err := internal.OpenHistory(historyPath)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.Record(label, *job.StartTime, res)
}

// interruptContext returns a context cancelled by the first SIGINT or
// SIGTERM. The handler is then released so a second signal terminates the
// process.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			slog.Warn("interrupted, waiting for in-flight items", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// printResult writes the job summary and converts failed items or
// cancellation into a command error.
func printResult(res *batch.Result) error {
	text, err := internal.FormatResult(res, outputFormat.String())
	if err != nil {
		return err
	}
	fmt.Print(text)
	return resultError(res)
}

func resultError(res *batch.Result) error {
	if res.FailedCount > 0 {
		return fmt.Errorf("%d %w", res.FailedCount, errItemsFailed)
	}
	if res.Status == batch.JobCancelled {
		return fmt.Errorf("job %s cancelled after %d of %d item(s)", res.JobID, res.SuccessCount+res.FailedCount, res.TotalItems)
	}
	return nil
}
