package main

import (
	"fmt"

	"github.com/sensiblebit/certbatch/internal"
	"github.com/sensiblebit/certbatch/internal/batch"
	"github.com/spf13/cobra"
)

var (
	expiryRecursive   bool
	expiryExtensions  []string
	expiryWarningDays int
	expiryTrustStore  string
	expiryFailOn      = newChoiceValue("none", "none", "expiring", "expired")
)

var expiryCmd = &cobra.Command{
	Use:   "expiry-report <dir>",
	Short: "Report certificate expirations",
	Long: "Parse every certificate under a directory and classify it as valid, expiring soon, or expired. " +
		"Use --fail-on to make the command exit non-zero for monitoring.",
	Args: cobra.ExactArgs(1),
	RunE: runExpiry,
}

func init() {
	expiryCmd.Flags().BoolVarP(&expiryRecursive, "recursive", "r", false, "Descend into subdirectories")
	expiryCmd.Flags().StringSliceVar(&expiryExtensions, "ext", nil, "File extensions to include")
	expiryCmd.Flags().IntVar(&expiryWarningDays, "warning-days", batch.DefaultWarningDays, "Days before expiry a certificate counts as expiring soon (0: expires today)")
	expiryCmd.Flags().StringVar(&expiryTrustStore, "trust-store", "", "Also check each chain against a trust store: system, mozilla")
	expiryCmd.Flags().Var(expiryFailOn, "fail-on", "Exit non-zero when certificates are: "+expiryFailOn.Choices())

	registerCompletion(expiryCmd, completionInput{flagName: "trust-store", completeFunc: fixedCompletion("system", "mozilla")})
	registerCompletion(expiryCmd, completionInput{flagName: "fail-on", completeFunc: fixedCompletion("none", "expiring", "expired")})
}

func runExpiry(cmd *cobra.Command, args []string) error {
	if expiryWarningDays < 0 {
		return fmt.Errorf("--warning-days must not be negative, got %d", expiryWarningDays)
	}
	passwords, err := loadPasswords()
	if err != nil {
		return err
	}
	opts := batch.ExpirationReportOptions{
		InputDir:    args[0],
		Recursive:   expiryRecursive,
		Extensions:  expiryExtensions,
		WarningDays: batch.WarningWindow(expiryWarningDays),
		TrustStore:  expiryTrustStore,
		Passwords:   passwords,
	}
	out, err := executeJob(cmd.Context(), "Scanning", opts)
	if err != nil {
		return err
	}
	return printReport(out, expiryFailOn.String())
}

// printReport writes the expiration report and applies the --fail-on policy.
// Unparseable files are logged but do not fail the report on their own.
func printReport(out *jobOutcome, failOn string) error {
	text, err := internal.FormatExpirationReport(out.report, outputFormat.String())
	if err != nil {
		return err
	}
	fmt.Print(text)

	for _, it := range out.result.FailedItems() {
		if outputFormat.String() != internal.OutputJSON {
			fmt.Printf("skipped %s: %s\n", it.InputPath, it.ErrorMessage)
		}
	}
	if out.result.Status == batch.JobCancelled {
		return resultError(out.result)
	}
	return reportError(out.report, failOn)
}

func reportError(rep *batch.ExpirationReport, failOn string) error {
	switch failOn {
	case "expired":
		if rep.ExpiredCount > 0 {
			return fmt.Errorf("%d certificate(s) expired", rep.ExpiredCount)
		}
	case "expiring":
		if n := rep.ExpiredCount + rep.ExpiringSoonCount; n > 0 {
			return fmt.Errorf("%d certificate(s) expired or expiring within %d days", n, rep.WarningDays)
		}
	}
	return nil
}
