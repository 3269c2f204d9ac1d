package main

import (
	"fmt"

	"github.com/sensiblebit/certbatch/internal"
	"github.com/spf13/cobra"
)

var (
	logLevel     string
	passwordList []string
	passwordFile string
	historyPath  string
	workers      int
	outputFormat = newChoiceValue(internal.OutputText, internal.OutputFormats...)
	noProgress   bool
)

var rootCmd = &cobra.Command{
	Use:   "certbatch",
	Short: "Batch certificate operations",
	Long: "Run certificate jobs over whole directories: convert between PEM and DER, " +
		"extract public keys, report expirations, and import certificates into a JKS truststore.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		internal.SetupLogger(logLevel)
		if workers < 1 {
			return fmt.Errorf("--workers must be at least 1, got %d", workers)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	pf.StringSliceVarP(&passwordList, "passwords", "p", nil, "Comma-separated passwords for encrypted keys and containers")
	pf.StringVar(&passwordFile, "password-file", "", "File containing passwords, one per line")
	pf.StringVar(&historyPath, "history-db", "", "SQLite database recording finished jobs (default: no history)")
	pf.IntVarP(&workers, "workers", "w", 1, "Files processed concurrently within a job")
	pf.VarP(outputFormat, "output", "o", "Output format: "+outputFormat.Choices())
	pf.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	registerCompletion(rootCmd, completionInput{flagName: "log-level", completeFunc: fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{flagName: "output", completeFunc: fixedCompletion(internal.OutputFormats...)})
	registerCompletion(rootCmd, completionInput{flagName: "password-file", completeFunc: fileCompletion})
	registerCompletion(rootCmd, completionInput{flagName: "history-db", completeFunc: fileCompletion})

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(expiryCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}
