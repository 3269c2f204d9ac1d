package main

import (
	"errors"
	"fmt"

	"github.com/sensiblebit/certbatch/internal"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previously run jobs",
	Long:  "List jobs recorded in the --history-db database, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of jobs to list (0 for all)")
}

func runHistory(_ *cobra.Command, _ []string) error {
	if historyPath == "" {
		return errors.New("--history-db is required")
	}
	h, err := internal.OpenHistory(historyPath)
	if err != nil {
		return err
	}
	defer h.Close()

	records, err := h.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 && outputFormat.String() != internal.OutputJSON {
		fmt.Println("No jobs recorded.")
		return nil
	}
	text, err := internal.FormatHistory(records, outputFormat.String())
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
