package main

import (
	"github.com/sensiblebit/certbatch"
	"github.com/sensiblebit/certbatch/internal/batch"
	"github.com/spf13/cobra"
)

var (
	convertOutDir     string
	convertFormat     = newChoiceValue(string(certbatch.FormatPEM), string(certbatch.FormatPEM), string(certbatch.FormatDER))
	convertRecursive  bool
	convertExtensions []string
	convertOverwrite  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <dir>",
	Short: "Convert certificates and keys between PEM and DER",
	Long: "Convert every certificate, key, and CSR under a directory to PEM or DER. " +
		"Outputs mirror the input tree under --out. Files that fail to parse are reported and skipped.",
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutDir, "out", "O", "", "Output directory (required)")
	convertCmd.Flags().VarP(convertFormat, "format", "f", "Output format: "+convertFormat.Choices())
	convertCmd.Flags().BoolVarP(&convertRecursive, "recursive", "r", false, "Descend into subdirectories")
	convertCmd.Flags().StringSliceVar(&convertExtensions, "ext", nil, "File extensions to include (default: certificate, key and CSR extensions)")
	convertCmd.Flags().BoolVar(&convertOverwrite, "overwrite", false, "Replace existing output files")
	_ = convertCmd.MarkFlagRequired("out")

	registerCompletion(convertCmd, completionInput{flagName: "out", completeFunc: directoryCompletion})
	registerCompletion(convertCmd, completionInput{flagName: "format", completeFunc: fixedCompletion("PEM", "DER")})
}

func runConvert(cmd *cobra.Command, args []string) error {
	opts := batch.ConvertOptions{
		InputDir:     args[0],
		OutputDir:    convertOutDir,
		OutputFormat: certbatch.Format(convertFormat.String()),
		Recursive:    convertRecursive,
		Extensions:   convertExtensions,
		Overwrite:    convertOverwrite,
	}
	out, err := executeJob(cmd.Context(), "Converting", opts)
	if err != nil {
		return err
	}
	return printResult(out.result)
}
