package main

import (
	"github.com/sensiblebit/certbatch"
	"github.com/sensiblebit/certbatch/internal/batch"
	"github.com/spf13/cobra"
)

var (
	extractOutDir     string
	extractFormat     = newChoiceValue(string(certbatch.FormatPEM), string(certbatch.FormatPEM), string(certbatch.FormatDER))
	extractRecursive  bool
	extractExtensions []string
	extractOverwrite  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract-public <dir>",
	Short: "Extract public keys from certificates, CSRs, and private keys",
	Long: "Write the public key of every certificate, CSR, private key, and PKCS#12 file under a " +
		"directory as <name>.pub.pem or <name>.pub.der. Encrypted inputs are tried with --passwords.",
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutDir, "out", "O", "", "Output directory (required)")
	extractCmd.Flags().VarP(extractFormat, "format", "f", "Output format: "+extractFormat.Choices())
	extractCmd.Flags().BoolVarP(&extractRecursive, "recursive", "r", false, "Descend into subdirectories")
	extractCmd.Flags().StringSliceVar(&extractExtensions, "ext", nil, "File extensions to include")
	extractCmd.Flags().BoolVar(&extractOverwrite, "overwrite", false, "Replace existing output files")
	_ = extractCmd.MarkFlagRequired("out")

	registerCompletion(extractCmd, completionInput{flagName: "out", completeFunc: directoryCompletion})
	registerCompletion(extractCmd, completionInput{flagName: "format", completeFunc: fixedCompletion("PEM", "DER")})
}

func runExtract(cmd *cobra.Command, args []string) error {
	passwords, err := loadPasswords()
	if err != nil {
		return err
	}
	opts := batch.ExtractPublicOptions{
		InputDir:     args[0],
		OutputDir:    extractOutDir,
		OutputFormat: certbatch.Format(extractFormat.String()),
		Recursive:    extractRecursive,
		Extensions:   extractExtensions,
		Passwords:    passwords,
		Overwrite:    extractOverwrite,
	}
	out, err := executeJob(cmd.Context(), "Extracting", opts)
	if err != nil {
		return err
	}
	return printResult(out.result)
}
