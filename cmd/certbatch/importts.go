package main

import (
	"errors"
	"os"

	"github.com/sensiblebit/certbatch/internal/batch"
	"github.com/spf13/cobra"
)

var (
	importKeystore    string
	importPassword    string
	importAliasPrefix string
	importRecursive   bool
	importExtensions  []string
)

var importCmd = &cobra.Command{
	Use:   "import-truststore <dir>",
	Short: "Import certificates into a JKS truststore",
	Long: "Add every certificate under a directory to a JKS truststore as a trusted certificate entry. " +
		"Aliases are <prefix>-<index>-<file name>; existing aliases are never overwritten. " +
		"The keystore password may also be given in CERTBATCH_KEYSTORE_PASSWORD.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importKeystore, "keystore", "k", "", "Truststore path, created if missing (required)")
	importCmd.Flags().StringVar(&importPassword, "keystore-password", "", "Truststore password (at least 6 characters)")
	importCmd.Flags().StringVar(&importAliasPrefix, "alias-prefix", "cert", "Prefix for generated aliases")
	importCmd.Flags().BoolVarP(&importRecursive, "recursive", "r", false, "Descend into subdirectories")
	importCmd.Flags().StringSliceVar(&importExtensions, "ext", nil, "File extensions to include")
	_ = importCmd.MarkFlagRequired("keystore")

	registerCompletion(importCmd, completionInput{flagName: "keystore", completeFunc: fileCompletion})
}

func runImport(cmd *cobra.Command, args []string) error {
	password := importPassword
	if password == "" {
		password = os.Getenv("CERTBATCH_KEYSTORE_PASSWORD")
	}
	if password == "" {
		return errors.New("--keystore-password or CERTBATCH_KEYSTORE_PASSWORD is required")
	}
	passwords, err := loadPasswords()
	if err != nil {
		return err
	}
	opts := batch.ImportTruststoreOptions{
		InputDir:         args[0],
		KeystorePath:     importKeystore,
		KeystorePassword: password,
		AliasPrefix:      importAliasPrefix,
		Recursive:        importRecursive,
		Extensions:       importExtensions,
		Passwords:        passwords,
	}
	out, err := executeJob(cmd.Context(), "Importing", opts)
	if err != nil {
		return err
	}
	return printResult(out.result)
}
