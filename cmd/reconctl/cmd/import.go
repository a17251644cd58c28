package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bank-reconciliation-backend/internal/services/importer"
	"bank-reconciliation-backend/internal/statementfile"
)

var (
	importAccount string
	importFile    string
	importBatch   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV or XLSX bank statement",
	Long: `Import parses a statement file and stores its lines for the given bank
account. Lines already imported for the account are counted as duplicates and
left untouched, so the same file can be imported again safely.

Examples:
  reconctl import --account 6f1c... --file january.csv
  reconctl import --account 6f1c... --file january.xlsx --batch 0b7e...`,
	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importAccount, "account", "a", "", "bank account id (required)")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "statement file, .csv or .xlsx (required)")
	importCmd.Flags().StringVarP(&importBatch, "batch", "b", "", "existing batch id to import into")

	importCmd.MarkFlagRequired("account")
	importCmd.MarkFlagRequired("file")
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	if _, err := uuid.Parse(importAccount); err != nil {
		return fmt.Errorf("invalid --account %q: %w", importAccount, err)
	}
	if importBatch != "" {
		if _, err := uuid.Parse(importBatch); err != nil {
			return fmt.Errorf("invalid --batch %q: %w", importBatch, err)
		}
	}
	return validateFileExists(importFile, "statement file")
}

func validateFileExists(path, description string) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", description)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", description, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory", description, path)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(importFile)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := statementfile.Parse(f, filepath.Base(importFile))
	if err != nil {
		return err
	}

	opts := importer.ImportOptions{Actor: actor}
	if importBatch != "" {
		id := uuid.MustParse(importBatch)
		opts.BatchID = &id
	}
	result, err := a.importer.ImportLines(cmd.Context(), uuid.MustParse(importAccount), raw, opts)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}
