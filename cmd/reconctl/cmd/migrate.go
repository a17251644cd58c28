package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bank-reconciliation-backend/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := config.Migrate(a.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
