package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bank-reconciliation-backend/internal/services/reconciliation"
)

var (
	batchFlag      string
	adjustmentFlag bool
)

var autoMatchCmd = &cobra.Command{
	Use:   "auto-match",
	Short: "Run auto-matching over a batch's unmatched lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := batchID()
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		summary, err := a.engine.AutoMatchBatch(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Recount a batch and mark it COMPLETED or IN_REVIEW",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := batchID()
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		batch, err := a.reconciler.CompleteBatch(cmd.Context(), id,
			reconciliation.CompleteOptions{CreateAdjustmentEntry: adjustmentFlag}, actor)
		if err != nil {
			return err
		}
		return printJSON(cmd, batch)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare a batch's stored counters with its lines and matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := batchID()
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		report, err := a.reconciler.VerifyCounters(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		if !report.Consistent {
			return fmt.Errorf("batch %s counters drifted", id)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{autoMatchCmd, completeCmd, verifyCmd} {
		c.Flags().StringVarP(&batchFlag, "batch", "b", "", "batch id (required)")
		c.MarkFlagRequired("batch")
		rootCmd.AddCommand(c)
	}
	completeCmd.Flags().BoolVar(&adjustmentFlag, "adjustment", false, "request a ledger adjustment entry")
}

func batchID() (uuid.UUID, error) {
	id, err := uuid.Parse(batchFlag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --batch %q: %w", batchFlag, err)
	}
	return id, nil
}
