package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"copyforge/internal/catalog"
)

func newRunCmd() *cobra.Command {
	var (
		itemsPath   string
		concurrency int
		maxItems    int
		budgetCap   float64
		override    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the items file end to end",
		Long: `Run leases pending items from the checkpoint, fetches their evidence,
generates and validates copy decks, and journals every terminal outcome.
Interrupting the run is safe: leases are released and a rerun resumes
exactly where this one stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if concurrency > 0 {
				cfg.Pool.Concurrency = concurrency
			}
			if maxItems > 0 {
				cfg.Pool.MaxItems = maxItems
			}
			if budgetCap > 0 {
				cfg.Budget.Cap = budgetCap
			}

			items, err := catalog.Load(itemsPath)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, logger, appOptions{
				override: override,
				generate: true,
			})
			if err != nil {
				return err
			}
			defer a.close(logger)

			summary, err := a.runner.Run(cmd.Context(), items)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			if summary.BudgetAbort {
				return fmt.Errorf("run stopped: budget cap %.2f reached (spent %.4f)",
					summary.Ledger.Cap, summary.Ledger.CostSoFar)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&itemsPath, "items", "items.json", "work-item snapshot file")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count (overrides config)")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "stop after this many items")
	cmd.Flags().Float64Var(&budgetCap, "budget-cap", 0, "hard cost cap (overrides config)")
	cmd.Flags().BoolVar(&override, "override-checkpoint", false, "reprocess items already done or rejected")
	return cmd
}
