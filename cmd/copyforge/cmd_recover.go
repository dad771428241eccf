package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"copyforge/internal/catalog"
	"copyforge/internal/recovery"
)

func newRecoverCmd() *cobra.Command {
	var (
		itemsPath string
		buckets   []string
		relaxed   bool
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Re-run rejected items through the pipeline",
		Long: `Recover selects rejected items by their error bucket and pushes them
back through the full pipeline with checkpoint override enabled. Each
item's retry counter is bumped; items over the retry ceiling are parked
as abandoned instead of being attempted again. With --relaxed the
structural and grounding thresholds are widened per the recovery config
(keyword and safety rules never relax).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := catalog.Load(itemsPath)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, logger, appOptions{
				override: true,
				relaxed:  relaxed,
				generate: true,
			})
			if err != nil {
				return err
			}
			defer a.close(logger)

			records, err := a.rejects.ReadAll()
			if err != nil {
				return err
			}
			report := recovery.BuildReport(records)

			targets, err := recovery.SelectItems(report, parseCodes(buckets), catalog.Index(items), a.store)
			if err != nil {
				return err
			}

			pass := recovery.NewPass(a.store, a.rejects, a.runner, cfg.Recovery, logger)
			summary, parked, err := pass.Run(cmd.Context(), targets)
			if err != nil {
				return err
			}

			out := struct {
				Parked  int         `json:"parked"`
				Summary interface{} `json:"summary"`
			}{Parked: parked, Summary: summary}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&itemsPath, "items", "items.json", "work-item snapshot file")
	cmd.Flags().StringSliceVar(&buckets, "bucket", nil, "reject codes to recover (default: all recoverable)")
	cmd.Flags().BoolVar(&relaxed, "relaxed", false, "widen structural and grounding thresholds")
	return cmd
}
