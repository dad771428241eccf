package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"copyforge/internal/checkpoint"
	"copyforge/internal/recovery"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize checkpoint state and journal contents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(logger)

			records, err := a.rejects.ReadAll()
			if err != nil {
				return err
			}

			out := struct {
				States       map[checkpoint.State]int `json:"states"`
				Accepted     int64                    `json:"accepted_records"`
				Rejects      recovery.Report          `json:"rejects"`
				Fingerprints int                      `json:"fingerprint_window"`
			}{
				States:       a.store.Counts(),
				Accepted:     a.accepted.Len(),
				Rejects:      recovery.BuildReport(records),
				Fingerprints: a.guard.WindowSize(),
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
