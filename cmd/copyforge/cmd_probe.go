package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"copyforge/internal/catalog"
	"copyforge/internal/journal"
	"copyforge/internal/recovery"
)

func newProbeCmd() *cobra.Command {
	var (
		itemsPath string
		buckets   []string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Re-check rejected items' evidence without generating",
		Long: `Probe re-fetches and re-classifies the evidence for rejected items so
transient source problems (outages, cookie walls, thin pages) can be
detected at zero generation cost. By default it probes the evidence
buckets only; pass --bucket to target specific codes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := catalog.Load(itemsPath)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(logger)

			records, err := a.rejects.ReadAll()
			if err != nil {
				return err
			}
			report := recovery.BuildReport(records)

			codes := parseCodes(buckets)
			if len(codes) == 0 {
				for _, b := range report.Buckets {
					if b.Code.ProbeOnly() {
						codes = append(codes, b.Code)
					}
				}
			}

			targets, err := recovery.SelectItems(report, codes, catalog.Index(items), a.store)
			if err != nil {
				return err
			}

			prober := recovery.NewProber(a.fetcher, logger)
			results, err := prober.Probe(cmd.Context(), targets)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&itemsPath, "items", "items.json", "work-item snapshot file")
	cmd.Flags().StringSliceVar(&buckets, "bucket", nil, "reject codes to probe (default: evidence buckets)")
	return cmd
}

func parseCodes(raw []string) []journal.Code {
	out := make([]journal.Code, 0, len(raw))
	for _, r := range raw {
		out = append(out, journal.Code(r))
	}
	return out
}
