package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"copyforge/internal/checkpoint"
)

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Force-remove the run lock",
		Long: `Unlock removes the advisory run lock regardless of its holder. Use it
only when a run died without cleaning up and the stale-process detection
could not reclaim the lock (for example after a host reboot where the
pid was reused).`,
		RunE: func(*cobra.Command, []string) error {
			if err := checkpoint.ForceUnlock(cfg.LockPath()); err != nil {
				return err
			}
			fmt.Println("lock removed:", cfg.LockPath())
			return nil
		},
	}
}
