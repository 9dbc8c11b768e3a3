package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	yall "yall.in"

	"tangl.es/code/media"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Find metadata records whose blob is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := yall.InContext(cmd.Context(), newLogger(cfg.Debug))
			// the LRU would only hide missing blobs
			cfg.CacheEntries = 0
			deps, closer, err := media.Open(ctx, cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer closer.Close()

			report, err := media.Audit(ctx, deps, prune)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, img := range report.Dangling {
				fmt.Fprintf(out, "missing blob\t%s\t%s\t%s\n", img.ID, img.Key, img.OriginalFilename)
			}
			fmt.Fprintf(out, "checked %d records, %d without blob, %d pruned\n", report.Checked, len(report.Dangling), report.Pruned)
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "delete records whose blob is missing")
	return cmd
}
