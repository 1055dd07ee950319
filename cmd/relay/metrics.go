package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMetricsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show persisted per-backend routing metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tHEALTH\tATTEMPTS\tSUCCESS\tFAILED\tSUCCESS RATE\tAVAILABILITY\tCOST")
			for _, m := range a.router.AllMetrics() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.1f%%\t%.2f\t$%.4f\n",
					m.ID, m.Health, m.Attempts, m.Successes, m.Failures,
					m.SuccessRate()*100, m.Availability(), m.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
