package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe every backend and record the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			results := a.router.CheckHealth(ctx)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tHEALTHY\tLAST ERROR")
			for _, id := range a.router.Backends() {
				m, _ := a.router.Metrics(id)
				lastErr := "-"
				if !results[id] && m.LastError != "" {
					lastErr = m.LastError
				}
				fmt.Fprintf(w, "%s\t%t\t%s\n", id, results[id], lastErr)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
