package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			stats, err := a.router.CacheStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Driver:  %s\nEntries: %d\nHits:    %d\nMisses:  %d\n",
				a.cfg.Cache.Driver, stats.Entries, stats.Hits, stats.Misses)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.router.ClearCache(ctx); err != nil {
				return err
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
