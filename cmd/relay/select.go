package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/relay/pkg/selector"
)

func newSelectCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "select [cheapest|healthiest|fastest]",
		Short: "Show which backend a strategy would try first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			st, err := selector.ParseStrategy(name)
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			order := a.router.Order(st)
			if len(order) == 0 {
				fmt.Println("No backends configured.")
				return nil
			}
			names := make([]string, len(order))
			for i, id := range order {
				names[i] = string(id)
			}
			fmt.Printf("Strategy: %s\nSelected: %s\nOrder:    %s\n", st, order[0], strings.Join(names, " → "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
