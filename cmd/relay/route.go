package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/router"
	"github.com/pario-ai/relay/pkg/selector"
)

func newRouteCmd() *cobra.Command {
	var (
		configPath   string
		candidates   []string
		strategy     string
		systemPrompt string
		model        string
		temperature  float64
		maxTokens    int
		noCache      bool
		timeout      time.Duration
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "route <query>",
		Short: "Route a single query and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			q := models.NewQuery(strings.Join(args, " "))
			q.Model = model
			q.SystemPrompt = systemPrompt
			q.Temperature = temperature
			q.MaxTokens = maxTokens

			opts := router.Options{NoCache: noCache, AttemptTimeout: timeout}
			if cmd.Flags().Changed("backend") {
				opts.Candidates = make([]models.BackendID, 0, len(candidates))
				for _, c := range candidates {
					id, err := models.ParseBackendID(c)
					if err != nil {
						return err
					}
					opts.Candidates = append(opts.Candidates, id)
				}
			}
			if strategy != "" {
				st, err := selector.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				opts.Strategy = st
			}

			res, err := a.router.Route(ctx, q, opts)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Printf("Backend: %s\nUnits:   %d\nCost:    $%.6f\nLatency: %s\n\n%s\n",
				res.Backend, res.Units, res.Cost, res.Latency.Round(time.Millisecond), res.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringSliceVar(&candidates, "backend", nil, "explicit candidate order, e.g. claude,openai")
	cmd.Flags().StringVar(&strategy, "strategy", "", "candidate ordering: cheapest, healthiest or fastest")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt")
	cmd.Flags().StringVar(&model, "model", "", "model hint passed to the backend")
	cmd.Flags().Float64Var(&temperature, "temperature", models.DefaultTemperature, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", models.DefaultMaxTokens, "maximum output tokens")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the cache lookup")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout override")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
