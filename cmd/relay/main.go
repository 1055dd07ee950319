package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

const defaultConfigPath = "relay.yaml"

func main() {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Cost-ordered failover router for LLM backends",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newRouteCmd(),
		newHealthCmd(),
		newMetricsCmd(),
		newSelectCmd(),
		newCacheCmd(),
		newAuditCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
