package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/scheduler"
	"github.com/pario-ai/relay/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the routing HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if listen == "" {
				listen = a.cfg.Listen
			}

			jobs := []scheduler.Job{scheduler.HealthJob(a.cfg.Health.Schedule, a.router, a.logger)}
			if a.persister != nil {
				jobs = append(jobs, scheduler.SaveJob(a.cfg.Metrics.SaveSchedule, a.store, a.persister))
			}
			sched := scheduler.New(a.logger, jobs...)
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			defer sched.Stop()

			a.logger.Info("starting relay",
				zap.String("config", configPath),
				zap.Int("backends", len(a.router.Backends())),
				zap.String("cache", a.cfg.Cache.Driver),
			)
			return server.New(listen, a.router, a.logger).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
