package main

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func workerCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume reminder jobs from Kafka and post notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Transport != "kafka" {
				return errors.New("worker needs REMIND_TRANSPORT=kafka; use standalone for the local transport")
			}
			ctx := cmd.Context()

			client, err := a.kafkaConsumer()
			if err != nil {
				return err
			}
			w, err := a.worker(ctx, client)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				w.Run(ctx)
				return nil
			})
			if metricsAddr != "" {
				g.Go(func() error { return serve(ctx, metricsAddr, a.metricsHandler()) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	return cmd
}
