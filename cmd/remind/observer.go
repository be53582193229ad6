package main

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func observerCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "observer",
		Short: "Publish due reminder jobs to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Transport != "kafka" {
				return errors.New("observer needs REMIND_TRANSPORT=kafka; use standalone for the local transport")
			}
			ctx := cmd.Context()

			pub, err := a.kafkaPublisher()
			if err != nil {
				return err
			}
			obs, err := a.observer(ctx, pub)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				obs.Run(ctx)
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
