package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func standaloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "standalone",
		Short: "Run API, observer and worker in one process",
		Long: `Run the API, the observer and the worker in one process.

With REMIND_TRANSPORT=local due jobs are handed to the worker in process;
with REMIND_TRANSPORT=kafka they travel through the reminders topic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			g, ctx := errgroup.WithContext(cmd.Context())

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			g.Go(func() error { return serve(ctx, a.cfg.HttpAddr, svc.Container(a.reg)) })

			var pub publisher
			if a.cfg.Transport == "kafka" {
				client, err := a.kafkaConsumer()
				if err != nil {
					return err
				}
				w, err := a.worker(ctx, client)
				if err != nil {
					return err
				}
				g.Go(func() error {
					w.Run(ctx)
					return nil
				})
				if pub, err = a.kafkaPublisher(); err != nil {
					return err
				}
			} else {
				w, err := a.worker(ctx, nil)
				if err != nil {
					return err
				}
				pub = w
			}

			obs, err := a.observer(ctx, pub)
			if err != nil {
				return err
			}
			g.Go(func() error {
				obs.Run(ctx)
				return nil
			})
			return g.Wait()
		},
	}
}
