package main

import (
	"github.com/spf13/cobra"
)

func apiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the task API and /metrics",
		Long: `Serve the HTTP task API. Reminders are submitted to the job queue;
run "observer" and "worker" (or "standalone") to deliver them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, a.cfg.HttpAddr, svc.Container(a.reg))
		},
	}
}
