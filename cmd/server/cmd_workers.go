package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/kirana/config"
	"github.com/shashiranjanraj/kirana/internal/server"
)

// kirana queue:work — run only the queue workers and scheduler, no HTTP.
// Useful for scaling background processing separately from the API.
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Run the queue workers and scheduler without the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.Bootstrap(ctx)
		if err != nil {
			return err
		}
		defer app.Close()
		if err := app.Migrate(); err != nil {
			return err
		}

		app.Queue.StartWorkers(ctx, config.QueueWorkers())
		app.Scheduler.Start(ctx)

		<-ctx.Done()
		return nil
	},
}
