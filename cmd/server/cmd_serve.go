package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/kirana/internal/server"
)

// kirana serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server, queue workers and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.Bootstrap(ctx)
		if err != nil {
			return err
		}
		if err := app.Migrate(); err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

// kirana route:list
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all registered named routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := server.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		routes := app.Router.Routes()
		names := make([]string, 0, len(routes))
		for name := range routes {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Printf("%-28s %s\n", name, routes[name])
		}
		return nil
	},
}
