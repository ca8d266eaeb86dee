package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/internal/server"
)

var syncFull bool

// kirana sync:run [warehouseID]
var syncRunCmd = &cobra.Command{
	Use:   "sync:run [warehouseID]",
	Short: "Reconcile one warehouse, or every configured warehouse",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := server.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		if err := app.Migrate(); err != nil {
			return err
		}

		if len(args) == 0 {
			app.SyncAllWarehouses(cmd.Context())
			return nil
		}

		summary, err := app.Sync.SyncWarehouse(cmd.Context(), args[0], services.SyncOptions{FullSync: syncFull})
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var retryForce bool

// kirana retry [recordID]
var retryCmd = &cobra.Command{
	Use:   "retry [recordID]",
	Short: "Retry one failed sync record, or every failed record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := server.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		if len(args) == 0 {
			outcomes, err := app.Retry.RetryAll(cmd.Context(), repositories.PendingFilter{})
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				status := "failed"
				switch {
				case o.Requeued:
					status = "requeued"
				case o.Succeeded:
					status = "ok"
				}
				fmt.Printf("record %d (%s/%s): %s %s\n", o.RecordID, o.EntityType, o.Direction, status, o.Message)
			}
			return nil
		}

		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid record id %q", args[0])
		}
		outcome, err := app.Retry.Retry(cmd.Context(), uint(id), retryForce)
		if err != nil {
			return err
		}
		fmt.Printf("record %d retried: succeeded=%v requeued=%v\n", outcome.RecordID, outcome.Succeeded, outcome.Requeued)
		return nil
	},
}

func init() {
	syncRunCmd.Flags().BoolVar(&syncFull, "full", false, "rewrite every matched product even when unchanged")
	retryCmd.Flags().BoolVar(&retryForce, "force", false, "run the record's action immediately instead of requeueing it, accepting stuck pending records too")
}
