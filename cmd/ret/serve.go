package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/logging"
	"github.com/retentionapp/retention/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the bundled remote service",
	Long: `Run the retention remote service: the REST API the sync engine talks
to, backed by its own SQLite database. Point multiple devices at one
instance to share topics between them.

Endpoints:
  GET  /api/time                     Server clock (used for skew correction)
  POST /api/users/register           Register a device, returns the user
  GET  /api/topics?userId=...        List topics
  POST /api/topics                   Create a topic with its 1-4-7 reviews
  PUT  /api/topics/{id}              Edit a topic
  DELETE /api/topics/{id}            Delete a topic
  POST /api/topics/{id}/review       Complete the next review
  GET  /api/dashboard?userId=...     Stats summary
  GET  /api/calendar?userId=...      Review calendar
  GET  /ws                           WebSocket change notifications

Example usage:
  ret serve
  ret serve --addr :8080`,
	Run: func(cmd *cobra.Command, args []string) {
		srvCfg := cfg.Server
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			srvCfg.Addr = addr
		}
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			srvCfg.DBPath = dbPath
		}
		logger := logging.New("[serve] ", cfg.Log)

		st, err := server.OpenStore(srvCfg.DBPath)
		if err != nil {
			exitErr("%v", err)
		}

		srv := server.New(srvCfg, st, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		fmt.Printf("Remote service on http://localhost%s (db: %s)\n", srvCfg.Addr, srvCfg.DBPath)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		select {
		case err := <-errCh:
			if err != nil {
				exitErr("%v", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			fmt.Println("\nShutting down...")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				exitErr("%v", err)
			}
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :3001)")
	serveCmd.Flags().String("db", "", "Server database path")
	rootCmd.AddCommand(serveCmd)
}
