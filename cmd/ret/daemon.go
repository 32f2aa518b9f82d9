package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/engine"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the sync engine continuously. The daemon:

  - probes the remote and syncs on a fixed interval (sync.interval,
    default 5m), coming back online automatically after an outage
  - watches the cache file and replays queued changes when another
    process (a ret command in a second terminal) writes it

Useful alongside interactive use: commands queue changes instantly and
the daemon ships them in the background.

Example usage:
  ret daemon
  ret daemon --interval 1m`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")

		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		// Rebuild the engine with a console notifier (and interval
		// override, if any) in place of the default quiet one.
		engCfg := engine.DefaultConfig()
		engCfg.ResyncInterval = a.cfg.SyncInterval
		if interval > 0 {
			engCfg.ResyncInterval = interval
		}
		engCfg.Logger = a.logger
		engCfg.Notifier = func(kind engine.NotifyKind, msg string) {
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), kind, msg)
		}
		a.engine = engine.New(a.store, a.queue, a.gateway, engCfg)

		watcher, err := engine.NewCacheWatcher(filepath.Dir(a.store.Path()), 0, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			a.engine.HandleCacheChange(ctx)
		}, a.logger)
		if err != nil {
			exitErr("%v", err)
		}
		if err := watcher.Start(); err != nil {
			exitErr("%v", err)
		}
		defer watcher.Stop()

		if err := a.engine.Start(); err != nil {
			exitErr("%v", err)
		}
		defer a.engine.Stop()

		// First cycle immediately rather than waiting out the interval.
		if err := a.engine.SyncNow(context.Background()); err != nil {
			a.logger.Printf("initial sync failed, will retry: %v", err)
		}

		fmt.Printf("Sync daemon running (state: %s). Press Ctrl+C to stop.\n", a.engine.State())

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Override the sync interval")
	rootCmd.AddCommand(daemonCmd)
}
