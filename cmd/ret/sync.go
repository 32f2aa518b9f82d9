package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync the local cache with the remote service",
	Long: `Run one sync cycle against the configured remote:

  1. Replay queued offline changes, oldest first. The replay stops at
     the first failure; nothing is lost, the rest stays queued.
  2. Fetch the full remote topic list.
  3. Replace the local cache with it.

Topics created offline get their canonical remote id during step 1, so
a topic added on two devices never duplicates.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		pending, _ := a.queue.Len()
		if pending > 0 {
			fmt.Printf("Replaying %d queued change(s)...\n", pending)
		}

		if err := a.engine.SyncNow(context.Background()); err != nil {
			remaining, _ := a.queue.Len()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Sync failed: %v\n", ui.RenderFail("✗"), err)
			if remaining > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %d change(s) still queued.\n", remaining)
			}
			exitErr("could not sync with %s", a.cfg.RemoteURL)
		}

		topics, err := a.store.List()
		if err != nil {
			exitErr("%v", err)
		}
		fmt.Printf("%s Synced with %s\n", ui.RenderPass("✓"), a.cfg.RemoteURL)
		fmt.Printf("   Topics in cache: %d\n", len(topics))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show cache, queue, and session status",
	Long: `Show where local data lives and what is waiting to sync:
cache path, queued offline changes, and the registered device/user ids.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		topics, err := a.store.List()
		if err != nil {
			exitErr("%v", err)
		}
		pending, err := a.queue.Len()
		if err != nil {
			exitErr("%v", err)
		}
		session := a.gateway.Session()

		fmt.Println(ui.RenderHeader("Status"))
		fmt.Printf("  Cache:   %s (%d topics)\n", a.store.Path(), len(topics))
		fmt.Printf("  Remote:  %s\n", a.cfg.RemoteURL)
		fmt.Printf("  Device:  %s\n", session.DeviceID)
		if session.UserID != "" {
			fmt.Printf("  User:    %s\n", session.UserID)
		} else {
			fmt.Printf("  User:    %s\n", ui.RenderMuted("not registered yet"))
		}
		if pending > 0 {
			fmt.Printf("  Queue:   %s\n", ui.RenderWarn(fmt.Sprintf("%d change(s) pending", pending)))
			actions, err := a.queue.PeekAll()
			if err == nil {
				for _, act := range actions {
					fmt.Printf("           #%d %s %s\n", act.Seq, act.Kind, shortID(act.TopicID))
				}
			}
		} else {
			fmt.Printf("  Queue:   empty\n")
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
