package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/config"
	"github.com/retentionapp/retention/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "admin",
	Short:   "Write a default config file",
	Long: `Write a commented-out starting config to
~/.config/retention/config.yaml (or the --config path). Refuses to
overwrite an existing file.

All settings can also come from RETENTION_* environment variables, e.g.
RETENTION_REMOTE_URL=https://sync.example.com.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := flagConfig
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			exitErr("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "admin",
	Short:   "Wipe the local cache, streak, and pending queue",
	Long: `Delete all local data: every cached topic, the streak, and any queued
offline changes. The remote copy (if any) is untouched and will
repopulate the cache on the next sync.

This cannot be undone locally. Run 'ret export' first if unsure.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Print("Wipe all local data? [y/N] ")
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("Aborted.")
				return
			}
		}

		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		if err := a.store.Reset(); err != nil {
			exitErr("%v", err)
		}
		fmt.Printf("%s Local data wiped.\n", ui.RenderPass("✓"))
	},
}

func init() {
	resetCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(resetCmd)
}
