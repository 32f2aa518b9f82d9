package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/backup"
	"github.com/retentionapp/retention/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "admin",
	Short:   "Export topics and streak to a JSON snapshot",
	Long: `Export the local cache to a portable JSON snapshot: all topics with
their review plans, plus the streak. Writes to stdout when no file is
given, so it pipes cleanly.

Example usage:
  ret export backup.json
  ret export | gzip > backup.json.gz`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		snap, err := backup.Export(a.store, time.Now())
		if err != nil {
			exitErr("%v", err)
		}
		data, err := backup.Encode(snap)
		if err != nil {
			exitErr("%v", err)
		}

		if len(args) == 0 {
			os.Stdout.Write(data)
			os.Stdout.Write([]byte("\n"))
			return
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			exitErr("failed to write %s: %v", args[0], err)
		}
		fmt.Printf("%s Exported %d topic(s) to %s\n", ui.RenderPass("✓"), len(snap.Topics), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "admin",
	Short:   "Restore topics and streak from a JSON snapshot",
	Long: `Replace the local cache with a previously exported snapshot. The
snapshot is validated in full before anything is touched; a malformed
file leaves the cache exactly as it was.

Queued offline changes are NOT cleared: if you import while changes are
pending, they will still replay on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			exitErr("failed to read %s: %v", args[0], err)
		}

		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		if err := backup.Import(a.store, data); err != nil {
			var ferr *backup.ImportFormatError
			if errors.As(err, &ferr) {
				exitErr("invalid snapshot: %v", err)
			}
			exitErr("%v", err)
		}

		topics, _ := a.store.List()
		fmt.Printf("%s Imported %d topic(s) from %s\n", ui.RenderPass("✓"), len(topics), args[0])
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
