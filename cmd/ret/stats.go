package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/ui"
	"github.com/retentionapp/retention/internal/views"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "views",
	Short:   "Show dashboard statistics and streak",
	Long: `Show the dashboard summary: topic counts, how many reviews are
pending or overdue today, and the daily streak.

The streak counts days on which you completed at least one review;
consecutive days extend it, a missed day resets it to 1 on the next
review.`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()
		a.connect(context.Background())

		topics, err := a.store.List()
		if err != nil {
			exitErr("%v", err)
		}
		st, err := a.store.Streak()
		if err != nil {
			exitErr("%v", err)
		}
		stats := views.Dashboard(topics, st, a.engine.Today())

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(stats); err != nil {
				exitErr("%v", err)
			}
			return
		}

		fmt.Println(ui.RenderHeader("Retention Stats"))
		fmt.Printf("  Topics:    %d (%d mastered)\n", stats.Total, stats.Mastered)
		fmt.Printf("  Pending:   %d due today", stats.Pending)
		if stats.Overdue > 0 {
			fmt.Printf(" (%s)", ui.RenderOverdue(fmt.Sprintf("%d overdue", stats.Overdue)))
		}
		fmt.Println()
		fmt.Printf("  Streak:    %s %d day(s), best %d\n", ui.RenderAccent("🔥"), stats.Streak, stats.LongestStreak)
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output JSON")
	rootCmd.AddCommand(statsCmd)
}
