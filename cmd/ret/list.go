package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/topic"
	"github.com/retentionapp/retention/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "topics",
	Aliases: []string{"ls"},
	Short:   "List topics with their review progress",
	Long: `List topics in the local cache, newest first.

Each line shows the topic's review progress (e.g. 2/3), its next
scheduled review, and a priority marker. Topics created offline and not
yet synced carry a local- id prefix until the next sync assigns the
canonical id.

Example usage:
  ret list                   # All topics
  ret list -c databases      # One category
  ret list --due             # Only topics with a review due today or overdue
  ret list --json            # Machine-readable output`,
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		dueOnly, _ := cmd.Flags().GetBool("due")
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
		today := a.engine.Today()

		filtered := topics[:0]
		for _, t := range topics {
			if category != "" && t.Category != category {
				continue
			}
			if dueOnly {
				next, ok := t.NextReview()
				if !ok || next.ScheduledDate.After(today) {
					continue
				}
			}
			filtered = append(filtered, t)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(filtered); err != nil {
				exitErr("%v", err)
			}
			return
		}

		if len(filtered) == 0 {
			fmt.Println("No topics. Add one with 'ret add'.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tPROGRESS\tNEXT REVIEW")
		for _, t := range filtered {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%d/%d\t%s\n",
				shortID(t.ID),
				ui.PriorityMarker(string(t.Priority)), t.Title,
				t.Category,
				t.CurrentStage, topic.NumStages,
				nextReviewLabel(t, today))
		}
		w.Flush()
		a.reportQueue()
	},
}

// shortID truncates canonical uuids for display but keeps local ids
// recognizable.
func shortID(id string) string {
	if topic.IsLocalID(id) {
		rest := id[len(topic.LocalIDPrefix):]
		if len(rest) > 8 {
			rest = rest[:8]
		}
		return topic.LocalIDPrefix + rest
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func nextReviewLabel(t topic.Topic, today dates.Date) string {
	next, ok := t.NextReview()
	if t.Completed || !ok {
		return ui.RenderPass("mastered")
	}
	switch {
	case next.ScheduledDate.Before(today):
		return ui.RenderOverdue(fmt.Sprintf("overdue (day %d, %s)", next.ReviewDay, next.ScheduledDate))
	case next.ScheduledDate.Equal(today):
		return ui.RenderAccent(fmt.Sprintf("today (day %d)", next.ReviewDay))
	default:
		return fmt.Sprintf("day %d on %s", next.ReviewDay, next.ScheduledDate)
	}
}

func init() {
	listCmd.Flags().StringP("category", "c", "", "Filter by category")
	listCmd.Flags().Bool("due", false, "Only topics due today or overdue")
	listCmd.Flags().Bool("json", false, "Output JSON")
	rootCmd.AddCommand(listCmd)
}
