package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/topic"
	"github.com/retentionapp/retention/internal/ui"
)

var reviewCmd = &cobra.Command{
	Use:     "review <topic>",
	GroupID: "topics",
	Aliases: []string{"done"},
	Short:   "Mark the topic's next review as completed",
	Long: `Complete the topic's current review and advance it to the next stage.
Reviews always complete in order (day 1, then 4, then 7) regardless of
which is due; completing the day-7 review masters the topic.

Completing a review also updates the daily streak: one per day, +1 on
consecutive days, reset to 1 after a gap.

Example usage:
  ret review 3f2a
  ret review "TCP congestion control"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		ctx := context.Background()
		a.connect(ctx)

		t, err := a.resolveTopic(args[0])
		if err != nil {
			exitErr("%v", err)
		}

		updated, st, err := a.engine.CompleteReview(ctx, t.ID)
		var stageErr *topic.InvalidStageError
		if errors.As(err, &stageErr) {
			exitErr("%q is already mastered", t.Title)
		}
		if err != nil {
			exitErr("%v", err)
		}

		if updated.Completed {
			fmt.Printf("%s %s mastered! All three reviews done.\n", ui.RenderPass("★"), ui.RenderBold(updated.Title))
		} else {
			next, _ := updated.NextReview()
			fmt.Printf("%s Review %d/%d done for %s. Next: day %d on %s\n",
				ui.RenderPass("✓"), updated.CurrentStage, topic.NumStages,
				ui.RenderBold(updated.Title), next.ReviewDay, next.ScheduledDate)
		}
		fmt.Printf("   Streak: %d day(s) (best %d)\n", st.Count, st.Longest)
		a.reportQueue()
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
