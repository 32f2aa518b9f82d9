package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/topic"
	"github.com/retentionapp/retention/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add [title]",
	GroupID: "topics",
	Short:   "Add a topic and schedule its 1-4-7 reviews",
	Long: `Add a new study topic. Three reviews are scheduled automatically:
one, four, and seven days after the start date.

With no arguments an interactive form is shown. The --on flag accepts
natural language ("yesterday", "last monday") as well as YYYY-MM-DD,
for backfilling topics you learned earlier.

Example usage:
  ret add                                # Interactive form
  ret add "TCP congestion control"
  ret add "B-trees" -c databases -p high
  ret add "Paxos" --on yesterday`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		priority, _ := cmd.Flags().GetString("priority")
		notes, _ := cmd.Flags().GetString("notes")
		on, _ := cmd.Flags().GetString("on")

		title := strings.TrimSpace(strings.Join(args, " "))
		if title == "" {
			var err error
			title, category, priority, notes, err = addForm(category, priority, notes)
			if err != nil {
				exitErr("%v", err)
			}
		}

		f := topic.Fields{
			Title:    title,
			Category: category,
			Notes:    notes,
		}
		if priority != "" {
			p, err := topic.ParsePriority(priority)
			if err != nil {
				exitErr("%v", err)
			}
			f.Priority = p
		}
		if on != "" {
			d, err := parseDate(on)
			if err != nil {
				exitErr("%v", err)
			}
			f.CreatedAt = d
		}

		a, err := openApp()
		if err != nil {
			exitErr("%v", err)
		}
		defer a.Close()

		ctx := context.Background()
		a.connect(ctx)

		t, err := a.engine.CreateTopic(ctx, f)
		if err != nil {
			exitErr("%v", err)
		}

		fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), ui.RenderBold(t.Title), t.ID)
		fmt.Printf("   Reviews: day %d → %s, day %d → %s, day %d → %s\n",
			t.Reviews[0].ReviewDay, t.Reviews[0].ScheduledDate,
			t.Reviews[1].ReviewDay, t.Reviews[1].ScheduledDate,
			t.Reviews[2].ReviewDay, t.Reviews[2].ScheduledDate)
		a.reportQueue()
	},
}

// addForm collects topic fields interactively.
func addForm(category, priority, notes string) (string, string, string, string, error) {
	var title string
	if priority == "" {
		priority = string(topic.PriorityMedium)
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Topic").
				Description("What did you learn?").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}).
				Value(&title),
			huh.NewInput().
				Title("Category").
				Placeholder("general").
				Value(&category),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("Low", string(topic.PriorityLow)),
					huh.NewOption("Medium", string(topic.PriorityMedium)),
					huh.NewOption("High", string(topic.PriorityHigh)),
				).
				Value(&priority),
			huh.NewText().
				Title("Notes").
				Lines(3).
				Value(&notes),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", "", "", err
	}
	return strings.TrimSpace(title), strings.TrimSpace(category), priority, strings.TrimSpace(notes), nil
}

// parseDate accepts YYYY-MM-DD or natural language via the when parser.
func parseDate(s string) (dates.Date, error) {
	if d, err := dates.Parse(s); err == nil {
		return d, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(s, time.Now())
	if err != nil || result == nil {
		return dates.Date{}, fmt.Errorf("could not parse date %q", s)
	}
	return dates.FromTime(result.Time), nil
}

func init() {
	addCmd.Flags().StringP("category", "c", "", "Topic category (default \"general\")")
	addCmd.Flags().StringP("priority", "p", "", "Priority: low, medium, or high")
	addCmd.Flags().StringP("notes", "n", "", "Free-form notes")
	addCmd.Flags().String("on", "", "Start date (YYYY-MM-DD or natural language)")
	rootCmd.AddCommand(addCmd)
}
