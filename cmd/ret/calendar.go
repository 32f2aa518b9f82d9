package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/ui"
	"github.com/retentionapp/retention/internal/views"
)

var calCmd = &cobra.Command{
	Use:     "cal [date]",
	GroupID: "views",
	Aliases: []string{"calendar"},
	Short:   "Show scheduled reviews by date",
	Long: `Show the review calendar. With no argument, lists the next two weeks
of scheduled checkpoints; with a date argument, shows that single day.

Dates accept YYYY-MM-DD or natural language ("tomorrow", "next friday").

Example usage:
  ret cal
  ret cal tomorrow
  ret cal 2026-09-04`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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

		if len(args) == 1 {
			day, err := parseDate(args[0])
			if err != nil {
				exitErr("%v", err)
			}
			printDay(day, views.ForDate(topics, day))
			return
		}

		index := views.Calendar(topics)
		var days []dates.Date
		for d := range index {
			if !d.Before(today) && d.DaysUntil(today.AddDays(14)) > 0 {
				days = append(days, d)
			}
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
		if len(days) == 0 {
			fmt.Println("Nothing scheduled in the next two weeks.")
			return
		}
		for _, d := range days {
			printDay(d, index[d])
			fmt.Println()
		}
	},
}

func printDay(day dates.Date, events []views.Event) {
	weekday := day.Time().Weekday().String()
	fmt.Printf("%s %s\n", ui.RenderHeader(day.String()), ui.RenderMuted(weekday))
	if len(events) == 0 {
		fmt.Println("  nothing scheduled")
		return
	}
	for _, e := range events {
		switch e.Type {
		case views.EventNew:
			fmt.Printf("  %s new: %s\n", ui.RenderAccent("+"), e.Title)
		default:
			mark := " "
			if e.Completed {
				mark = ui.RenderPass("✓")
			}
			fmt.Printf("  %s day %d review: %s\n", mark, e.ReviewDay, e.Title)
		}
	}
}

func init() {
	rootCmd.AddCommand(calCmd)
}
