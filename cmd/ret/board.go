package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/ui"
	"github.com/retentionapp/retention/internal/views"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: "views",
	Aliases: []string{"kanban"},
	Short:   "Show today's review board",
	Long: `Show the kanban board for today: what you just added, which reviews
are due in each lane (day 1, day 4, day 7), and what you've mastered.

Overdue reviews stay in their lane, flagged, until completed. Topics
whose next review is in the future don't appear at all: the board is
what needs attention today, not an inventory.`,
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
		board := views.Kanban(topics, today)

		fmt.Printf("%s  %s\n\n", ui.RenderHeader("Review Board"), ui.RenderMuted(today.String()))

		width := ui.TerminalWidth()/5 - 4
		if width < 16 {
			width = 16
		}
		cols := []string{
			renderLane("New Today", width, views.Column{Due: board.Today}),
			renderLane("Day 1", width, board.Day1),
			renderLane("Day 4", width, board.Day4),
			renderLane("Day 7", width, board.Day7),
			renderLane("Mastered", width, views.Column{Due: board.Mastered}),
		}
		fmt.Println(ui.JoinColumns(cols...))
	},
}

// renderLane draws one bordered column with overdue entries flagged.
func renderLane(title string, width int, col views.Column) string {
	var b strings.Builder
	b.WriteString(ui.RenderBold(fmt.Sprintf("%s (%d)", title, col.Len())))
	b.WriteString("\n")
	for _, t := range col.Overdue {
		b.WriteString(fmt.Sprintf("%s %s\n", ui.RenderOverdue("!"), truncate(t.Title, width-2)))
	}
	for _, t := range col.Due {
		b.WriteString(fmt.Sprintf("%s %s\n", ui.PriorityMarker(string(t.Priority)), truncate(t.Title, width-2)))
	}
	if col.Len() == 0 {
		b.WriteString(ui.RenderMuted("—") + "\n")
	}
	return ui.RenderColumn(width, strings.TrimRight(b.String(), "\n"))
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
