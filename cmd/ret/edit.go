package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retentionapp/retention/internal/topic"
	"github.com/retentionapp/retention/internal/ui"
)

var editCmd = &cobra.Command{
	Use:     "edit <topic>",
	GroupID: "topics",
	Short:   "Edit a topic's title, category, priority, or notes",
	Long: `Edit a topic's descriptive fields. The review schedule and progress
are derived from the creation date and never change here.

The topic can be referenced by id, unique id prefix, or exact title.

Example usage:
  ret edit 3f2a --title "TCP congestion control (Reno)"
  ret edit "Paxos" -p high -c distributed`,
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

		var u topic.Update
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			u.Title = &v
		}
		if cmd.Flags().Changed("category") {
			v, _ := cmd.Flags().GetString("category")
			u.Category = &v
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetString("priority")
			p, err := topic.ParsePriority(v)
			if err != nil {
				exitErr("%v", err)
			}
			u.Priority = &p
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			u.Notes = &v
		}
		if u == (topic.Update{}) {
			exitErr("nothing to change; pass --title, --category, --priority, or --notes")
		}

		updated, err := a.engine.UpdateTopic(ctx, t.ID, u)
		if err != nil {
			exitErr("%v", err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderBold(updated.Title))
		a.reportQueue()
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <topic>",
	GroupID: "topics",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a topic and its reviews",
	Long: `Delete a topic. If the topic was never synced, any queued changes for
it are dropped as well; otherwise the deletion propagates to the remote
on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

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
		if !force {
			fmt.Printf("Delete %q and its %d review(s)? [y/N] ", t.Title, len(t.Reviews))
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("Aborted.")
				return
			}
		}

		if err := a.engine.DeleteTopic(ctx, t.ID); err != nil {
			exitErr("%v", err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), t.Title)
		a.reportQueue()
	},
}

func init() {
	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().StringP("category", "c", "", "New category")
	editCmd.Flags().StringP("priority", "p", "", "New priority: low, medium, or high")
	editCmd.Flags().StringP("notes", "n", "", "New notes")
	rmCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
}
