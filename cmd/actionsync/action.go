package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/config"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
	"github.com/steveyegge/actionsync/internal/ui"
)

const dueLayout = "2006-01-02"

var actionCmd = &cobra.Command{
	Use:     "action",
	GroupID: "local",
	Short:   "Manage local actions",
}

var actionAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a local action",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		a := &types.Action{
			Name:        args[0],
			Priority:    types.PriorityMedium,
			CreatedByID: requireUser(),
		}
		applyActionFlags(cmd, a)

		if err := db.CreateAction(ctx, a); err != nil {
			fatalf("creating action: %v", err)
		}
		if jsonOutput {
			printJSON(a)
			return
		}
		fmt.Printf("%s Created %s  %s\n", ui.RenderPass("✓"), a.ID, a.Name)
	},
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local actions",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		filter := store.ActionFilter{}
		filter.CreatedByID = config.GetString(config.KeyUser)
		filter.ProjectID, _ = cmd.Flags().GetString("project")
		filter.Source, _ = cmd.Flags().GetString("source")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if statuses, _ := cmd.Flags().GetStringSlice("status"); len(statuses) > 0 {
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, parseStatus(s))
			}
		} else {
			filter.Statuses = []types.Status{types.StatusActive}
		}

		actions, err := db.ListActions(ctx, filter)
		if err != nil {
			fatalf("listing actions: %v", err)
		}
		if jsonOutput {
			printJSON(actions)
			return
		}
		if len(actions) == 0 {
			fmt.Println("No actions")
			return
		}
		printActions(cmdOut(cmd), actions)
	},
}

var actionDoneCmd = &cobra.Command{
	Use:   "done ID...",
	Short: "Mark actions completed",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		for _, id := range args {
			a, err := db.GetAction(ctx, id)
			if err != nil {
				fatalf("%v", err)
			}
			a.Status = types.StatusCompleted
			if err := db.UpdateAction(ctx, a); err != nil {
				fatalf("completing %s: %v", id, err)
			}
			if !jsonOutput {
				fmt.Printf("%s Completed %s  %s\n", ui.RenderPass("✓"), a.ID, a.Name)
			}
		}
	},
}

var actionEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change fields of a local action",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		a, err := db.GetAction(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if f := cmd.Flags().Lookup("name"); f.Changed {
			a.Name = f.Value.String()
		}
		if f := cmd.Flags().Lookup("status"); f.Changed {
			a.Status = parseStatus(f.Value.String())
		}
		applyActionFlags(cmd, a)

		if err := db.UpdateAction(ctx, a); err != nil {
			fatalf("updating %s: %v", a.ID, err)
		}
		if jsonOutput {
			printJSON(a)
			return
		}
		fmt.Printf("%s Updated %s  %s\n", ui.RenderPass("✓"), a.ID, a.Name)
	},
}

func init() {
	for _, c := range []*cobra.Command{actionAddCmd, actionEditCmd} {
		c.Flags().StringP("description", "d", "", "Description")
		c.Flags().IntP("priority", "p", types.PriorityMedium, "Priority 0 (critical) to 4 (backlog)")
		c.Flags().String("due", "", "Due date: YYYY-MM-DD, a phrase like \"next friday\", or \"none\" to clear")
		c.Flags().String("project", "", "Project id")
	}
	actionEditCmd.Flags().String("name", "", "New name")
	actionEditCmd.Flags().String("status", "", "ACTIVE, COMPLETED or DELETED")

	actionListCmd.Flags().StringSlice("status", nil, "Statuses to show (default ACTIVE)")
	actionListCmd.Flags().String("project", "", "Only this project")
	actionListCmd.Flags().String("source", "", "Only this source: internal or a provider")
	actionListCmd.Flags().Int("limit", 0, "Maximum number of actions")

	actionCmd.AddCommand(actionAddCmd, actionListCmd, actionDoneCmd, actionEditCmd)
	rootCmd.AddCommand(actionCmd)
}

// applyActionFlags copies the flags the user set onto a.
func applyActionFlags(cmd *cobra.Command, a *types.Action) {
	flags := cmd.Flags()
	if flags.Changed("description") {
		a.Description, _ = flags.GetString("description")
	}
	if flags.Changed("priority") {
		a.Priority, _ = flags.GetInt("priority")
	}
	if flags.Changed("project") {
		a.ProjectID, _ = flags.GetString("project")
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		due, err := parseDue(v, time.Now())
		if err != nil {
			fatalf("invalid --due: %v", err)
		}
		a.DueDate = due
	}
}

func parseStatus(s string) types.Status {
	st := types.Status(strings.ToUpper(s))
	if !st.IsValid() {
		fatalf("unknown status %q", s)
	}
	return st
}

func printActions(w io.Writer, actions []*types.Action) {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		due := ""
		if a.DueDate != nil {
			due = a.DueDate.Format(dueLayout)
		}
		rows = append(rows, []string{
			a.ID, statusCell(a.Status), fmt.Sprintf("P%d", a.Priority), due, a.ProjectID, a.Source, a.Name,
		})
	}
	ui.Table(w, []string{"ID", "STATUS", "PRI", "DUE", "PROJECT", "SOURCE", "NAME"}, rows)
}

func statusCell(s types.Status) string {
	switch s {
	case types.StatusCompleted:
		return ui.RenderPass(string(s))
	case types.StatusDeleted:
		return ui.RenderMuted(string(s))
	}
	return string(s)
}

func cmdOut(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
