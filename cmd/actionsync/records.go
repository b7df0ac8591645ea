package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
	"github.com/steveyegge/actionsync/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

var recordsCmd = &cobra.Command{
	Use:     "records",
	GroupID: "local",
	Short:   "Inspect sync records (links between actions and provider items)",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		var filter store.RecordFilter
		filter.Provider, _ = cmd.Flags().GetString("provider")
		filter.DatabaseID, _ = cmd.Flags().GetString("database")
		filter.ProjectID, _ = cmd.Flags().GetString("project")
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			filter.Status = types.RecordStatus(s)
		}

		records, err := db.ListRecords(ctx, filter)
		if err != nil {
			fatalf("listing records: %v", err)
		}
		if jsonOutput {
			printJSON(records)
			return
		}

		counts, err := db.CountRecords(ctx, filter.Provider)
		if err != nil {
			fatalf("counting records: %v", err)
		}
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			status := string(r.Status)
			if r.Status == types.RecordDeletedRemotely {
				status = ui.RenderWarn(status)
			}
			rows = append(rows, []string{r.Provider, r.DatabaseID, r.ExternalID, r.ActionID, status, r.UpdatedAt.Local().Format(timeLayout)})
		}
		ui.Table(cmdOut(cmd), []string{"PROVIDER", "DATABASE", "EXTERNAL ID", "ACTION", "STATUS", "SYNCED AT"}, rows)
		fmt.Printf("\n%d synced, %d deleted remotely\n", counts[types.RecordSynced], counts[types.RecordDeletedRemotely])
	},
}

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	GroupID: "sync",
	Short:   "Inspect conflicts saved with --save-conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conflicts, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		pending, _ := cmd.Flags().GetBool("pending")
		conflicts, err := db.ListConflicts(ctx, pending)
		if err != nil {
			fatalf("listing conflicts: %v", err)
		}
		if jsonOutput {
			printJSON(conflicts)
			return
		}
		if len(conflicts) == 0 {
			fmt.Printf("%s No conflicts\n", ui.RenderPass("✓"))
			return
		}

		rows := make([][]string, 0, len(conflicts))
		for _, c := range conflicts {
			resolution := string(c.Resolution)
			if c.Resolution == types.ResolutionPending {
				resolution = ui.RenderWarn(resolution)
			}
			rows = append(rows, []string{
				c.CreatedAt.Local().Format(timeLayout), c.LocalActionID, c.ExternalID,
				c.LocalUpdatedAt.Local().Format(timeLayout), c.ExternalUpdatedAt.Local().Format(timeLayout), resolution,
			})
		}
		ui.Table(cmdOut(cmd), []string{"FOUND", "ACTION", "EXTERNAL ID", "LOCAL EDIT", "EXTERNAL EDIT", "RESOLUTION"}, rows)
	},
}

var runsCmd = &cobra.Command{
	Use:     "runs",
	GroupID: "sync",
	Short:   "Inspect past sync runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync runs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.ListRuns(ctx, limit)
		if err != nil {
			fatalf("listing runs: %v", err)
		}
		if jsonOutput {
			printJSON(runs)
			return
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			ok := ui.RenderPass("ok")
			if !r.Success {
				ok = ui.RenderFail("failed")
			} else if r.ErrorCount > 0 {
				ok = ui.RenderWarn(strconv.Itoa(r.ErrorCount) + " errors")
			}
			rows = append(rows, []string{
				r.StartedAt.Local().Format(timeLayout), r.Mode, r.Provider, r.DatabaseID,
				fmt.Sprintf("%d/%d/%d/%d/%d", r.ItemsProcessed, r.ItemsCreated, r.ItemsUpdated, r.ItemsSkipped, r.ItemsDeleted),
				ok,
			})
		}
		ui.Table(cmdOut(cmd), []string{"STARTED", "MODE", "PROVIDER", "DATABASE", "P/C/U/S/D", "RESULT"}, rows)
	},
}

func init() {
	recordsListCmd.Flags().String("provider", "", "Only this provider")
	recordsListCmd.Flags().String("database", "", "Only records in this provider database or list")
	recordsListCmd.Flags().String("project", "", "Only records whose action is in this project")
	recordsListCmd.Flags().String("status", "", "synced or deleted_remotely")
	recordsCmd.AddCommand(recordsListCmd)

	conflictsListCmd.Flags().Bool("pending", false, "Only conflicts left for manual resolution")
	conflictsCmd.AddCommand(conflictsListCmd)

	runsListCmd.Flags().Int("limit", 20, "Maximum number of runs")
	runsCmd.AddCommand(runsListCmd)

	rootCmd.AddCommand(recordsCmd, conflictsCmd, runsCmd)
}
