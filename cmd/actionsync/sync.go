package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/syncengine"
	"github.com/steveyegge/actionsync/internal/types"
	"github.com/steveyegge/actionsync/internal/ui"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Import and update local actions from the provider",
	Long: `Pull makes the local store reflect the provider container named in the
workflow.

  - Unlinked items are imported as new actions
  - Linked items overwrite their action when a synced field differs
  - With deletionBehavior: mark_deleted and a project scope, linked actions
    whose item disappeared are marked DELETED`,
	Run: runSync(syncengine.ModePull),
}

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Create provider items for local actions",
	Long: `Push makes the provider reflect the selected local actions.

Actions that are already linked are skipped unless --overwrite is given, in
which case they are rewritten and provider items that no sync record
references are archived. Overwrite is destructive.`,
	Run: runSync(syncengine.ModePush),
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"bidirectional"},
	GroupID: "sync",
	Short:   "Reconcile both sides with conflict detection",
	Long: `Sync compares both sides of every link against the last sync instant.

  - Changed on one side: that side wins
  - Changed on both: a conflict, resolved by conflictResolution
    (local_wins, remote_wins, or manual which leaves it pending)
  - Unlinked on either side: created on the other`,
	Run: runSync(syncengine.ModeBidirectional),
}

func init() {
	pushCmd.Flags().Bool("overwrite", false, "Update linked items and archive unreferenced ones")
	pushCmd.Flags().StringSlice("ids", nil, "Push only these action ids")
	pushCmd.Flags().Bool("include-completed", false, "Also push completed actions")

	for _, c := range []*cobra.Command{pullCmd, pushCmd, syncCmd} {
		c.Flags().Bool("save-conflicts", false, "Persist conflicts found by this run")
		rootCmd.AddCommand(c)
	}
}

func runSync(mode syncengine.Mode) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := syncOnce(cmd, mode); err != nil {
			os.Exit(1)
		}
	}
}

// syncOnce runs one flow, records it and prints the result. The store is
// closed, and its WAL checkpointed, before it returns.
func syncOnce(cmd *cobra.Command, mode syncengine.Mode) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	db := openStore(ctx)
	defer db.Close()
	exec := loadExecutor(db)

	cfg := exec.Config()
	if f := cmd.Flags().Lookup("overwrite"); f != nil && f.Changed {
		cfg.OverwriteMode, _ = cmd.Flags().GetBool("overwrite")
	}
	if ids, _ := cmd.Flags().GetStringSlice("ids"); len(ids) > 0 {
		cfg.ActionIDs = ids
	}
	if f := cmd.Flags().Lookup("include-completed"); f != nil && f.Changed {
		cfg.IncludeCompleted, _ = cmd.Flags().GetBool("include-completed")
	}

	if !jsonOutput {
		fmt.Printf("%s %s %s %s...\n", ui.RenderAccent("⇄"), mode, cfg.Provider, cfg.DatabaseID)
	}
	res, runErr := exec.RunWith(ctx, mode, cfg)
	if res == nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), runErr)
		return runErr
	}

	var conflicts []types.Conflict
	if save, _ := cmd.Flags().GetBool("save-conflicts"); save {
		conflicts = res.Conflicts
	}
	if err := db.SaveRun(ctx, runSummary(cfg.DatabaseID, res), conflicts); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed to record run: %v\n", ui.RenderWarn("⚠"), err)
	}

	if jsonOutput {
		printJSON(res)
	} else {
		printResult(res)
	}
	return runErr
}

func runSummary(databaseID string, res *syncengine.Result) *store.RunSummary {
	return &store.RunSummary{
		ID:             uuid.NewString(),
		Mode:           string(res.Mode),
		Provider:       res.Provider,
		DatabaseID:     databaseID,
		Success:        res.Success,
		ItemsProcessed: res.ItemsProcessed,
		ItemsCreated:   res.ItemsCreated,
		ItemsUpdated:   res.ItemsUpdated,
		ItemsSkipped:   res.ItemsSkipped,
		ItemsDeleted:   res.ItemsDeleted,
		ErrorCount:     len(res.Errors),
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
	}
}

func printResult(res *syncengine.Result) {
	mark := ui.RenderPass("✓")
	switch {
	case !res.Success:
		mark = ui.RenderFail("✗")
	case len(res.Errors) > 0 || len(res.Conflicts) > 0:
		mark = ui.RenderWarn("⚠")
	}

	fmt.Printf("%s %s finished in %v\n", mark, res.Mode, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Printf("   Processed: %d\n", res.ItemsProcessed)
	fmt.Printf("   Created:   %d\n", res.ItemsCreated)
	fmt.Printf("   Updated:   %d\n", res.ItemsUpdated)
	fmt.Printf("   Skipped:   %d\n", res.ItemsSkipped)
	fmt.Printf("   Deleted:   %d\n", res.ItemsDeleted)

	if len(res.Conflicts) > 0 {
		fmt.Printf("\n%s %d conflicts\n", ui.RenderWarn("⚠"), len(res.Conflicts))
		for _, c := range res.Conflicts {
			fmt.Printf("   %s <-> %s  local %s, external %s  [%s]\n",
				c.LocalActionID, c.ExternalID,
				c.LocalUpdatedAt.Format("2006-01-02 15:04:05"),
				c.ExternalUpdatedAt.Format("2006-01-02 15:04:05"),
				c.Resolution)
		}
	}
	if len(res.Errors) > 0 {
		fmt.Printf("\n%s %d errors\n", ui.RenderFail("✗"), len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("   %s\n", e)
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encoding JSON: %v", err)
	}
}
