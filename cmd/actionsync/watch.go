package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/config"
	"github.com/steveyegge/actionsync/internal/daemon"
	"github.com/steveyegge/actionsync/internal/syncengine"
	"github.com/steveyegge/actionsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Sync continuously on an interval",
	Long: `Watch runs the workflow once, then again every --interval until
interrupted. Editing the workflow file reloads it and triggers a run.

Every run is recorded like a one-shot sync. A failed run is logged and the
next one proceeds on schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		path := workflowPath()
		modeFlag, _ := cmd.Flags().GetString("mode")
		mode, err := syncengine.ParseMode(modeFlag)
		if err != nil {
			fatalf("%v", err)
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		saveConflicts, _ := cmd.Flags().GetBool("save-conflicts")

		var databaseID string
		build := func() (daemon.Runner, error) {
			exec, err := buildExecutor(db, path)
			if err != nil {
				return nil, err
			}
			databaseID = exec.Config().DatabaseID
			return exec, nil
		}

		cfg := daemon.DefaultConfig()
		cfg.Mode = mode
		cfg.Interval = interval
		cfg.RunTimeout = config.GetDuration(config.KeyTimeout)
		cfg.WatchFiles = []string{path}
		cfg.Logger = logs.Logger("daemon")
		cfg.OnResult = func(res *syncengine.Result, runErr error) {
			if res == nil {
				return
			}
			conflicts := res.Conflicts
			if !saveConflicts {
				conflicts = nil
			}
			if err := db.SaveRun(ctx, runSummary(databaseID, res), conflicts); err != nil {
				fmt.Fprintf(os.Stderr, "%s failed to record run: %v\n", ui.RenderWarn("⚠"), err)
			}
			if jsonOutput {
				printJSON(res)
			} else {
				printResult(res)
			}
		}

		d, err := daemon.New(build, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		if !jsonOutput {
			fmt.Printf("%s watching %s, %s every %v (Ctrl-C to stop)\n", ui.RenderAccent("⇄"), path, mode, interval)
		}
		if err := d.Start(ctx); err != nil {
			db.Close()
			fatalf("%v", err)
		}
	},
}

func init() {
	watchCmd.Flags().String("mode", string(syncengine.ModeBidirectional), "pull, push or bidirectional")
	watchCmd.Flags().Duration("interval", 5*time.Minute, "Time between runs")
	watchCmd.Flags().Bool("save-conflicts", false, "Persist conflicts found by each run")
	rootCmd.AddCommand(watchCmd)
}
