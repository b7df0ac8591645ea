// Command actionsync keeps a local action list in sync with external task
// services such as Notion databases and Google Tasks lists.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/config"
	"github.com/steveyegge/actionsync/internal/executor"
	"github.com/steveyegge/actionsync/internal/logging"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/ui"
)

var (
	logs       *logging.Logs
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "actionsync",
	Short: "Bidirectional task sync between a local store and external providers",
	Long: `actionsync keeps local actions and provider items (Notion pages, Google
Tasks) linked through sync records, and reconciles them with pull, push or
bidirectional runs.

Settings are read from ~/.actionsync/config.yaml, ./.actionsync/config.yaml,
ACTIONSYNC_* environment variables and flags, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		for key, name := range map[string]string{
			config.KeyDB:          "db",
			config.KeyLogFile:     "log-file",
			config.KeyLogLevel:    "log-level",
			config.KeyConcurrency: "concurrency",
			config.KeyNoColor:     "no-color",
			config.KeyWorkflow:    "workflow",
			config.KeyTimeout:     "timeout",
			config.KeyUser:        "user",
		} {
			if err := config.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}

		ui.ConfigureColor(config.GetBool(config.KeyNoColor) || jsonOutput)

		level, err := logging.ParseLevel(config.GetString(config.KeyLogLevel))
		if err != nil {
			return err
		}
		logs, err = logging.Setup(logging.Options{File: config.GetString(config.KeyLogFile), Level: level})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "Path to the local SQLite store (default ~/.actionsync/actionsync.db)")
	pf.String("log-file", "", "Write logs to a rotating file instead of stderr")
	pf.String("log-level", "info", "Log level: debug, info or warn")
	pf.Int("concurrency", 4, "Items processed in parallel")
	pf.Bool("no-color", false, "Disable colored output")
	pf.StringP("workflow", "w", "", "Workflow file (YAML or TOML)")
	pf.Duration("timeout", 0, "Abort a run after this long (default 5m)")
	pf.String("user", "", "Local user id for action commands")
	pf.BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "local", Title: "Local store:"},
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("Error:")}, args...)...)
	os.Exit(1)
}

// openStore opens the configured database with its schema applied.
func openStore(ctx context.Context) *store.DB {
	path := config.GetString(config.KeyDB)
	db, err := store.Open(path)
	if err != nil {
		fatalf("opening store %s: %v", path, err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		fatalf("initializing schema: %v", err)
	}
	return db
}

// workflowPath returns the configured workflow file or exits.
func workflowPath() string {
	path := config.GetString(config.KeyWorkflow)
	if path == "" {
		fatalf("a workflow file is required (--workflow or ACTIONSYNC_WORKFLOW)")
	}
	return path
}

// buildExecutor reads the workflow at path and builds its executor over db.
func buildExecutor(db *store.DB, path string) (*executor.Executor, error) {
	wf, err := config.LoadWorkflow(path)
	if err != nil {
		return nil, err
	}
	return executor.NewFactory(db,
		executor.WithLogger(logs.Logger("sync")),
		executor.WithDebugLogger(logs.Debug("sync")),
		executor.WithAdapterLogger(logs.Logger(wf.Provider.String())),
		executor.WithConcurrency(config.GetInt(config.KeyConcurrency)),
	).Build(wf)
}

// loadExecutor is buildExecutor for one-shot commands: errors are fatal.
func loadExecutor(db *store.DB) *executor.Executor {
	exec, err := buildExecutor(db, workflowPath())
	if err != nil {
		fatalf("%v", err)
	}
	return exec
}

// runContext bounds a command by the configured timeout.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := config.GetDuration(config.KeyTimeout)
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// requireUser returns the configured user id or exits.
func requireUser() string {
	user := config.GetString(config.KeyUser)
	if user == "" {
		fatalf("a user id is required (--user or ACTIONSYNC_USER)")
	}
	return user
}
