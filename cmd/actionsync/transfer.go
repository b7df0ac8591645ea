package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export FILE",
	GroupID: "local",
	Short:   "Export actions and sync records to JSONL",
	Long: `Write every action followed by every sync record to FILE, one JSON
object per line. The file is replaced atomically.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		res, err := db.ExportJSONL(ctx, args[0])
		if err != nil {
			fatalf("exporting: %v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		fmt.Printf("%s Exported %d actions and %d records to %s\n", ui.RenderPass("✓"), res.Actions, res.Records, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "local",
	Short:   "Import actions and sync records from JSONL",
	Long: `Load a file written by export. Actions are upserted by id keeping their
timestamps. Records that collide with an existing link are skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		res, err := db.ImportJSONL(ctx, args[0])
		if err != nil {
			fatalf("importing: %v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		fmt.Printf("%s Imported %d actions and %d records (%d skipped)\n", ui.RenderPass("✓"), res.Actions, res.Records, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "   %s %s\n", ui.RenderWarn("⚠"), e)
		}
		if len(res.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
