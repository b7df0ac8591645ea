package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/ui"
)

var providerCmd = &cobra.Command{
	Use:     "provider",
	GroupID: "sync",
	Short:   "Inspect the workflow's provider",
}

var providerTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify the workflow credentials",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := runContext(cmd)
		defer cancel()
		db := openStore(ctx)
		defer db.Close()
		svc := loadExecutor(db).Service()

		res := svc.TestConnection(ctx)
		if jsonOutput {
			printJSON(res)
			return
		}
		if !res.Success {
			fatalf("%s connection failed: %s", svc.Provider(), res.Error)
		}
		who := ""
		if res.User != "" {
			who = " as " + res.User
		}
		fmt.Printf("%s Connected to %s%s\n", ui.RenderPass("✓"), svc.Provider(), who)
	},
}

var providerDatabasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List containers visible to the credentials",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := runContext(cmd)
		defer cancel()
		db := openStore(ctx)
		defer db.Close()

		dbs, err := loadExecutor(db).Service().GetDatabases(ctx)
		if err != nil {
			fatalf("listing databases: %v", err)
		}
		if jsonOutput {
			printJSON(dbs)
			return
		}
		rows := make([][]string, 0, len(dbs))
		for _, d := range dbs {
			rows = append(rows, []string{d.ID, d.Title, d.URL})
		}
		ui.Table(cmdOut(cmd), []string{"ID", "TITLE", "URL"}, rows)
	},
}

var providerSchemaCmd = &cobra.Command{
	Use:   "schema [DATABASE_ID]",
	Short: "Describe a container's properties (default: the workflow's)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := runContext(cmd)
		defer cancel()
		db := openStore(ctx)
		defer db.Close()
		exec := loadExecutor(db)

		id := exec.Config().DatabaseID
		if len(args) == 1 {
			id = args[0]
		}
		schema, err := exec.Service().GetDatabaseSchema(ctx, id)
		if err != nil {
			fatalf("reading schema of %s: %v", id, err)
		}
		if jsonOutput {
			printJSON(schema)
			return
		}
		fmt.Printf("%s %s (%s)\n\n", ui.RenderAccent("▸"), schema.Title, schema.ID)
		rows := make([][]string, 0, len(schema.Properties))
		for _, p := range schema.Properties {
			rows = append(rows, []string{p.Name, p.Type, strings.Join(p.Options, ", ")})
		}
		ui.Table(cmdOut(cmd), []string{"PROPERTY", "TYPE", "OPTIONS"}, rows)
	},
}

var providerItemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Preview the workflow's items in canonical form",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := runContext(cmd)
		defer cancel()
		db := openStore(ctx)
		defer db.Close()
		exec := loadExecutor(db)
		cfg := exec.Config()
		svc := exec.Service()

		var filter *integration.ItemFilter
		if cfg.ProjectColumn != "" && cfg.ProjectExternalRef != "" {
			filter = &integration.ItemFilter{ProjectColumn: cfg.ProjectColumn, ProjectRef: cfg.ProjectExternalRef}
		}
		items, err := svc.GetItems(ctx, cfg.DatabaseID, filter)
		if err != nil {
			fatalf("%v", err)
		}

		canon := make([]integration.CanonicalItem, 0, len(items))
		for _, item := range items {
			c, err := svc.ToCanonical(item, cfg.PropertyMappings)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", ui.RenderWarn("⚠"), item.ID(), err)
				continue
			}
			canon = append(canon, c)
		}
		if jsonOutput {
			printJSON(canon)
			return
		}

		rows := make([][]string, 0, len(canon))
		for _, c := range canon {
			due := ""
			if c.DueDate != nil {
				due = c.DueDate.Format("2006-01-02")
			}
			rows = append(rows, []string{
				c.ExternalID, string(c.Status), fmt.Sprintf("P%d", c.Priority), due,
				c.LastEditedTime.Local().Format("2006-01-02 15:04"), c.Title,
			})
		}
		ui.Table(cmdOut(cmd), []string{"ID", "STATUS", "PRI", "DUE", "EDITED", "TITLE"}, rows)
	},
}

func init() {
	providerCmd.AddCommand(providerTestCmd, providerDatabasesCmd, providerSchemaCmd, providerItemsCmd)
	rootCmd.AddCommand(providerCmd)
}
