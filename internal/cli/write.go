package cli

import (
	"fmt"
	"os"

	"github.com/nisimpson/apptables"
	"github.com/nisimpson/apptables/apptest"
	"github.com/nisimpson/apptables/internal/config"
	"github.com/spf13/cobra"
)

const setUsage = `column=value; values are JSON or plain strings, links are {"_table":"...","_id":"..."}`

func (c *CLI) addCommand() *cobra.Command {
	var set []string

	cmd := &cobra.Command{
		Use:   "add <table>",
		Short: "Add a row and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}
			fields, err := parseAssignments(set)
			if err != nil {
				return err
			}
			row, err := table.AddRow(cmd.Context(), apptables.Fields(fields))
			if err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Info("added row", "row", row.Key())
			printf(cmd.OutOrStdout(), "%s\n", row.ID())
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, setUsage)
	return cmd
}

func (c *CLI) updateCommand() *cobra.Command {
	var set []string

	cmd := &cobra.Command{
		Use:   "update <table> <id>",
		Short: "Update the columns of a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}
			fields, err := parseAssignments(set)
			if err != nil {
				return err
			}
			row := c.tables.Ref(table.Name(), args[1])
			if err := table.UpdateRow(cmd.Context(), row, apptables.Fields(fields)); err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Info("updated row", "row", row.Key(), "columns", len(fields))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, setUsage)
	return cmd
}

func (c *CLI) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}
			row, err := table.GetByID(ctx, args[1])
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("%s#%s: %w", table.Name(), args[1], apptables.ErrItemNotFound)
			}
			if err := row.Delete(ctx); err != nil {
				return err
			}
			loggerFromContext(ctx).Info("deleted row", "row", row.Key())
			return nil
		},
	}
}

// importCommand loads a JSON seed document, rows keyed by table name.
func (c *CLI) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import rows from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.open(ctx); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import file: %w", err)
			}
			defer f.Close()

			p := newProgress(loggerFromContext(ctx))
			n, err := apptest.SeedFromJSON(ctx, c.tables, f)
			if err != nil {
				return err
			}
			p.done(fmt.Sprintf("Imported %d rows", n))
			return nil
		},
	}
}

// initCommand creates the DynamoDB table and its ref index.
func (c *CLI) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the DynamoDB table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.open(ctx); err != nil {
				return err
			}
			if c.opts.Backend != config.BackendDynamoDB {
				return fmt.Errorf("init needs the %s backend, configured: %s", config.BackendDynamoDB, c.opts.Backend)
			}
			if err := apptest.CreateAppTable(ctx, c.client, c.backend); err != nil {
				return err
			}
			loggerFromContext(ctx).Info("table ready", "table", c.backend.TableName, "index", c.backend.RefIndexName)
			return nil
		},
	}
}
