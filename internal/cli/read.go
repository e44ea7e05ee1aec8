package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/nisimpson/apptables"
	"github.com/nisimpson/apptables/docs"
	"github.com/nisimpson/apptables/tablekit"
	"github.com/spf13/cobra"
)

// docsCommand prints the tablekit usage guide.
func (c *CLI) docsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "Print the tablekit usage guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printf(cmd.OutOrStdout(), "%s", docs.Get())
			return nil
		},
	}
}

func (c *CLI) tablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the defined tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.open(cmd.Context()); err != nil {
				return err
			}
			for _, name := range c.tables.Names() {
				printf(cmd.OutOrStdout(), "%s\n", name)
			}
			return nil
		},
	}
}

func (c *CLI) columnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "NAME\tTYPE\tTARGET\n")
			for _, col := range table.ListColumns() {
				printf(w, "%s\t%s\t%s\n", col.Name, col.Type, col.Target)
			}
			return w.Flush()
		},
	}
}

func (c *CLI) csvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "csv <table>",
		Short: "Export a table as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := table.ToCSV(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s", out)
			return nil
		},
	}
}

// getCommand prints one row, converted with its links followed to --depth.
func (c *CLI) getCommand() *cobra.Command {
	var (
		id    string
		where []string
		depth int
	)

	cmd := &cobra.Command{
		Use:   "get <table>",
		Short: "Print one row as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}

			var row *tablekit.Row
			switch {
			case id != "" && len(where) > 0:
				return fmt.Errorf("--id and --where are exclusive")
			case id != "":
				row, err = table.GetByID(ctx, id)
			default:
				q, perr := parseAssignments(where)
				if perr != nil {
					return perr
				}
				row, err = table.Get(ctx, apptables.Query(q))
			}
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("no matching row in %s: %w", table.Name(), apptables.ErrItemNotFound)
			}

			ser := &tablekit.Serializer{MaxDepth: depth, Tables: c.tables}
			dict, err := ser.ToDict(ctx, row)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"_id": row.ID(), "row": dict})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "row id")
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "column=value filter; values are JSON or plain strings")
	cmd.Flags().IntVar(&depth, "depth", 1, "levels of rows to convert, deeper links are printed as references (0 = unlimited)")
	return cmd
}

// searchCommand prints one page of matching rows and the cursor of the next.
func (c *CLI) searchCommand() *cobra.Command {
	var (
		where    []string
		pageSize int
		cursor   string
		depth    int
	)

	cmd := &cobra.Command{
		Use:   "search <table>",
		Short: "Search a table, one page at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			table, err := c.table(cmd, args[0])
			if err != nil {
				return err
			}
			q, err := parseAssignments(where)
			if err != nil {
				return err
			}
			it, err := table.HostSearch(ctx, apptables.Query(q))
			if err != nil {
				return err
			}

			rows, next, err := it.Page(ctx, cursor, pageSize)
			if err != nil {
				return err
			}
			logger.Debug("fetched page", "table", table.Name(), "rows", len(rows), "more", next != "")

			ser := &tablekit.Serializer{MaxDepth: depth, Tables: c.tables}
			dicts, err := ser.ToDict(ctx, rows)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"rows": dicts, "cursor": next})
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "column=value filter; values are JSON or plain strings")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "rows per page")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor returned by the previous page")
	cmd.Flags().IntVar(&depth, "depth", 1, "levels of rows to convert, deeper links are printed as references (0 = unlimited)")
	return cmd
}
