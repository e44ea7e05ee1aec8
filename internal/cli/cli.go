// Package cli implements the apptables command-line interface.
//
// Every command opens the tables named in the configuration file (--config)
// over the configured backend. Without a configuration the employees demo
// tables are loaded into memory, so the read commands work out of the box:
//
//	apptables search employees --where title=Engineer
//	apptables get departments --id D1 --depth 1
//
// All commands support --verbose (-v) for debug-level logging. The logger
// is passed to commands through context.Context.
package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/charmbracelet/log"
	"github.com/nisimpson/apptables"
	"github.com/nisimpson/apptables/apptest"
	"github.com/nisimpson/apptables/internal/config"
	"github.com/nisimpson/apptables/tablekit"
	"github.com/spf13/cobra"
)

var version = "dev"

// CLI holds the state shared by all commands.
type CLI struct {
	configPath string
	verbose    bool

	opts    *config.Options
	tables  *apptables.Tables
	client  *dynamodb.Client
	backend *apptables.DynamoBackend
}

// Execute runs the apptables CLI. Errors are printed by the command.
func Execute(ctx context.Context) error {
	var c CLI
	return c.RootCommand().ExecuteContext(ctx)
}

// RootCommand creates the root command with every subcommand registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "apptables",
		Short:        "Inspect and edit app tables stored in DynamoDB",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := log.InfoLevel
			if c.verbose {
				level = log.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), level))
			cmd.SetContext(ctx)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to an apptables.toml file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.docsCommand())
	root.AddCommand(c.tablesCommand())
	root.AddCommand(c.columnsCommand())
	root.AddCommand(c.csvCommand())
	root.AddCommand(c.getCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.deleteCommand())
	root.AddCommand(c.importCommand())
	root.AddCommand(c.initCommand())

	return root
}

// open loads the configuration and the tables it declares.
func (c *CLI) open(ctx context.Context) error {
	if c.tables != nil {
		return nil
	}
	logger := loggerFromContext(ctx)

	opts, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.opts = opts

	var backend apptables.Backend
	switch opts.Backend {
	case config.BackendDynamoDB:
		c.client, err = newDynamoClient(ctx, opts)
		if err != nil {
			return err
		}
		c.backend = apptables.NewDynamoBackend(c.client, opts.Table)
		if opts.Index != "" {
			c.backend.RefIndexName = opts.Index
		}
		backend = c.backend
	default:
		backend = apptables.NewMemoryBackend()
	}

	c.tables = apptables.New(backend, opts.TableOptions(), func(o *apptables.Options) {
		o.Logger = logger
	})

	schemas := opts.Tables
	demo := len(schemas) == 0
	if demo {
		logger.Debug("no tables configured, using the employees demo tables")
		schemas = apptest.EmployeeSchemas()
	}
	if err := c.tables.Define(schemas...); err != nil {
		return fmt.Errorf("define tables: %w", err)
	}

	if opts.Backend != config.BackendMemory {
		return nil
	}
	seed := apptest.EmployeesJSON()
	if opts.Seed != "" {
		seed, err = os.ReadFile(opts.Seed)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
	} else if !demo {
		return nil
	}
	n, err := apptest.SeedFromJSON(ctx, c.tables, bytes.NewReader(seed))
	if err != nil {
		return fmt.Errorf("seed memory backend: %w", err)
	}
	logger.Debug("seeded memory backend", "rows", n)
	return nil
}

func newDynamoClient(ctx context.Context, opts *config.Options) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// table opens the named table with the configured wrapper options.
func (c *CLI) table(cmd *cobra.Command, name string) (*tablekit.Table, error) {
	if err := c.open(cmd.Context()); err != nil {
		return nil, err
	}
	opts := append(c.opts.WrapperOptions(), tablekit.WithLogger(loggerFromContext(cmd.Context())))
	return tablekit.Open(c.tables, name, opts...)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
