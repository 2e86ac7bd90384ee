package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/store"
	"github.com/jbweber/anvil/internal/vm"
)

// Output flags shared by list and get.
var (
	outputFormat string
	noHeaders    bool
)

func init() {
	for _, cmd := range []*cobra.Command{listCmd, getCmd} {
		cmd.Flags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "Output format: table, yaml, json")
		cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")
		cmd.Flags().String("db", "", "Path to the sqlite database (overrides config)")
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded instances",
	Long: `List every instance recorded in the database, newest first.

No hypervisor script is run; the listing reflects the last recorded state.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML documents
  -o json   JSON array`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		mgr, closeFn, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		instances, err := mgr.List(context.Background())
		if err != nil {
			return err
		}

		result, err := formatter.FormatInstanceList(instances)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get details about an instance",
	Long: `Get an instance together with its installed services and users.

Output formats:
  -o table  Human-readable summary (default)
  -o yaml   YAML document
  -o json   JSON document`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 0)
		if err != nil {
			return fmt.Errorf("instance id must be a number, got %q", args[0])
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		mgr, closeFn, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		details, err := mgr.Details(context.Background(), uint(id))
		if err != nil {
			return fmt.Errorf("failed to get instance %d: %w", id, err)
		}

		inst := details.Instance
		inst.Services = details.Services
		inst.Users = details.Users

		result, err := formatter.FormatInstance(inst)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

func newFormatter() (output.Formatter, error) {
	if err := output.ValidateFormat(outputFormat); err != nil {
		return nil, err
	}
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

// openManager opens the configured database for the read-only commands.
// Events and metrics are not wired; nothing is mutated.
func openManager(cmd *cobra.Command) (*vm.Manager, func(), error) {
	cfg, err := loadConfig(cmd, func(c *config.Config) {
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			c.Database = db
		}
	})
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("failed to close database")
		}
	}

	runner := script.NewRunner(script.Options{
		Dir:          cfg.ScriptsDir,
		Interpreters: cfg.Interpreters,
		Logger:       log,
	})

	return vm.NewManager(st, runner, vm.Options{Logger: log}), closeFn, nil
}
