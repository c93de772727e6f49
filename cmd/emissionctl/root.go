package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/config"
)

// cli carries per-invocation state shared by all commands.
type cli struct {
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
	cfg     *config.Config
	app     *app
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{v: config.New(), stdout: stdout, stderr: stderr}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "emissionctl",
		Short: "Sulfur emission compliance ledger",
		Long: `emissionctl records vessel sulfur readings against the MARPOL Annex VI
limits, files compliance notices for violations and exports verifiable
evidence bundles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadConfig()
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (YAML)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("store", "", "store driver: memory, sqlite, postgres")
	pf.String("dsn", "", "store data source name")
	pf.String("admin", "", "administrator identity")
	pf.String("identity", "", "identity of the emission ledger (the notice filer)")
	for key, flag := range map[string]string{
		"log.level":       "log-level",
		"store.driver":    "store",
		"store.dsn":       "dsn",
		"ledger.admin":    "admin",
		"ledger.identity": "identity",
	} {
		_ = c.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newInitCmd(c),
		newVesselCmd(c),
		newRecordCmd(c),
		newHistoryCmd(c),
		newNoticesCmd(c),
		newFilerCmd(c),
		newVerifyCmd(c),
		newExportCmd(c),
		newImportCmd(c),
	)
	return root
}

func (c *cli) loadConfig() error {
	cfg, err := config.LoadWith(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg
	slog.SetDefault(cfg.Log.NewLogger(c.stderr))
	return nil
}

// open wires the ledger stack on first use.
func (c *cli) open(ctx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	if c.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	a, err := newApp(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close(ctx context.Context) error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

func (c *cli) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, string(data))
	return err
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}
