// Package commands wires the fundboard CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"fundboard/internal/buildinfo"
	"fundboard/internal/cli"
	"fundboard/internal/config"
	"fundboard/internal/log"
)

// app carries what the root pre-run prepares for subcommands.
type app struct {
	cfg    *config.Config
	logger *log.Logger
}

// setup loads .env and the environment. Commands that touch the source
// validate the full configuration; the state commands only need the
// database path. One-shot commands log to stderr so their report stays
// alone on stdout.
func (a *app) setup(validate, service bool) error {
	cli.LoadEnvFile()
	if service {
		a.logger = cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	} else {
		cfg := log.DefaultConfig()
		cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
		cfg.Output = os.Stderr
		a.logger = log.New(cfg)
		log.SetDefault(a.logger)
	}
	if !validate {
		a.cfg = config.Load()
		return nil
	}
	cfg, err := cli.LoadAndValidateConfig(a.logger)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// NewRootCmd builds the fundboard command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "fundboard",
		Short:   "Fundraising dashboard fed by a shared spreadsheet",
		Long:    "Poll a fundraising spreadsheet, detect genuine changes and serve the dashboard.",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newStateCmd(a))
	return root
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
