/*
main.go - harvest command-line tool

PURPOSE:
  Runs businesses from the terminal. simulate plays presets or template
  files in memory; the business commands work on the same SQLite database
  the HTTP server uses, through the same service and locks.

COMMANDS:
  presets                     List built-in presets
  template show <kind>        Print a preset as YAML
  template check <file>       Validate a template file
  simulate                    Run businesses in memory, in parallel
  create <preset>             Store a new business
  list                        List stored businesses
  state <id>                  Show a stored business
  advance <id>                Simulate days on a stored business

CONFIGURATION:
  Same variables as the server (config/config.go). --db overrides DB_PATH.

SEE ALSO:
  - cmd/server/main.go: HTTP server
  - service/service.go: Command execution
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/harvest-engine/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	envFile string
	dbPath  string
	cfg     *config.Config
	log     *logrus.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "harvest",
		Short:         "Retail business simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.envFile)
			if err != nil {
				return err
			}
			if a.dbPath != "" {
				cfg.DBPath = a.dbPath
			}
			a.cfg = cfg
			a.log = cfg.NewLogger(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env", ".env", "dotenv file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")

	root.AddCommand(
		presetsCmd(),
		templateCmd(),
		simulateCmd(a),
		createCmd(a),
		listCmd(a),
		stateCmd(a),
		advanceCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("harvest failed")
		stop()
		os.Exit(1)
	}
}
