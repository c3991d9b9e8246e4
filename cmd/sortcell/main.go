// sortcell runs the nodes of the sorting cell and talks to a running coordinator.
//
// Usage:
//
//	sortcell motor-node   [--config=<path>]
//	sortcell sensor-node  [--config=<path>]
//	sortcell coordinator  [--config=<path>] [--autostart]
//	sortcell dns          [--config=<path>]
//	sortcell panel        [--addr=<coordinator>]
//	sortcell status|start|stop|history [--addr=<coordinator>]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/sortcell/config"
	"github.com/calvinmclean/sortcell/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

// cfg is loaded before any subcommand runs
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "sortcell",
	Short: "Distributed controller for a material sorting cell",
	Long: `sortcell runs the motor node, sensor node, coordinator and DNS responder of a
sorting cell, and provides a CLI and desktop panel for the coordinator.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		var err error
		cfg, err = config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		return logging.InitFromConfig(cfg.Log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to the YAML config file")

	rootCmd.AddCommand(motorNodeCmd)
	rootCmd.AddCommand(sensorNodeCmd)
	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(dnsCmd)
	rootCmd.AddCommand(panelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.Version = version
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
