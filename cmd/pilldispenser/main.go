// Package main is the host-side tool for the pill dispenser
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/pilldispenser/controller"
)

type rootOptions struct {
	verbose    bool
	configPath string
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pilldispenser",
		Short: "Pill dispenser host tools",
		Long: `Host tools for the automatic pill dispenser.

Commands:
  console   Bridge the device serial console and report its events
  ports     List serial ports
  simulate  Run the firmware against a simulated wheel
  dump      Print the state and log stored in an EEPROM image`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default is .pilldispenser.yaml in the current or home directory)")

	cmd.AddCommand(newConsoleCommand(opts))
	cmd.AddCommand(newPortsCommand())
	cmd.AddCommand(newSimulateCommand(opts))
	cmd.AddCommand(newDumpCommand(opts))

	return cmd
}

func (o *rootOptions) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) config() (*controller.Config, error) {
	return controller.LoadConfig(o.configPath)
}
