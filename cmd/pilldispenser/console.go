package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/pilldispenser/controller"
)

func newConsoleCommand(opts *rootOptions) *cobra.Command {
	var port string
	var baudRate int

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Bridge the device serial console",
		Long: `Forward stdin to the dispenser's serial console and print everything it writes.

Event lines are also reported to the REST API when report.addr is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Serial.Port = port
			}
			if cmd.Flags().Changed("baud") {
				cfg.Serial.BaudRate = baudRate
			}

			logger := opts.logger()
			c, err := controller.New(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger.Debug("starting console", "port", cfg.Serial.Port, "baud_rate", cfg.Serial.BaudRate)
			return c.Run(ctx, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "serial port, or "+controller.SerialPortNone+" for no device")
	cmd.Flags().IntVarP(&baudRate, "baud", "b", controller.DefaultBaudRate, "serial baud rate")

	return cmd
}
