package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/calvinmclean/pilldispenser/controller"
)

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := controller.ListSerialPorts()
			if err != nil {
				return err
			}

			tbl := table.NewWriter()
			tbl.SetStyle(table.StyleLight)
			tbl.Style().Format.Footer = text.FormatDefault
			tbl.AppendHeader(table.Row{"Name", "USB", "VID", "PID", "Serial", "Product"})
			for _, p := range ports {
				tbl.AppendRow(table.Row{p.Name, p.IsUSB, p.VID, p.PID, p.SerialNumber, p.Product})
			}
			tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d ports", len(ports))})

			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}
}
