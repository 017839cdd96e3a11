package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/calvinmclean/pilldispenser/firmware/eeprom"
)

func newDumpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [image]",
		Short: "Print the state and log stored in an EEPROM image",
		Long: `Print the MachineState, motor sub-position and log stored in an EEPROM image.

The image defaults to simulator.eeprom_image from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := opts.config()
				if err != nil {
					return err
				}
				path = cfg.Simulator.EEPROMImage
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("error opening image: %w", err)
			}
			defer f.Close()

			return renderDump(cmd.OutOrStdout(), eeprom.New(f))
		},
	}
}

// renderDump writes the persisted data as tables. A corrupt state record is shown as a row and is
// not an error
func renderDump(w io.Writer, store *eeprom.Store) error {
	state := table.NewWriter()
	state.SetStyle(table.StyleLight)
	state.SetTitle("State")
	state.AppendHeader(table.Row{"Field", "Value"})

	// without a valid record every log slot is scanned
	logSequence := uint32(eeprom.MaxLogEntries)

	ms, err := store.LoadMachineState()
	if err != nil {
		state.AppendRow(table.Row{"error", err.Error()})
	} else {
		logSequence = ms.LogSequence
		state.AppendRows([]table.Row{
			{"system state", ms.SystemState},
			{"compartment phase", ms.CompartmentPhase},
			{"calibration steps", ms.CalibrationSteps},
			{"steps per compartment", ms.StepsPerCompartment()},
			{"compartments moved", ms.CompartmentsMoved},
			{"pills left", ms.PillsLeft()},
			{"log sequence", ms.LogSequence},
		})
	}

	sub, err := store.LoadMotorSubPosition()
	if err != nil {
		return fmt.Errorf("error reading sub-position: %w", err)
	}
	state.AppendRow(table.Row{"motor sub-position", sub})

	fmt.Fprintln(w, state.Render())

	log := table.NewWriter()
	log.SetStyle(table.StyleLight)
	log.Style().Format.Footer = text.FormatDefault
	log.SetTitle("Log")
	log.AppendHeader(table.Row{"#", "Message"})

	entries, err := store.ReadLog(logSequence)
	for i, e := range entries {
		log.AppendRow(table.Row{i + 1, e})
	}
	log.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d entries", len(entries))})

	fmt.Fprintln(w, log.Render())
	return err
}
