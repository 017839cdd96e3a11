package commands

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// JogIncrement is the number of steps moved for each unit of the jog command
const JogIncrement = 64

// readRetryDelay is the wait after a failed read so other goroutines can run
const readRetryDelay = 10 * time.Millisecond

type Command struct {
	Flag        byte
	InputSize   uint
	Run         func(Controller, []byte) error
	Description string
}

// Controller is used to control a device
type Controller interface {
	PressCalibrate()
	PressDispense()
	PrintState()
	PrintLog()
	EraseLog()
	EraseAll()
	Verbose()
	Jog(int32)

	// I/O
	ReadByte() (byte, error)
	io.Writer
}

var (
	CalibrateCommand = &Command{
		Flag:      'A',
		InputSize: 0,
		Run: func(c Controller, b []byte) error {
			c.PressCalibrate()
			return nil
		},
		Description: "Press button A to calibrate.",
	}
	DispenseCommand = &Command{
		Flag:      'B',
		InputSize: 0,
		Run: func(c Controller, b []byte) error {
			c.PressDispense()
			return nil
		},
		Description: "Press button B to dispense.",
	}
	StateCommand = &Command{
		Flag:      'S',
		InputSize: 0,
		Run: func(c Controller, b []byte) error {
			c.PrintState()
			return nil
		},
		Description: "Print the current state.",
	}
	LogCommand = &Command{
		Flag:      'L',
		InputSize: 0,
		Run: func(c Controller, b []byte) error {
			c.PrintLog()
			return nil
		},
		Description: "Print the log.",
	}
	EraseLogCommand = &Command{
		Flag:      'E',
		InputSize: 0,
		Run: func(c Controller, b []byte) error {
			c.EraseLog()
			return nil
		},
		Description: "Erase the log.",
	}
	EraseAllCommand = &Command{
		Flag:      'X',
		InputSize: 1,
		Run: func(c Controller, b []byte) error {
			if b[0] != 'Y' {
				return errors.New("erase not confirmed")
			}
			c.EraseAll()
			return nil
		},
		Description: "Erase all saved data. Input: 'Y' to confirm.",
	}
	VerboseCommand = &Command{
		Flag:      'V',
		InputSize: 0,
		Run: func(c Controller, b []byte) error {
			c.Verbose()
			return nil
		},
		Description: "Enable verbose output.",
	}
	StepCommand = &Command{
		Flag:      's',
		InputSize: 2,
		Run: func(c Controller, b []byte) error {
			s := int32(1)
			if b[0] == '-' {
				s = -1
			} else if b[0] != '+' {
				return errors.New("invalid input")
			}

			v := b2i(b[1])
			if v == 0 {
				return errors.New("invalid input: " + string(b))
			}

			c.Jog(int32(v) * s * JogIncrement)

			return nil
		},
		Description: "Move the wheel without changing state. Input: '+' or '-', then count (1-9).",
	}
	HelpCommand = &Command{
		Flag:        'H',
		InputSize:   0,
		Description: "Show all available commands and their descriptions.",
		Run: func(c Controller, b []byte) error {
			fmt.Fprintln(c, "Available Commands:")
			for _, cmd := range commands {
				fmt.Fprintf(c, "%c: %s\n", cmd.Flag, cmd.Description)
			}
			return nil
		},
	}
)

func b2i(b byte) uint {
	v := uint(b - '0')
	if v < 1 || v > 9 {
		return 0
	}
	return v
}

var commands = []*Command{
	CalibrateCommand,
	DispenseCommand,
	StateCommand,
	LogCommand,
	EraseLogCommand,
	EraseAllCommand,
	VerboseCommand,
	StepCommand,
}

// Run reads and runs commands until the input is closed
func Run(c Controller) {
	cmdMap := map[byte]*Command{
		HelpCommand.Flag: HelpCommand,
	}

	for _, cmd := range commands {
		cmdMap[cmd.Flag] = cmd
	}

	for {
		cmdIn, err := readByte(c)
		if err != nil {
			return
		}

		cmd, ok := cmdMap[cmdIn]
		if !ok {
			continue
		}

		in := make([]byte, cmd.InputSize)
		for i := range in {
			in[i], err = readByte(c)
			if err != nil {
				return
			}
		}

		err = cmd.Run(c, in)
		if err != nil {
			fmt.Fprintln(c, "error:", err.Error())
		}
	}
}

// readByte retries until a byte is available. It only returns an error at the end of the input
func readByte(c Controller) (byte, error) {
	for {
		b, err := c.ReadByte()
		if err == nil {
			return b, nil
		}
		if errors.Is(err, io.EOF) {
			return 0, err
		}
		time.Sleep(readRetryDelay)
	}
}
