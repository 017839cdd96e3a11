package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/controller"
	"github.com/calvinmclean/pilldispenser/firmware/commands"
	"github.com/calvinmclean/pilldispenser/firmware/device"
	"github.com/calvinmclean/pilldispenser/firmware/eeprom"
	"github.com/calvinmclean/pilldispenser/report"
	"github.com/calvinmclean/pilldispenser/sim"
)

// simStepDelay matches the half-step delay used on the board
const simStepDelay = 2 * time.Millisecond

func newSimulateCommand(opts *rootOptions) *cobra.Command {
	var (
		image          string
		speed          float64
		sensorFault    bool
		powerLossAfter int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the firmware against a simulated wheel",
		Long: `Run the dispenser firmware with a simulated motor, wheel and sensors.

The EEPROM is kept in an image file so state survives restarts. Console commands are read from
stdin, use H for help. The wheel is loaded with pills when calibration completes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("image") {
				cfg.Simulator.EEPROMImage = image
			}
			if flags.Changed("speed") {
				cfg.Simulator.Speed = speed
			}
			if flags.Changed("sensor-fault") {
				cfg.Simulator.SensorFault = sensorFault
			}
			if flags.Changed("power-loss-after") {
				cfg.Simulator.PowerLossAfter = powerLossAfter
			}
			err = cfg.Validate()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return simulate(ctx, cfg, opts.verbose, bufio.NewReader(os.Stdin), cmd.OutOrStdout(), opts.logger())
		},
	}

	cmd.Flags().StringVar(&image, "image", controller.DefaultEEPROMImage, "EEPROM image file")
	cmd.Flags().Float64Var(&speed, "speed", controller.DefaultSpeed, "time multiplier, 0 runs without real delays")
	cmd.Flags().BoolVar(&sensorFault, "sensor-fault", false, "disable the position sensor")
	cmd.Flags().IntVar(&powerLossAfter, "power-loss-after", 0, "cut power after this many motor steps, then reboot")

	return cmd
}

func simulate(ctx context.Context, cfg *controller.Config, verbose bool, in io.ByteReader, out io.Writer, logger *slog.Logger) error {
	f, err := eeprom.OpenImage(cfg.Simulator.EEPROMImage)
	if err != nil {
		return err
	}
	defer f.Close()

	clock := sim.NewClock(time.Now(), cfg.Simulator.Speed)
	store := eeprom.New(f, eeprom.WithSleep(clock.Sleep))

	wheel := sim.NewWheel(sim.WheelConfig{
		StepsPerRevolution: cfg.Simulator.StepsPerRevolution,
		IndexPosition:      cfg.Simulator.IndexPosition,
		SensorFault:        cfg.Simulator.SensorFault,
		StepDelay:          simStepDelay,
		Sleep:              clock.Sleep,
	})

	// pills are still in the wheel when a previous run stopped mid-cycle
	state, err := store.LoadMachineState()
	if err == nil && state.SystemState != pilldispenser.CalibrationWaiting {
		wheel.Load()
	}

	if cfg.Simulator.PowerLossAfter > 0 {
		wheel.CutPowerAfter(cfg.Simulator.PowerLossAfter)
	}

	uplink := &simUplink{wheel: wheel, out: out, logger: logger}
	if cfg.Report.Addr != "" {
		uplink.report = &report.Uplink{
			Client:  report.NewClient(cfg.Report.Addr, cfg.Report.DeviceID),
			Timeout: cfg.Report.Timeout,
		}
	}

	console := &rebootingConsole{in: in}
	started := false

	for boot := 1; ; boot++ {
		d, err := device.New(wheel, &sim.LEDs{}, store, uplink, device.Config{
			Console: out,
			Sleep:   clock.Sleep,
			Now:     clock.Now,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		wheel.Attach(d)
		console.cur.Store(device.NewConsole(d, in))

		if !started {
			go commands.Run(console)
			started = true
		}

		logger.Debug("booting simulated device", "boot", boot)

		var runErr error
		lost := sim.RunUntilPowerLoss(func() {
			runErr = d.Run(ctx)
		})
		if !lost {
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		}

		fmt.Fprintf(out, "[sim] power lost after %d steps, rebooting\n", wheel.Steps())
	}
}

// simUplink loads the wheel when calibration completes and optionally reports events
type simUplink struct {
	wheel  *sim.Wheel
	report *report.Uplink
	out    io.Writer
	logger *slog.Logger
}

func (u *simUplink) Send(msg string) error {
	if strings.HasPrefix(msg, "Calibrated.") {
		u.wheel.Load()
		fmt.Fprintf(u.out, "[sim] loaded %d pills\n", u.wheel.Loaded())
	}

	if u.report == nil {
		return nil
	}
	err := u.report.Send(msg)
	if err != nil {
		u.logger.Error("error reporting event", "message", msg, "error", err)
	}
	return err
}

// rebootingConsole hands console commands to the device that is currently running
type rebootingConsole struct {
	cur atomic.Pointer[device.Console]
	in  io.ByteReader
}

var _ commands.Controller = (*rebootingConsole)(nil)

func (c *rebootingConsole) PressCalibrate() { c.cur.Load().PressCalibrate() }
func (c *rebootingConsole) PressDispense()  { c.cur.Load().PressDispense() }
func (c *rebootingConsole) PrintState()     { c.cur.Load().PrintState() }
func (c *rebootingConsole) PrintLog()       { c.cur.Load().PrintLog() }
func (c *rebootingConsole) EraseLog()       { c.cur.Load().EraseLog() }
func (c *rebootingConsole) EraseAll()       { c.cur.Load().EraseAll() }
func (c *rebootingConsole) Verbose()        { c.cur.Load().Verbose() }
func (c *rebootingConsole) Jog(n int32)     { c.cur.Load().Jog(n) }

func (c *rebootingConsole) ReadByte() (byte, error) {
	return c.in.ReadByte()
}

func (c *rebootingConsole) Write(p []byte) (int, error) {
	return c.cur.Load().Write(p)
}
