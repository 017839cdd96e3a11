//go:build tinygo

package main

import (
	"context"
	"machine"
	"time"

	"github.com/calvinmclean/pilldispenser/firmware/button"
	"github.com/calvinmclean/pilldispenser/firmware/commands"
	"github.com/calvinmclean/pilldispenser/firmware/device"
	"github.com/calvinmclean/pilldispenser/firmware/eeprom"
	"github.com/calvinmclean/pilldispenser/firmware/lora"
)

const (
	ledPWMFrequency = 1000
	ledBrightness   = 200

	joinAttempts = 3

	// appKey is the OTAA application key of this device
	appKey = "511F30D4D81E7B806536733DE7155FDE"
)

func main() {
	configureOutputs(machine.GP13, machine.GP6, machine.GP3, machine.GP2)
	stepperCfg := device.StepperConfig{
		Pins:      [4]device.Pin{machine.GP13, machine.GP6, machine.GP3, machine.GP2},
		StepMode:  device.StepModeHalf,
		StepDelay: 2000 * time.Microsecond,
	}
	stepper, err := device.NewStepper(stepperCfg)
	if err != nil {
		panic(err)
	}

	indicator, err := newLEDs(ledBrightness,
		LEDConfig{Pin: machine.GP22, PWM: machine.PWM3},
		LEDConfig{Pin: machine.GP21, PWM: machine.PWM2},
		LEDConfig{Pin: machine.GP20, PWM: machine.PWM2},
	)
	if err != nil {
		panic(err)
	}

	mem, err := newEEPROM(machine.I2C0, machine.GP16, machine.GP17)
	if err != nil {
		panic(err)
	}
	store := eeprom.New(mem)

	err = machine.UART1.Configure(machine.UARTConfig{
		BaudRate: 9600,
		TX:       machine.GP4,
		RX:       machine.GP5,
	})
	if err != nil {
		panic(err)
	}
	modem := lora.New(machine.UART1, lora.Config{AppKey: appKey})

	dispenseCfg := device.DispenseConfig{
		AlignmentOffset:     device.DefaultAlignmentOffset,
		CompartmentInterval: device.DefaultCompartmentInterval,
		BlinkInterval:       device.DefaultBlinkInterval,
		AlertBlinks:         device.DefaultAlertBlinks,
		EdgeSearchLimit:     device.DefaultEdgeSearchLimit,
		IdleDelay:           device.DefaultIdleDelay,
	}

	d, err := device.New(stepper, indicator, store, modem, device.Config{
		Dispense: dispenseCfg,
		Console:  machine.Serial,
	})
	if err != nil {
		panic(err)
	}

	err = configureEdge(machine.GP28, d.OnPositionEdge)
	if err != nil {
		panic(err)
	}
	err = configureEdge(machine.GP27, d.OnDropEdge)
	if err != nil {
		panic(err)
	}

	for i := range joinAttempts {
		err = modem.Join()
		if err == nil {
			break
		}
		println("lora join attempt", i+1, "failed:", err.Error())
	}

	ctx := context.Background()

	sampler := button.NewSampler(button.DefaultPeriod, true,
		&button.Button{Get: configureInput(machine.GP9), OnPress: d.PressCalibrate},
		&button.Button{Get: configureInput(machine.GP7), OnPress: d.PressDispense},
	)
	go sampler.Run(ctx)

	go commands.Run(device.NewConsole(d, machine.Serial))

	d.Run(ctx)
}
