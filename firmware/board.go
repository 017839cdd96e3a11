//go:build tinygo

package main

import (
	"machine"

	"tinygo.org/x/drivers/at24cx"

	"github.com/calvinmclean/pilldispenser/firmware/eeprom"
)

// pwm is the part of a TinyGo PWM group used for the LEDs
type pwm interface {
	Configure(machine.PWMConfig) error
	Channel(machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

type ledChannel struct {
	pwm     pwm
	channel uint8
}

// leds dims all status LEDs together. It implements device.Indicator
type leds struct {
	channels []ledChannel
	// brightness is in thousandths of full duty
	brightness uint32
}

// LEDConfig maps a pin to its PWM group
type LEDConfig struct {
	Pin machine.Pin
	PWM pwm
}

func newLEDs(brightness uint32, cfgs ...LEDConfig) (*leds, error) {
	l := &leds{brightness: brightness}
	for _, cfg := range cfgs {
		err := cfg.PWM.Configure(machine.PWMConfig{Period: 1e9 / ledPWMFrequency})
		if err != nil {
			return nil, err
		}
		ch, err := cfg.PWM.Channel(cfg.Pin)
		if err != nil {
			return nil, err
		}
		l.channels = append(l.channels, ledChannel{cfg.PWM, ch})
	}
	l.Off()
	return l, nil
}

func (l *leds) On() {
	for _, c := range l.channels {
		c.pwm.Set(c.channel, c.pwm.Top()*l.brightness/1000)
	}
}

func (l *leds) Off() {
	for _, c := range l.channels {
		c.pwm.Set(c.channel, 0)
	}
}

func configureOutputs(pins ...machine.Pin) {
	for _, p := range pins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
}

// configureEdge calls f on each falling edge of a pulled-up input
func configureEdge(pin machine.Pin, f func()) error {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return pin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		f()
	})
}

func configureInput(pin machine.Pin) func() bool {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return pin.Get
}

// newEEPROM configures the I2C bus and the AT24C256 on it
func newEEPROM(bus *machine.I2C, sda, scl machine.Pin) (*at24cx.Device, error) {
	err := bus.Configure(machine.I2CConfig{
		SDA:       sda,
		SCL:       scl,
		Frequency: 100 * machine.KHz,
	})
	if err != nil {
		return nil, err
	}

	mem := at24cx.New(bus)
	err = mem.Configure(at24cx.Config{
		PageSize:        eeprom.PageSize,
		StartRAMAddress: 0,
		EndRAMAddress:   eeprom.Size,
	})
	if err != nil {
		return nil, err
	}
	return &mem, nil
}
