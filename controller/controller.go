// Package controller bridges a terminal to the serial console of a dispenser and forwards the
// device's events to a Reporter
package controller

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPortNone runs the controller without a device
const SerialPortNone = "None"

// eventMarker prefixes notification lines on the device console
const eventMarker = "[event] "

var ErrNoUSBSerial = errors.New("no USB serial ports found")

// Controller reads the device console and forwards commands to it
type Controller struct {
	port     io.ReadWriteCloser
	reporter Reporter
	logger   *slog.Logger
	timeout  time.Duration

	closeOnce sync.Once
	closeErr  error
}

// New opens the configured serial port
func New(cfg *Config, logger *slog.Logger) (*Controller, error) {
	port, err := openPort(cfg.Serial)
	if err != nil {
		return nil, err
	}
	return NewFromConn(port, NewReporter(cfg.Report), cfg.Report.Timeout, logger), nil
}

// NewFromConn creates a Controller for an already open console
func NewFromConn(port io.ReadWriteCloser, reporter Reporter, timeout time.Duration, logger *slog.Logger) *Controller {
	if reporter == nil {
		reporter = noopReporter{}
	}
	if timeout == 0 {
		timeout = DefaultReportTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		port:     port,
		reporter: reporter,
		logger:   logger,
		timeout:  timeout,
	}
}

func openPort(cfg SerialConfig) (io.ReadWriteCloser, error) {
	name := cfg.Port
	switch name {
	case SerialPortNone:
		return nopPort{}, nil
	case "":
		ports, err := GetSerialPorts()
		if err != nil {
			return nil, err
		}
		name = ports[0]
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %q: %w", name, err)
	}
	return port, nil
}

// Run copies in to the device and the device output to out until the device closes or ctx is
// cancelled. Event lines are also sent to the Reporter
func (c *Controller) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if in != nil {
		go func() {
			_, err := io.Copy(c.port, in)
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("stopped forwarding input", "error", err)
			}
		}()
	}

	scanner := bufio.NewScanner(c.port)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fmt.Fprintln(out, line)
		c.handleLine(ctx, line)
	}

	err := scanner.Err()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading device: %w", err)
	}
	return nil
}

func (c *Controller) handleLine(ctx context.Context, line string) {
	_, msg, ok := strings.Cut(line, eventMarker)
	if !ok || msg == "" {
		return
	}
	c.logger.Debug("device event", "message", msg)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.reporter.Report(ctx, msg)
	if err != nil {
		c.logger.Error("error reporting event", "message", msg, "error", err)
		return
	}
	if id != "" {
		c.logger.Debug("reported event", "id", id)
	}
}

// Close closes the device console. It is safe to call more than once
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}

// GetSerialPorts returns the names of the USB serial ports
func GetSerialPorts() ([]string, error) {
	details, err := ListSerialPorts()
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, p := range details {
		if p.IsUSB {
			ports = append(ports, p.Name)
		}
	}
	if len(ports) == 0 {
		return nil, ErrNoUSBSerial
	}
	return ports, nil
}

// ListSerialPorts returns every serial port with its USB details
func ListSerialPorts() ([]*enumerator.PortDetails, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}
	return details, nil
}

// nopPort never produces output and discards input
type nopPort struct{}

func (nopPort) Read([]byte) (int, error)    { return 0, io.EOF }
func (nopPort) Write(p []byte) (int, error) { return len(p), nil }
func (nopPort) Close() error                { return nil }
