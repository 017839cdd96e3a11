// Package lora talks to a LoRaWAN modem that is controlled with AT commands over a UART
package lora

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	DefaultPort        = 8
	DefaultCommandWait = 500 * time.Millisecond
	DefaultMessageWait = 5 * time.Second

	// MaxMessageLength is the longest message that fits in the modem's command buffer
	MaxMessageLength = responseBufferSize - len(messagePrefix) - len(messageSuffix) - 1

	responseBufferSize = 128
	messagePrefix      = `AT+MSG="`
	messageSuffix      = "\"\r\n"
)

var (
	ErrNoResponse         = errors.New("no response from modem")
	ErrUnexpectedResponse = errors.New("unexpected response from modem")
	ErrMessageTooLong     = errors.New("message too long")
	ErrNotJoined          = errors.New("network not joined")
)

// Config has the OTAA credentials and response windows
type Config struct {
	AppKey string
	Port   int

	// CommandWait is the response window for configuration commands
	CommandWait time.Duration
	// MessageWait is the response window for the join and uplink messages
	MessageWait time.Duration

	Sleep func(time.Duration)
}

// Modem implements the device's uplink
type Modem struct {
	rw     io.ReadWriter
	cfg    Config
	joined bool
	buf    []byte
}

type exchange struct {
	command  string
	response string
	wait     time.Duration
	// contains accepts any response containing the expected text instead of an exact match
	contains bool
}

// New creates a Modem. Join must succeed before messages can be sent
func New(rw io.ReadWriter, cfg Config) *Modem {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.CommandWait == 0 {
		cfg.CommandWait = DefaultCommandWait
	}
	if cfg.MessageWait == 0 {
		cfg.MessageWait = DefaultMessageWait
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return &Modem{
		rw:  rw,
		cfg: cfg,
		buf: make([]byte, responseBufferSize),
	}
}

func (m *Modem) joinSequence() []exchange {
	port := fmt.Sprint(m.cfg.Port)
	return []exchange{
		{"AT\r\n", "+AT: OK\r\n", m.cfg.CommandWait, false},
		{"AT+MODE=LWOTAA\r\n", "+MODE: LWOTAA\r\n", m.cfg.CommandWait, false},
		{"AT+KEY=APPKEY,\"" + m.cfg.AppKey + "\"\r\n", "+KEY: APPKEY " + m.cfg.AppKey + "\r\n", m.cfg.CommandWait, false},
		{"AT+CLASS=A\r\n", "+CLASS: A\r\n", m.cfg.CommandWait, false},
		{"AT+PORT=" + port + "\r\n", "+PORT: " + port + "\r\n", m.cfg.CommandWait, false},
		{"AT+JOIN\r\n", "Network joined", m.cfg.MessageWait, true},
	}
}

// Join configures the modem for OTAA and joins the network. It stops at the first failed command
func (m *Modem) Join() error {
	m.joined = false

	if m.cfg.AppKey == "" {
		return errors.New("missing AppKey")
	}

	for _, e := range m.joinSequence() {
		resp, err := m.exchange(e.command, e.wait)
		if err != nil {
			return fmt.Errorf("error sending %q: %w", strings.TrimSpace(e.command), err)
		}

		ok := resp == e.response
		if e.contains {
			ok = strings.Contains(resp, e.response)
		}
		if !ok {
			return fmt.Errorf("%w to %q: %q", ErrUnexpectedResponse, strings.TrimSpace(e.command), resp)
		}
	}

	m.joined = true
	return nil
}

// Joined reports whether the last Join succeeded
func (m *Modem) Joined() bool {
	return m.joined
}

// Send transmits msg as an uplink message
func (m *Modem) Send(msg string) error {
	if !m.joined {
		return ErrNotJoined
	}
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(msg))
	}

	_, err := m.exchange(messagePrefix+msg+messageSuffix, m.cfg.MessageWait)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

// exchange writes a command and returns whatever the modem answered within the window
func (m *Modem) exchange(command string, wait time.Duration) (string, error) {
	_, err := io.WriteString(m.rw, command)
	if err != nil {
		return "", fmt.Errorf("error writing: %w", err)
	}

	m.cfg.Sleep(wait)

	n, err := m.rw.Read(m.buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("error reading: %w", err)
		}
		return "", ErrNoResponse
	}
	return string(m.buf[:n]), nil
}
