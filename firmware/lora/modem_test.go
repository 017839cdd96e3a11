package lora

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appKey = "511F30D4D81E7B806536733DE7155FDE"

// fakeUART answers known commands the way the modem does
type fakeUART struct {
	written   []string
	responses map[string]string
	pending   bytes.Buffer
}

func newFakeUART() *fakeUART {
	return &fakeUART{
		responses: map[string]string{
			"AT\r\n":                                "+AT: OK\r\n",
			"AT+MODE=LWOTAA\r\n":                    "+MODE: LWOTAA\r\n",
			"AT+KEY=APPKEY,\"" + appKey + "\"\r\n": "+KEY: APPKEY " + appKey + "\r\n",
			"AT+CLASS=A\r\n":                        "+CLASS: A\r\n",
			"AT+PORT=8\r\n":                         "+PORT: 8\r\n",
			"AT+JOIN\r\n":                           "+JOIN: Start\r\n+JOIN: Network joined\r\n",
		},
	}
}

func (f *fakeUART) Write(p []byte) (int, error) {
	cmd := string(p)
	f.written = append(f.written, cmd)

	if resp, ok := f.responses[cmd]; ok {
		f.pending.WriteString(resp)
	} else if strings.HasPrefix(cmd, messagePrefix) {
		f.pending.WriteString("+MSG: Done\r\n")
	}
	return len(p), nil
}

func (f *fakeUART) Read(p []byte) (int, error) {
	return f.pending.Read(p)
}

func newTestModem(uart *fakeUART) (*Modem, *time.Duration) {
	var waited time.Duration
	m := New(uart, Config{
		AppKey: appKey,
		Sleep:  func(d time.Duration) { waited += d },
	})
	return m, &waited
}

func TestJoin(t *testing.T) {
	uart := newFakeUART()
	m, waited := newTestModem(uart)

	require.NoError(t, m.Join())
	assert.True(t, m.Joined())
	assert.Equal(t, []string{
		"AT\r\n",
		"AT+MODE=LWOTAA\r\n",
		"AT+KEY=APPKEY,\"" + appKey + "\"\r\n",
		"AT+CLASS=A\r\n",
		"AT+PORT=8\r\n",
		"AT+JOIN\r\n",
	}, uart.written)
	assert.Equal(t, 5*DefaultCommandWait+DefaultMessageWait, *waited)
}

func TestJoinStopsAtFailure(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		response string
		expected error
		written  int
	}{
		{"NoResponse", "AT+MODE=LWOTAA\r\n", "", ErrNoResponse, 2},
		{"WrongKey", "AT+KEY=APPKEY,\"" + appKey + "\"\r\n", "+KEY: ERROR(-1)\r\n", ErrUnexpectedResponse, 3},
		{"JoinFailed", "AT+JOIN\r\n", "+JOIN: Join failed\r\n", ErrUnexpectedResponse, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uart := newFakeUART()
			uart.responses[tt.command] = tt.response
			m, _ := newTestModem(uart)

			err := m.Join()
			assert.ErrorIs(t, err, tt.expected)
			assert.False(t, m.Joined())
			assert.Len(t, uart.written, tt.written)
		})
	}
}

func TestJoinMissingKey(t *testing.T) {
	uart := newFakeUART()
	m := New(uart, Config{})
	assert.Error(t, m.Join())
	assert.Empty(t, uart.written)
}

func TestSend(t *testing.T) {
	uart := newFakeUART()
	m, _ := newTestModem(uart)

	err := m.Send("Boot.")
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Empty(t, uart.written)

	require.NoError(t, m.Join())
	require.NoError(t, m.Send("Boot."))
	assert.Equal(t, "AT+MSG=\"Boot.\"\r\n", uart.written[len(uart.written)-1])

	err = m.Send(strings.Repeat("x", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	require.NoError(t, m.Send(strings.Repeat("x", MaxMessageLength)))
}

func TestSendNoResponse(t *testing.T) {
	uart := newFakeUART()
	m, _ := newTestModem(uart)
	require.NoError(t, m.Join())

	m.rw = &silentUART{}
	assert.ErrorIs(t, m.Send("Boot."), ErrNoResponse)
}

type silentUART struct{}

func (silentUART) Write(p []byte) (int, error) { return len(p), nil }
func (silentUART) Read([]byte) (int, error)    { return 0, nil }
