// Package report sends dispenser events to a REST API
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calvinmclean/babyapi"
)

const DefaultTimeout = 5 * time.Second

// Event is one notification from a dispenser
type Event struct {
	// include NilResource so we don't implement Render/Bind which are not needed
	*babyapi.NilResource

	ID       string    `json:"id,omitempty"`
	DeviceID string    `json:"device_id"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

func (e Event) GetID() string {
	return e.ID
}

type Client struct {
	client   *babyapi.Client[*Event]
	deviceID string
	now      func() time.Time
}

func NewClient(addr, deviceID string) *Client {
	client := babyapi.NewClient[*Event](addr, "/events")
	return &Client{
		client:   client,
		deviceID: deviceID,
		now:      time.Now,
	}
}

// Report creates an Event for message and returns its ID
func (c *Client) Report(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", errors.New("empty message")
	}

	resp, err := c.client.Post(ctx, &Event{
		DeviceID: c.deviceID,
		Message:  message,
		Time:     c.now(),
	})
	if err != nil {
		return "", fmt.Errorf("error creating event: %w", err)
	}

	return resp.Data.GetID(), nil
}

// Uplink sends device notifications straight to a Client, for the simulator
type Uplink struct {
	Client  *Client
	Timeout time.Duration
}

func (u Uplink) Send(message string) error {
	timeout := u.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := u.Client.Report(ctx, message)
	return err
}
