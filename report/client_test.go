package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventServer struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/events" {
		http.NotFound(w, r)
		return
	}

	var e Event
	err := json.NewDecoder(r.Body).Decode(&e)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	e.ID = "event-" + string(rune('0'+len(s.events)))
	s.events = append(s.events, e)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(e)
}

func TestReport(t *testing.T) {
	srv := &eventServer{}
	server := httptest.NewServer(srv)
	defer server.Close()

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewClient(server.URL, "dispenser-1")
	c.now = func() time.Time { return now }

	id, err := c.Report(context.Background(), "Boot.")
	require.NoError(t, err)
	assert.Equal(t, "event-0", id)

	require.Len(t, srv.events, 1)
	assert.Equal(t, "dispenser-1", srv.events[0].DeviceID)
	assert.Equal(t, "Boot.", srv.events[0].Message)
	assert.True(t, now.Equal(srv.events[0].Time))
}

func TestReportEmptyMessage(t *testing.T) {
	c := NewClient("http://localhost:0", "dispenser-1")
	_, err := c.Report(context.Background(), "")
	assert.Error(t, err)
}

func TestReportServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "dispenser-1")
	_, err := c.Report(context.Background(), "Boot.")
	assert.Error(t, err)
}

func TestUplink(t *testing.T) {
	srv := &eventServer{}
	server := httptest.NewServer(srv)
	defer server.Close()

	u := Uplink{Client: NewClient(server.URL, "sim")}
	require.NoError(t, u.Send("Calibrated. Waiting for button to dispense pills."))
	require.Len(t, srv.events, 1)
	assert.Equal(t, "sim", srv.events[0].DeviceID)
}
