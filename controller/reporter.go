package controller

import (
	"context"

	"github.com/calvinmclean/pilldispenser/report"
)

// Reporter receives the events read from the device console
type Reporter interface {
	Report(ctx context.Context, message string) (string, error)
}

type noopReporter struct{}

var _ Reporter = noopReporter{}

// Report implements Reporter.
func (noopReporter) Report(context.Context, string) (string, error) {
	return "", nil
}

var _ Reporter = (*report.Client)(nil)

// NewReporter returns a REST reporter when an address is configured
func NewReporter(cfg ReportConfig) Reporter {
	if cfg.Addr == "" {
		return noopReporter{}
	}
	return report.NewClient(cfg.Addr, cfg.DeviceID)
}
