package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/jmherbst/aria/internal/logger"
)

// Throttle paces content hashing when overall system CPU is saturated, so a
// scan stays a background activity next to live playback.
type Throttle struct {
	cpuLimit     float64
	sampleWindow time.Duration
	backoff      time.Duration
	maxWaits     int

	// percentFn is swapped in tests.
	percentFn func(interval time.Duration) ([]float64, error)
}

// NewThrottle creates a throttle that holds work while total CPU usage is
// above cpuLimit percent.
func NewThrottle(cpuLimit float64) *Throttle {
	return &Throttle{
		cpuLimit:     cpuLimit,
		sampleWindow: 200 * time.Millisecond,
		backoff:      time.Second,
		maxWaits:     10,
		percentFn: func(interval time.Duration) ([]float64, error) {
			return cpu.Percent(interval, false)
		},
	}
}

// Wait blocks until CPU usage drops below the limit, the backoff budget is
// exhausted, or the context is canceled. Sampling errors disable throttling
// for the call rather than stalling the scan.
func (t *Throttle) Wait(ctx context.Context) error {
	for attempt := 0; attempt < t.maxWaits; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		percents, err := t.percentFn(t.sampleWindow)
		if err != nil || len(percents) == 0 {
			return nil
		}
		if percents[0] < t.cpuLimit {
			return nil
		}

		logger.Debug("scan throttled on CPU pressure", []logger.Field{
			logger.String("usage", formatPercent(percents[0])),
		})
		select {
		case <-time.After(t.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
