package streamhub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// cpuGuard samples host/container CPU usage on an interval and reports
// whether it has crossed a configured reject threshold, giving the
// streaming service an emergency brake independent of the memory-derived
// subscriber cap in capacity.go.
type cpuGuard struct {
	thresholdPercent float64
	currentPercent   atomic.Value // float64
	logger           zerolog.Logger
}

func newCPUGuard(thresholdPercent float64, logger zerolog.Logger) *cpuGuard {
	g := &cpuGuard{thresholdPercent: thresholdPercent, logger: logger}
	g.currentPercent.Store(0.0)
	return g
}

// run samples CPU usage every interval until ctx is cancelled. The 100ms
// sample window is short enough not to stall the ticker loop but long
// enough for cpu.Percent to return a meaningful (non-zero-baseline) value.
func (g *cpuGuard) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
			if err != nil {
				g.logger.Warn().Err(err).Msg("sample cpu usage failed")
				continue
			}
			if len(percents) == 0 {
				continue
			}
			g.currentPercent.Store(percents[0])
			metrics.StreamCPUPercent.Set(percents[0])
		}
	}
}

// overloaded reports whether the last sampled CPU usage exceeds the
// configured reject threshold. A non-positive threshold disables the brake.
func (g *cpuGuard) overloaded() bool {
	if g.thresholdPercent <= 0 {
		return false
	}
	return g.currentPercent.Load().(float64) > g.thresholdPercent
}
