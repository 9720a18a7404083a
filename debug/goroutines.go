package debug

// Goroutine count logger, started only when config.Debug is true. Each event
// stream and each source loop owns a goroutine, so a count that keeps rising
// points at streams or loops that were never released.

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// growthSamples is the number of consecutive rising samples reported as growth.
const growthSamples = 5

// growthTracker counts consecutive samples above the previous one.
type growthTracker struct {
	baseline uint64
	last     uint64
	peak     uint64
	rising   int
}

func newGrowthTracker(baseline uint64) *growthTracker {
	return &growthTracker{baseline: baseline, last: baseline, peak: baseline}
}

// observe records n and reports whether the count has now risen for
// growthSamples samples in a row. The streak restarts after a report.
func (g *growthTracker) observe(n uint64) bool {
	if n > g.peak {
		g.peak = n
	}
	if n > g.last {
		g.rising++
	} else {
		g.rising = 0
	}
	g.last = n
	if g.rising >= growthSamples {
		g.rising = 0
		return true
	}
	return false
}

func (g *growthTracker) delta() int64 { return int64(g.last) - int64(g.baseline) }

func readGoroutines(samples []metrics.Sample) uint64 {
	metrics.Read(samples)
	return samples[0].Value.Uint64()
}

// StartGoroutineLogger logs the goroutine count relative to the count at
// start, plus stack memory, every interval until ctx is done. Sustained growth
// is logged as a warning.
func StartGoroutineLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	tracker := newGrowthTracker(readGoroutines(samples))

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			n := readGoroutines(samples)
			growing := tracker.observe(n)
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			logger.Info("debug.goroutines",
				slog.Uint64("goroutines", n),
				slog.Int64("delta", tracker.delta()),
				slog.Uint64("peak", tracker.peak),
				slog.Uint64("stack_inuse", ms.StackInuse),
			)
			if growing {
				logger.Warn("debug.goroutines growth",
					slog.Uint64("goroutines", n),
					slog.Uint64("baseline", tracker.baseline),
				)
			}
		}
	}()
}
