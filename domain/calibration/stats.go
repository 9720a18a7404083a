package calibration

import (
	"sync/atomic"
	"time"
)

type loopStats struct {
	iterations   atomic.Uint64
	skipped      atomic.Uint64
	simulated    atomic.Uint64
	misses       atomic.Uint64
	degenerate   atomic.Uint64
	accepted     atomic.Uint64
	demotions    atomic.Uint64
	resets       atomic.Uint64
	rectifyNanos atomic.Uint64
	lastAccepted atomic.Int64 // unix nanos
}

func (s *loopStats) reset() {
	s.iterations.Store(0)
	s.skipped.Store(0)
	s.simulated.Store(0)
	s.misses.Store(0)
	s.degenerate.Store(0)
	s.accepted.Store(0)
	s.demotions.Store(0)
	s.resets.Store(0)
	s.rectifyNanos.Store(0)
	s.lastAccepted.Store(0)
}

func (s *loopStats) snapshot() Stats {
	accepted := s.accepted.Load()
	var avg time.Duration
	if total := s.rectifyNanos.Load(); accepted > 0 && total > 0 {
		avg = time.Duration(total / accepted)
	}
	var last time.Time
	if ns := s.lastAccepted.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		Iterations:   s.iterations.Load(),
		Skipped:      s.skipped.Load(),
		Simulated:    s.simulated.Load(),
		Misses:       s.misses.Load(),
		Degenerate:   s.degenerate.Load(),
		Accepted:     accepted,
		Demotions:    s.demotions.Load(),
		Resets:       s.resets.Load(),
		AvgRectify:   avg,
		LastAccepted: last,
	}
}

func (c *Controller) logStats() {
	if c.logger == nil {
		return
	}
	stats := c.Stats()
	c.logger.Debug("calibration.stats",
		"state", c.State().String(),
		"iterations", stats.Iterations,
		"skipped", stats.Skipped,
		"simulated", stats.Simulated,
		"misses", stats.Misses,
		"accepted", stats.Accepted,
		"demotions", stats.Demotions,
		"avg_rectify", stats.AvgRectify,
	)
}
