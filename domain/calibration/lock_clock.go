package calibration

import (
	"sync"
	"time"
)

// lockClock tracks how long the board has been continuously calibrated and the
// accumulated calibrated time across sessions. The zero value is ready to use.
type lockClock struct {
	mu          sync.Mutex
	active      bool
	since       time.Time
	last        time.Duration
	accumulated time.Duration
}

// OnTick records whether the board is locked at now. Call it on every
// transition; repeated calls with the same value are harmless.
func (m *lockClock) OnTick(locked bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if locked {
		if !m.active { // transition off -> on
			m.active = true
			m.since = now
			m.last = 0
		}
		return
	}
	if m.active { // transition on -> off
		m.last = now.Sub(m.since)
		m.accumulated += m.last
		m.active = false
	}
}

// Values returns the current (or last) lock duration and the total locked
// time, both including an ongoing lock.
func (m *lockClock) Values(now time.Time) (current, total time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current = m.last
	total = m.accumulated
	if m.active {
		current = now.Sub(m.since)
		total += current
	}
	return
}
