package controls

import "time"

// volumeMarker remembers a volume change the bridge asked for, so the
// notification it causes is not mistaken for a user change. It is a
// heuristic: a genuine user change arriving inside the window is swallowed.
type volumeMarker struct {
	deadline time.Time
	pending  bool
}

func (m *volumeMarker) arm(now time.Time, timeout time.Duration) {
	m.deadline = now.Add(timeout)
	m.pending = true
}

// expire clears a marker whose window has passed.
func (m *volumeMarker) expire(now time.Time) {
	if m.pending && !now.Before(m.deadline) {
		m.pending = false
	}
}

// consume reports whether a notification observed now acknowledges the
// pending change. Either way the marker is cleared.
func (m *volumeMarker) consume(now time.Time) bool {
	m.expire(now)
	ack := m.pending
	m.pending = false
	return ack
}
