// Package observability aggregates runtime counters for logging and the
// periodic stats worker.
package observability

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of the relay counters.
type Stats struct {
	ActiveSessions     int64  `json:"active_sessions"`
	SessionsRegistered uint64 `json:"sessions_registered"`
	SessionsEvicted    uint64 `json:"sessions_evicted"`
	EventsDelivered    uint64 `json:"events_delivered"`
	TargetsSkipped     uint64 `json:"targets_skipped"`
	DeliveryFailures   uint64 `json:"delivery_failures"`
}

// Monitor holds atomic counters shared by the registry and the router.
// All methods are safe for concurrent use.
type Monitor struct {
	activeSessions     atomic.Int64
	sessionsRegistered atomic.Uint64
	sessionsEvicted    atomic.Uint64
	eventsDelivered    atomic.Uint64
	targetsSkipped     atomic.Uint64
	deliveryFailures   atomic.Uint64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) SessionRegistered() {
	m.activeSessions.Add(1)
	m.sessionsRegistered.Add(1)
}

func (m *Monitor) SessionRemoved() {
	m.activeSessions.Add(-1)
}

func (m *Monitor) SessionEvicted() {
	m.activeSessions.Add(-1)
	m.sessionsEvicted.Add(1)
}

func (m *Monitor) EventDelivered() { m.eventsDelivered.Add(1) }

func (m *Monitor) TargetSkipped() { m.targetsSkipped.Add(1) }

func (m *Monitor) DeliveryFailure() { m.deliveryFailures.Add(1) }

func (m *Monitor) Snapshot() Stats {
	return Stats{
		ActiveSessions:     m.activeSessions.Load(),
		SessionsRegistered: m.sessionsRegistered.Load(),
		SessionsEvicted:    m.sessionsEvicted.Load(),
		EventsDelivered:    m.eventsDelivered.Load(),
		TargetsSkipped:     m.targetsSkipped.Load(),
		DeliveryFailures:   m.deliveryFailures.Load(),
	}
}
