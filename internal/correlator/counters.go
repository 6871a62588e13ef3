package correlator

import "sync/atomic"

type CounterSet struct {
	Events       atomic.Uint64
	Skipped      atomic.Uint64
	Duplicates   atomic.Uint64
	Echoes       atomic.Uint64
	Gated        atomic.Uint64
	Instant      atomic.Uint64
	Unattributed atomic.Uint64
	LateResolved atomic.Uint64
}

// Stats is a point-in-time copy of the correlator's counters.
type Stats struct {
	Events       uint64
	Skipped      uint64
	Duplicates   uint64
	Echoes       uint64
	Gated        uint64
	Instant      uint64
	Unattributed uint64
	LateResolved uint64
}

func (cs *CounterSet) Snapshot() Stats {
	return Stats{
		Events:       cs.Events.Load(),
		Skipped:      cs.Skipped.Load(),
		Duplicates:   cs.Duplicates.Load(),
		Echoes:       cs.Echoes.Load(),
		Gated:        cs.Gated.Load(),
		Instant:      cs.Instant.Load(),
		Unattributed: cs.Unattributed.Load(),
		LateResolved: cs.LateResolved.Load(),
	}
}
