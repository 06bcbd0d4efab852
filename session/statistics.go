package session

import (
	"sync/atomic"
)

// Statistics are the per-session counters. The fields are atomics so that
// observers (e.g. a periodic stats dumper) may read them without taking the
// session lock.
type Statistics struct {
	PicturesBegun atomic.Uint64

	// SurfacesRegistered counts the successful registration calls made
	// with a real surface; idempotent re-registrations count too, target
	// clears do not.
	SurfacesRegistered atomic.Uint64
	EpochsEvicted      atomic.Uint64
	SurfacesEvicted    atomic.Uint64
	ExhaustionFailures atomic.Uint64
}

// StatisticsSnapshot is a plain-value copy of Statistics, safe to marshal.
type StatisticsSnapshot struct {
	PicturesBegun      uint64
	SurfacesRegistered uint64
	EpochsEvicted      uint64
	SurfacesEvicted    uint64
	ExhaustionFailures uint64
}

func (stats *Statistics) Convert() StatisticsSnapshot {
	return StatisticsSnapshot{
		PicturesBegun:      stats.PicturesBegun.Load(),
		SurfacesRegistered: stats.SurfacesRegistered.Load(),
		EpochsEvicted:      stats.EpochsEvicted.Load(),
		SurfacesEvicted:    stats.SurfacesEvicted.Load(),
		ExhaustionFailures: stats.ExhaustionFailures.Load(),
	}
}

// GetStats returns a snapshot of the session counters.
func (s *Session) GetStats() *StatisticsSnapshot {
	snapshot := s.Stats.Convert()
	return &snapshot
}
