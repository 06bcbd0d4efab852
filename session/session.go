// Package session wraps a render target table into a begin/render/end
// picture session controller: it serializes the access to the table (the
// table itself is deliberately lock-free and single-threaded) and keeps
// per-session statistics.
//
// One Session owns exactly one Table; nothing here is process-wide.
package session

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"

	"github.com/xaionaro-go/rttable"
	"github.com/xaionaro-go/rttable/types"
)

// Config is the configuration of a Session.
type Config struct {
	// Capacity is the amount of render target slots.
	Capacity uint

	// MaxHistory (if set) overrides rttable.DefaultMaxHistory. Tune it to
	// the async depth of the consumer: it is the amount of begin/end
	// picture cycles a surface survives without being referenced.
	MaxHistory typing.Optional[uint]
}

// Session drives one render target table through a processing session.
type Session struct {
	Locker xsync.Mutex
	Table  rttable.Table
	Stats  Statistics

	closed bool
}

// New returns a Session with an initialized table.
func New(ctx context.Context, cfg Config) (*Session, error) {
	s := &Session{}
	if cfg.MaxHistory.IsSet() {
		s.Table.MaxHistory = cfg.MaxHistory.Get()
	}
	if err := s.Table.Init(ctx, cfg.Capacity); err != nil {
		return nil, fmt.Errorf("unable to initialize the render target table: %w", err)
	}
	s.Table.OnEvict = func(ctx context.Context, evicted []types.SurfaceID) {
		s.Stats.EpochsEvicted.Add(1)
		s.Stats.SurfacesEvicted.Add(uint64(len(evicted)))
	}
	return s, nil
}

// BeginPicture signals a picture boundary: everything registered from now
// on (until the next BeginPicture) counts as used by the new picture.
func (s *Session) BeginPicture(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "BeginPicture")
	defer func() { logger.Debugf(ctx, "/BeginPicture: %v", _err) }()
	return xsync.DoA1R1(ctx, &s.Locker, s.beginPictureLocked, ctx)
}

func (s *Session) beginPictureLocked(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed{}
	}
	s.Table.BeginPicture(ctx)
	s.Stats.PicturesBegun.Add(1)
	logger.Tracef(ctx, "registered surfaces: %s", spew.Sdump(s.Table.RegisteredSurfaces()))
	return nil
}

// UseSurface registers a surface as participating in the current picture
// (as a reference, a loop filter input, or anything else that needs a
// slot).
func (s *Session) UseSurface(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "UseSurface(%s)", id)
	defer func() { logger.Tracef(ctx, "/UseSurface(%s): %v", id, _err) }()
	return xsync.DoA2R1(ctx, &s.Locker, s.useSurfaceLocked, ctx, id)
}

func (s *Session) useSurfaceLocked(ctx context.Context, id types.SurfaceID) error {
	if s.closed {
		return ErrSessionClosed{}
	}
	err := s.Table.Register(ctx, id)
	s.accountRegistration(id, err)
	return err
}

// SetTarget designates the surface being encoded/decoded right now.
func (s *Session) SetTarget(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "SetTarget(%s)", id)
	defer func() { logger.Tracef(ctx, "/SetTarget(%s): %v", id, _err) }()
	return xsync.DoR1(ctx, &s.Locker, func() error {
		if s.closed {
			return ErrSessionClosed{}
		}
		err := s.Table.SetCurrentTarget(ctx, id)
		s.accountRegistration(id, err)
		return err
	})
}

// SetReconTarget designates the surface that receives the reconstructed
// frame.
func (s *Session) SetReconTarget(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "SetReconTarget(%s)", id)
	defer func() { logger.Tracef(ctx, "/SetReconTarget(%s): %v", id, _err) }()
	return xsync.DoR1(ctx, &s.Locker, func() error {
		if s.closed {
			return ErrSessionClosed{}
		}
		err := s.Table.SetReconTarget(ctx, id)
		s.accountRegistration(id, err)
		return err
	})
}

func (s *Session) accountRegistration(id types.SurfaceID, err error) {
	switch err.(type) {
	case nil:
		// clearing a target registers nothing, so it is not counted
		if id.IsValid() {
			s.Stats.SurfacesRegistered.Add(1)
		}
	case rttable.ErrNoInactiveTarget:
		s.Stats.ExhaustionFailures.Add(1)
	}
}

// Targets returns the current target and the recon target (either may be
// the invalid sentinel).
func (s *Session) Targets(ctx context.Context) (types.SurfaceID, types.SurfaceID) {
	return xsync.DoR2(ctx, &s.Locker, func() (types.SurfaceID, types.SurfaceID) {
		return s.Table.GetCurrentTarget(), s.Table.GetReconTarget()
	})
}

// SlotOf translates a surface ID into the slot index consumed by the
// hardware-facing reference list construction.
func (s *Session) SlotOf(ctx context.Context, id types.SurfaceID) types.SlotIndex {
	return xsync.DoA1R1(ctx, &s.Locker, s.Table.SlotOf, id)
}

// SurfaceAt translates a slot index back into the surface ID.
func (s *Session) SurfaceAt(ctx context.Context, slot types.SlotIndex) types.SurfaceID {
	return xsync.DoA1R1(ctx, &s.Locker, s.Table.SurfaceAt, slot)
}

// RegisteredSurfaces returns the sorted snapshot of registered surfaces.
func (s *Session) RegisteredSurfaces(ctx context.Context) []types.SurfaceID {
	return xsync.DoR1(ctx, &s.Locker, s.Table.RegisteredSurfaces)
}

// Count returns the amount of registered surfaces.
func (s *Session) Count(ctx context.Context) int {
	return xsync.DoR1(ctx, &s.Locker, s.Table.Count)
}

// Reset re-initializes the table for a new capacity, dropping every
// registration, both roles and the whole usage history. Statistics are
// kept: they are per-session, not per-reset.
func (s *Session) Reset(ctx context.Context, capacity uint) (_err error) {
	logger.Debugf(ctx, "Reset(%d)", capacity)
	defer func() { logger.Debugf(ctx, "/Reset(%d): %v", capacity, _err) }()
	return xsync.DoR1(ctx, &s.Locker, func() error {
		if s.closed {
			return ErrSessionClosed{}
		}
		return s.Table.Init(ctx, capacity)
	})
}

// Close marks the session as ended; every subsequent mutation fails with
// ErrSessionClosed. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return xsync.DoR1(ctx, &s.Locker, func() error {
		s.closed = true
		return nil
	})
}
