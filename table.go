// Package rttable implements the render target table: a bounded registry
// that assigns compact slot indices to externally owned surface IDs and
// reclaims the slots of surfaces that aged out of the recent usage window.
//
// A Table instance belongs to exactly one processing session and performs
// no internal locking; see the `session` package for a serialized owner.
package rttable

import (
	"context"
	"maps"
	"slices"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rttable/types"
)

// DefaultMaxHistory is the default bound on the usage history length, in
// begin/end picture cycles. The value to pick depends on the async depth of
// the consumer; this default matches the deepest pipelining we serve.
const DefaultMaxHistory = 20

type usageSet = map[types.SurfaceID]struct{}

// Table tracks which surfaces participate in the current processing session
// and maps each of them to a unique slot index (the value consumed by
// reference picture management). It also remembers which surfaces were
// touched during each of the last MaxHistory begin/end picture cycles, and
// uses that history to decide which registrations are safe to evict when
// the slots run out.
//
// The zero value is not usable: call Init (or construct via New) first.
// All methods assume strictly sequential access.
type Table struct {
	// MaxHistory bounds the length of the usage history. It is consulted
	// by BeginPicture; changing it mid-session only takes effect on the
	// next picture boundary. Zero means DefaultMaxHistory (resolved by
	// Init).
	MaxHistory uint

	// OnEvict (if set) is invoked whenever an aged-out epoch gets evicted,
	// with the surfaces that were unregistered as the result. It is invoked
	// even if the set is empty (an epoch may contain only surfaces that are
	// still in use elsewhere in the window).
	OnEvict func(ctx context.Context, evicted []types.SurfaceID)

	capacity      uint
	currentTarget types.SurfaceID
	reconTarget   types.SurfaceID
	slots         map[types.SurfaceID]types.SlotIndex
	freeSlots     []types.SlotIndex
	history       []usageSet // front (index 0) is the current epoch
}

// New returns a Table initialized for `capacity` slots.
func New(ctx context.Context, capacity uint) (*Table, error) {
	tbl := &Table{}
	if err := tbl.Init(ctx, capacity); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Init resets the table to an empty state with `capacity` slots. It is
// re-callable: a session reset is just another Init.
//
// The capacity must fit the one-byte slot index minus its sentinel, so at
// most types.MaxTableCapacity.
func (tbl *Table) Init(ctx context.Context, capacity uint) (_err error) {
	logger.Debugf(ctx, "Init(%d)", capacity)
	defer func() { logger.Debugf(ctx, "/Init(%d): %v", capacity, _err) }()

	if capacity == 0 || capacity > types.MaxTableCapacity {
		return ErrInvalidCapacity{Capacity: capacity}
	}
	if tbl.MaxHistory == 0 {
		tbl.MaxHistory = DefaultMaxHistory
	}

	tbl.capacity = capacity
	tbl.currentTarget = types.InvalidSurfaceID
	tbl.reconTarget = types.InvalidSurfaceID
	tbl.slots = make(map[types.SurfaceID]types.SlotIndex, capacity)
	tbl.freeSlots = make([]types.SlotIndex, 0, capacity)
	tbl.history = []usageSet{{}}
	for i := uint(0); i < capacity; i++ {
		tbl.freeSlots = append(tbl.freeSlots, types.SlotIndex(i))
	}
	return nil
}

// Capacity returns the total amount of slots (free and assigned).
func (tbl *Table) Capacity() uint {
	return tbl.capacity
}

// Register marks the surface as used in the current picture and assigns a
// slot to it, unless it already has one (registration is idempotent: the
// same surface keeps the same slot for as long as it stays registered).
//
// If no slot is free, the oldest usage epochs get evicted one by one until
// a slot frees up. When even that does not help (every known surface was
// touched within the retained window), ErrNoInactiveTarget is returned and
// the table is left unchanged except for the usage mark.
func (tbl *Table) Register(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "Register(%s)", id)
	defer func() { logger.Tracef(ctx, "/Register(%s): %v", id, _err) }()

	if !id.IsValid() {
		return ErrInvalidSurfaceID{}
	}

	// the surface participates in the latest begin/end picture cycle:
	// as a target, recon, reference frame, or in loop filtering
	tbl.history[0][id] = struct{}{}

	if _, ok := tbl.slots[id]; ok {
		return nil
	}

	for len(tbl.freeSlots) == 0 && len(tbl.history) > 1 {
		tbl.evictOldestEpoch(ctx)
	}
	if len(tbl.freeSlots) == 0 {
		return ErrNoInactiveTarget{}
	}

	slot := tbl.freeSlots[len(tbl.freeSlots)-1]
	tbl.freeSlots = tbl.freeSlots[:len(tbl.freeSlots)-1]
	tbl.slots[id] = slot
	logger.Debugf(ctx, "assigned %s to %s", slot, id)
	return nil
}

// Unregister removes the surface from the table and from every retained
// usage epoch, and returns its slot to the free pool.
//
// If the surface holds the current target or the recon target role, the
// role is reset to the invalid sentinel: the role getters never report a
// surface that is not registered anymore.
func (tbl *Table) Unregister(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "Unregister(%s)", id)
	defer func() { logger.Tracef(ctx, "/Unregister(%s): %v", id, _err) }()

	slot, ok := tbl.slots[id]
	if !ok {
		return ErrNotRegistered{Surface: id}
	}

	for _, epoch := range tbl.history {
		delete(epoch, id)
	}

	delete(tbl.slots, id)
	tbl.freeSlots = append(tbl.freeSlots, slot)

	if tbl.currentTarget == id {
		tbl.currentTarget = types.InvalidSurfaceID
	}
	if tbl.reconTarget == id {
		tbl.reconTarget = types.InvalidSurfaceID
	}
	return nil
}

// IsRegistered reports whether the surface currently has a slot assigned.
func (tbl *Table) IsRegistered(id types.SurfaceID) bool {
	_, ok := tbl.slots[id]
	return ok
}

// Count returns the amount of registered surfaces.
func (tbl *Table) Count() int {
	return len(tbl.slots)
}

// RegisteredSurfaces returns a snapshot of the registered surface IDs,
// sorted ascending (so that reference list builders iterating it produce
// the same result on every call).
func (tbl *Table) RegisteredSurfaces() []types.SurfaceID {
	return slices.Sorted(maps.Keys(tbl.slots))
}

// SlotOf returns the slot assigned to the surface, or the invalid sentinel
// if the surface is not registered.
func (tbl *Table) SlotOf(id types.SurfaceID) types.SlotIndex {
	slot, ok := tbl.slots[id]
	if !ok {
		return types.InvalidSlotIndex
	}
	return slot
}

// SurfaceAt returns the surface a slot is assigned to, or the invalid
// sentinel if the slot is free.
//
// This is a linear scan: the forward map is the single authoritative
// structure, and the reverse query is rare enough to not warrant a second
// map that could drift out of sync.
func (tbl *Table) SurfaceAt(slot types.SlotIndex) types.SurfaceID {
	for id, s := range tbl.slots {
		if s == slot {
			return id
		}
	}
	return types.InvalidSurfaceID
}

// SetCurrentTarget designates the surface as the one currently being
// processed, registering it first if needed. The invalid sentinel is
// accepted and just clears the designation.
func (tbl *Table) SetCurrentTarget(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "SetCurrentTarget(%s)", id)
	defer func() { logger.Tracef(ctx, "/SetCurrentTarget(%s): %v", id, _err) }()

	if id.IsValid() {
		if err := tbl.Register(ctx, id); err != nil {
			return err
		}
	}
	tbl.currentTarget = id
	return nil
}

// GetCurrentTarget returns the current target surface, or the invalid
// sentinel if there is none.
func (tbl *Table) GetCurrentTarget() types.SurfaceID {
	return tbl.currentTarget
}

// SetReconTarget designates the surface as the one that is to receive the
// reconstructed frame, registering it first. Unlike SetCurrentTarget, the
// invalid sentinel is not accepted here: a reconstruction always has a
// destination.
func (tbl *Table) SetReconTarget(ctx context.Context, id types.SurfaceID) (_err error) {
	logger.Tracef(ctx, "SetReconTarget(%s)", id)
	defer func() { logger.Tracef(ctx, "/SetReconTarget(%s): %v", id, _err) }()

	if err := tbl.Register(ctx, id); err != nil {
		return err
	}
	tbl.reconTarget = id
	return nil
}

// GetReconTarget returns the reconstructed frame target surface, or the
// invalid sentinel if there is none.
func (tbl *Table) GetReconTarget() types.SurfaceID {
	return tbl.reconTarget
}
