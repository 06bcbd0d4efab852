// history.go implements the usage history of the table: the sliding window
// of per-picture surface usage sets which decides what is safe to evict.

package rttable

import (
	"context"
	"maps"
	"slices"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/rttable/types"
)

// BeginPicture opens a new usage epoch; it is expected to be called once
// per begin/end picture cycle, before any surface of that cycle is
// registered.
//
// If nothing was registered since the previous call, the current epoch is
// reused instead of stacking empty ones. If the history outgrew MaxHistory,
// exactly one oldest epoch gets evicted to restore the bound.
func (tbl *Table) BeginPicture(ctx context.Context) {
	logger.Tracef(ctx, "BeginPicture")
	defer func() { logger.Tracef(ctx, "/BeginPicture") }()

	if len(tbl.history[0]) == 0 {
		return
	}

	tbl.history = slices.Insert(tbl.history, 0, usageSet{})
	if uint(len(tbl.history)) > tbl.MaxHistory {
		tbl.evictOldestEpoch(ctx)
	}
}

// HistoryLen returns the current length of the usage history, in epochs.
// It is at least 1: the current epoch always exists.
func (tbl *Table) HistoryLen() int {
	return len(tbl.history)
}

// evictOldestEpoch drops the oldest usage epoch and unregisters every
// surface of it that no retained epoch still references. It is a unit of
// "evict one epoch worth of now-unused surfaces", not a guarantee that any
// slot frees up: the epoch may consist solely of surfaces that are still
// live elsewhere in the window (e.g. long-term references).
func (tbl *Table) evictOldestEpoch(ctx context.Context) {
	assert(ctx, len(tbl.history) > 1, "the current epoch is not evictable")

	oldest := tbl.history[len(tbl.history)-1]
	tbl.history = tbl.history[:len(tbl.history)-1]

	var evicted []types.SurfaceID
	for _, id := range slices.Sorted(maps.Keys(oldest)) {
		if tbl.isLive(id) {
			continue
		}
		if !tbl.IsRegistered(id) {
			// a usage mark left behind by a failed registration
			continue
		}
		err := tbl.Unregister(ctx, id)
		assert(ctx, err == nil, err)
		evicted = append(evicted, id)
	}

	logger.Debugf(ctx, "evicted the oldest of %d epochs, unregistered %d surface(s): %v", len(tbl.history)+1, len(evicted), evicted)
	if tbl.OnEvict != nil {
		tbl.OnEvict(ctx, evicted)
	}
}

// isLive reports whether any retained epoch references the surface.
func (tbl *Table) isLive(id types.SurfaceID) bool {
	for _, epoch := range tbl.history {
		if _, ok := epoch[id]; ok {
			return true
		}
	}
	return false
}
