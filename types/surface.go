// Package types contains the scalar types shared between the render target
// table and its consumers.
package types

import (
	"fmt"
)

// SurfaceID is an opaque identifier of a surface, issued by whoever owns the
// surfaces (the table never allocates or frees them, it only tracks
// associations).
type SurfaceID uint32

// InvalidSurfaceID is the "no surface" sentinel.
const InvalidSurfaceID = ^SurfaceID(0)

// IsValid reports whether the SurfaceID is not the sentinel.
func (id SurfaceID) IsValid() bool {
	return id != InvalidSurfaceID
}

func (id SurfaceID) String() string {
	if !id.IsValid() {
		return "surface(invalid)"
	}
	return fmt.Sprintf("surface(%d)", uint32(id))
}

// SlotIndex is the compact index assigned to a registered surface. It is the
// value hardware-facing reference list construction consumes, which is why it
// is deliberately one byte wide.
type SlotIndex uint8

// InvalidSlotIndex is the "no slot" sentinel.
const InvalidSlotIndex = ^SlotIndex(0)

// MaxTableCapacity is the highest amount of slots a table may hold: the
// one-byte SlotIndex fits 256 values and one of them is the sentinel.
const MaxTableCapacity = 255

// IsValid reports whether the SlotIndex is not the sentinel.
func (idx SlotIndex) IsValid() bool {
	return idx != InvalidSlotIndex
}

func (idx SlotIndex) String() string {
	if !idx.IsValid() {
		return "slot(invalid)"
	}
	return fmt.Sprintf("slot(%d)", uint8(idx))
}
