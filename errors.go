// errors.go defines the error types of the rttable package.

package rttable

import (
	"fmt"

	"github.com/xaionaro-go/rttable/types"
)

type ErrInvalidSurfaceID struct{}

func (ErrInvalidSurfaceID) Error() string {
	return "an invalid surface ID was provided where a real surface is required"
}

type ErrInvalidCapacity struct {
	Capacity uint
}

func (e ErrInvalidCapacity) Error() string {
	return fmt.Sprintf(
		"capacity %d is not representable: expected a value within [1, %d]",
		e.Capacity, types.MaxTableCapacity,
	)
}

type ErrNotRegistered struct {
	Surface types.SurfaceID
}

func (e ErrNotRegistered) Error() string {
	return fmt.Sprintf("%s is not registered in the render target table", e.Surface)
}

type ErrNoInactiveTarget struct{}

func (ErrNoInactiveTarget) Error() string {
	return "no inactive render target to evict"
}
