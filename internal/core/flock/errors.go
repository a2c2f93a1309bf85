package flock

import (
	"errors"
	"fmt"
)

// Axis identifies which world axis a boundary violation occurred on.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// ErrOutOfWorld is the sentinel matched by errors.Is for any boundary
// violation raised by Step.
var ErrOutOfWorld = errors.New("agent outside of the world")

// BoundaryError reports that a reflective step left an agent outside
// [0, Extent] on Axis even after the single-bounce correction. It is a
// per-agent condition: the simulation as a whole is unaffected and the
// caller decides how to recover (the usual policy is to respawn the agent).
type BoundaryError struct {
	Axis   Axis
	Coord  float64
	Extent float64
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("agent outside of the world: %s = %g not in [0, %g]", e.Axis, e.Coord, e.Extent)
}

// Is makes errors.Is(err, ErrOutOfWorld) match any boundary error.
func (e *BoundaryError) Is(target error) bool {
	return target == ErrOutOfWorld
}
