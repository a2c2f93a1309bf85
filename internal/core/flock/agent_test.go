package flock

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flocksim/flocksim/internal/core/geom"
)

var testEdges = geom.Point{X: 1200, Y: 700}

func testAgent(pos geom.Point, vel geom.Vector, traits Traits) Agent {
	return New(pos, vel, traits, testEdges)
}

func TestStokesDrag(t *testing.T) {
	t.Run("ZeroVelocityZeroDrag", func(t *testing.T) {
		force := stokesDrag(geom.Vector{})
		require.True(t, force.IsZero())
		require.False(t, math.IsNaN(force.X))
	})

	t.Run("OpposesMotion", func(t *testing.T) {
		vel := geom.Vector{X: 3, Y: -4}
		force := stokesDrag(vel)

		require.Negative(t, force.Dot(vel))
		require.InDelta(t, dragCoefficient*vel.Len(), force.Len(), 1e-12)
		// Parallel to velocity: cross product vanishes.
		require.InDelta(t, 0, force.X*vel.Y-force.Y*vel.X, 1e-12)
	})
}

func TestPerception(t *testing.T) {
	t.Run("ClampAtUnitDistance", func(t *testing.T) {
		require.Equal(t, 1.0, perception(1))
		require.Equal(t, 1.0, perception(0.5)) // closer than 1 saturates
	})

	t.Run("FallOffExponent", func(t *testing.T) {
		require.InDelta(t, math.Pow(10, -2.75), perception(10), 1e-15)
	})

	t.Run("Monotonic", func(t *testing.T) {
		prev := perception(1)
		for d := 2.0; d <= 64; d *= 2 {
			cur := perception(d)
			require.Less(t, cur, prev)
			prev = cur
		}
	})
}

func TestEmptyNeighborSet(t *testing.T) {
	a := testAgent(geom.Point{X: 100, Y: 100}, geom.Vector{X: 1, Y: 1}, Traits{})

	t.Run("CohesionIsZero", func(t *testing.T) {
		acc := a.accelCohesion(nil)
		require.True(t, acc.IsZero())
	})

	t.Run("AlignmentIsZero", func(t *testing.T) {
		acc := a.accelAlignment(nil)
		require.True(t, acc.IsZero())
	})

	t.Run("SeparationIsZero", func(t *testing.T) {
		acc := a.accelSeparation(nil)
		require.True(t, acc.IsZero())
	})

	t.Run("TowardIsDefined", func(t *testing.T) {
		acc := a.accelToward(geom.Point{X: 200, Y: 100})
		require.Positive(t, acc.X)
		require.InDelta(t, 0, acc.Y, 1e-12)

		// Sitting exactly on the target pulls nowhere.
		acc = a.accelToward(a.Pos)
		require.True(t, acc.IsZero())
		require.False(t, math.IsNaN(acc.X))
	})
}

func TestSeparation(t *testing.T) {
	t.Run("PointsAwayFromNeighbor", func(t *testing.T) {
		a := testAgent(geom.Point{X: 100, Y: 100}, geom.Vector{}, Traits{})
		n := testAgent(geom.Point{X: 110, Y: 100}, geom.Vector{}, Traits{})

		acc := a.accelSeparation([]Agent{n})
		require.Negative(t, acc.X)
		require.InDelta(t, 0, acc.Y, 1e-12)
		// At d = 10 the repulsion is exactly unit strength.
		require.InDelta(t, 1.0, acc.Len(), 1e-12)
	})

	t.Run("MonotonicDecayWithDistance", func(t *testing.T) {
		a := testAgent(geom.Point{X: 0, Y: 0}, geom.Vector{}, Traits{})
		prev := math.Inf(1)
		for d := 5.0; d <= 320; d *= 2 {
			n := testAgent(geom.Point{X: d, Y: 0}, geom.Vector{}, Traits{})
			mag := a.accelSeparation([]Agent{n}).Len()
			require.Less(t, mag, prev, "distance %g", d)
			prev = mag
		}
	})

	t.Run("CoincidentNeighborIgnored", func(t *testing.T) {
		a := testAgent(geom.Point{X: 50, Y: 50}, geom.Vector{}, Traits{})
		n := testAgent(geom.Point{X: 50, Y: 50}, geom.Vector{}, Traits{})

		acc := a.accelSeparation([]Agent{n})
		require.False(t, math.IsNaN(acc.X))
		require.False(t, math.IsNaN(acc.Y))
		require.True(t, acc.IsZero())
	})
}

func TestCohesionAndAlignment(t *testing.T) {
	t.Run("CohesionPullsTowardCentroid", func(t *testing.T) {
		a := testAgent(geom.Point{X: 100, Y: 100}, geom.Vector{}, Traits{})
		others := []Agent{
			testAgent(geom.Point{X: 200, Y: 100}, geom.Vector{}, Traits{}),
			testAgent(geom.Point{X: 200, Y: 120}, geom.Vector{}, Traits{}),
		}

		acc := a.accelCohesion(others)
		require.Positive(t, acc.X)
		// Magnitude equals the distance to the weighted centroid, so it
		// cannot exceed the distance to the farthest neighbor.
		require.LessOrEqual(t, acc.Len(), a.Pos.Dist(others[1].Pos)+1e-9)
	})

	t.Run("AlignmentClosesVelocityGap", func(t *testing.T) {
		a := testAgent(geom.Point{X: 100, Y: 100}, geom.Vector{X: 2, Y: 0}, Traits{})
		n := testAgent(geom.Point{X: 101, Y: 100}, geom.Vector{X: 2, Y: 0}, Traits{})

		// Same heading and speed: nothing to correct.
		require.True(t, a.accelAlignment([]Agent{n}).IsZero())

		// Neighbor moving differently: steer toward its velocity.
		n.Vel = geom.Vector{X: 2, Y: 4}
		acc := a.accelAlignment([]Agent{n})
		require.InDelta(t, 0, acc.X, 1e-12)
		require.Positive(t, acc.Y)
	})
}

func TestStepReflectiveBoundary(t *testing.T) {
	t.Run("BouncesOffRightWall", func(t *testing.T) {
		a := testAgent(geom.Point{X: testEdges.X - 1, Y: 350}, geom.Vector{X: 3, Y: 0}, Traits{})

		next, err := a.Step(nil, geom.Point{X: 600, Y: 350})
		require.NoError(t, err)
		require.Negative(t, next.Vel.X)
		require.GreaterOrEqual(t, next.Pos.X, 0.0)
		require.LessOrEqual(t, next.Pos.X, testEdges.X)
	})

	t.Run("BouncesOffLeftWall", func(t *testing.T) {
		a := testAgent(geom.Point{X: 1, Y: 350}, geom.Vector{X: -3, Y: 0}, Traits{})

		next, err := a.Step(nil, geom.Point{X: 600, Y: 350})
		require.NoError(t, err)
		require.Positive(t, next.Vel.X)
		require.GreaterOrEqual(t, next.Pos.X, 0.0)
		require.LessOrEqual(t, next.Pos.X, testEdges.X)
	})

	t.Run("FailsWhenBounceCannotRecover", func(t *testing.T) {
		// Faster than the world is wide: one bounce lands outside again.
		a := testAgent(geom.Point{X: 600, Y: 350}, geom.Vector{X: 3 * testEdges.X, Y: 0}, Traits{})

		_, err := a.Step(nil, geom.Point{X: 600, Y: 350})
		require.Error(t, err)
		require.ErrorIs(t, err, ErrOutOfWorld)

		var be *BoundaryError
		require.True(t, errors.As(err, &be))
		require.Equal(t, AxisX, be.Axis)
	})

	t.Run("PreservesIdentityAndTraits", func(t *testing.T) {
		traits := Traits{Cohesion: 0.01, Separation: 0.2, Alignment: 0.1, Attraction: 0.5}
		a := testAgent(geom.Point{X: 600, Y: 350}, geom.Vector{X: 1, Y: 1}, traits)

		next, err := a.Step(nil, geom.Point{X: 0, Y: 0})
		require.NoError(t, err)
		require.Equal(t, a.ID, next.ID)
		require.Equal(t, traits, next.Traits)
		require.Equal(t, a.Edges, next.Edges)
	})
}

func TestWrappedStep(t *testing.T) {
	t.Run("WrapsPastRightEdge", func(t *testing.T) {
		a := testAgent(geom.Point{X: testEdges.X - 1, Y: 350}, geom.Vector{X: 3, Y: 0}, Traits{})

		next := a.WrappedStep(nil, geom.Point{X: 600, Y: 350}, testEdges.X, testEdges.Y)
		require.GreaterOrEqual(t, next.Pos.X, 0.0)
		require.Less(t, next.Pos.X, testEdges.X)
		// Velocity keeps its sign: wrapping is a teleport, not a bounce.
		require.Positive(t, next.Vel.X)
	})

	t.Run("WrapsPastLeftEdge", func(t *testing.T) {
		a := testAgent(geom.Point{X: 1, Y: 350}, geom.Vector{X: -4, Y: 0}, Traits{})

		next := a.WrappedStep(nil, geom.Point{X: 600, Y: 350}, testEdges.X, testEdges.Y)
		require.GreaterOrEqual(t, next.Pos.X, 0.0)
		require.Less(t, next.Pos.X, testEdges.X)
	})
}

func TestSymmetricConvergenceUnderAttraction(t *testing.T) {
	center := geom.Point{X: 600, Y: 350}
	traits := Traits{Attraction: 1} // cohesion/separation/alignment off

	left := testAgent(geom.Point{X: 500, Y: 350}, geom.Vector{X: 3, Y: 0}, traits)
	right := testAgent(geom.Point{X: 700, Y: 350}, geom.Vector{X: -3, Y: 0}, traits)

	nextLeft, err := left.Step([]Agent{right}, center)
	require.NoError(t, err)
	nextRight, err := right.Step([]Agent{left}, center)
	require.NoError(t, err)

	require.Less(t, nextLeft.Pos.Dist(center), left.Pos.Dist(center))
	require.Less(t, nextRight.Pos.Dist(center), right.Pos.Dist(center))
}

func TestStepDeterminism(t *testing.T) {
	traits := Traits{Cohesion: 0.01, Separation: 0.5, Alignment: 0.05, Attraction: 0.3}
	a := testAgent(geom.Point{X: 420, Y: 260}, geom.Vector{X: 1.5, Y: -0.75}, traits)
	others := []Agent{
		testAgent(geom.Point{X: 400, Y: 250}, geom.Vector{X: 2, Y: 0}, traits),
		testAgent(geom.Point{X: 450, Y: 280}, geom.Vector{X: -1, Y: 1}, traits),
		testAgent(geom.Point{X: 430, Y: 240}, geom.Vector{X: 0.5, Y: 0.5}, traits),
	}
	target := geom.Point{X: 100, Y: 100}

	first, err := a.Step(others, target)
	require.NoError(t, err)
	second, err := a.Step(others, target)
	require.NoError(t, err)
	require.Equal(t, first, second)

	w1 := a.WrappedStep(others, target, testEdges.X, testEdges.Y)
	w2 := a.WrappedStep(others, target, testEdges.X, testEdges.Y)
	require.Equal(t, w1, w2)
}
