// Package flock implements the per-agent kinematics of the schooling
// simulation: composite steering accelerations, Stokes drag, explicit Euler
// integration with a unit time step, and boundary resolution against the
// edges of the world.
//
// Agents are immutable per tick. Step and WrappedStep never mutate the
// receiver or the neighbor slice; they return a fresh Agent computed from
// the caller's snapshot of the population. Given identical inputs they are
// bit-for-bit deterministic.
package flock

import (
	"math"

	"github.com/google/uuid"

	"github.com/flocksim/flocksim/internal/core/geom"
)

// Traits are the behavior weights of an agent. They are fixed at
// construction and carried unchanged onto every derived next-state agent.
// In practice they are uniform across a population, but keeping them on the
// agent leaves room for heterogeneous flocks.
type Traits struct {
	Cohesion   float64 `json:"cohesion" yaml:"cohesion"`
	Separation float64 `json:"separation" yaml:"separation"`
	Alignment  float64 `json:"alignment" yaml:"alignment"`
	Attraction float64 `json:"attraction" yaml:"attraction"`
}

// Agent is one simulated flocking entity. The zero value is not usable;
// construct agents with New.
type Agent struct {
	ID     uuid.UUID   `json:"id"`
	Pos    geom.Point  `json:"pos"`
	Vel    geom.Vector `json:"vel"`
	Traits Traits      `json:"traits"`

	// Edges is the maximum extent of the world; the valid region is
	// [0, Edges.X] x [0, Edges.Y].
	Edges geom.Point `json:"-"`
}

// New returns a fully specified agent with a fresh identity.
func New(pos geom.Point, vel geom.Vector, traits Traits, edges geom.Point) Agent {
	return Agent{
		ID:     uuid.New(),
		Pos:    pos,
		Vel:    vel,
		Traits: traits,
		Edges:  edges,
	}
}

// Step advances the agent one tick assuming the edges of the world are
// solid walls.
//
// The new velocity is the current velocity plus the composite steering
// acceleration and the drag force; the new position follows from the new
// velocity (dt = 1). A wall crossing is resolved as a single elastic
// bounce per axis: the velocity component flips sign and the coordinate is
// reflected about the violated boundary. The single-bounce correction is an
// approximation; if the corrected position still lies outside the world on
// either axis, Step returns a *BoundaryError and no agent. Recovery policy
// belongs to the caller.
//
// others must not contain the agent itself.
func (a Agent) Step(others []Agent, target geom.Point) (Agent, error) {
	vel := a.Vel.Add(a.compositeAcceleration(others, target)).Add(stokesDrag(a.Vel))
	pos := a.Pos.Add(vel)

	// A posteriori elastic collision with the walls. distToEdge > edge
	// means the coordinate went negative past zero; distToEdge < 0 means
	// it overshot the far edge.
	if dist := a.Edges.X - pos.X; dist > a.Edges.X || dist < 0 {
		vel.X = -vel.X
		if dist < 0 {
			pos.X += 2 * dist
		} else {
			pos.X = math.Abs(pos.X)
		}
	}
	if dist := a.Edges.Y - pos.Y; dist > a.Edges.Y || dist < 0 {
		vel.Y = -vel.Y
		if dist < 0 {
			pos.Y += 2 * dist
		} else {
			pos.Y = math.Abs(pos.Y)
		}
	}

	// A single bounce is not enough at high speed or exactly on an edge.
	// Never tolerate an agent outside the world.
	if pos.X > a.Edges.X || pos.X < 0 {
		return Agent{}, &BoundaryError{Axis: AxisX, Coord: pos.X, Extent: a.Edges.X}
	}
	if pos.Y > a.Edges.Y || pos.Y < 0 {
		return Agent{}, &BoundaryError{Axis: AxisY, Coord: pos.Y, Extent: a.Edges.Y}
	}

	next := a
	next.Pos = pos
	next.Vel = vel
	return next, nil
}

// WrappedStep advances the agent one tick on a toroidal world: coordinates
// leaving [0, max) re-enter from the opposite edge. The correction is
// applied once per axis, which assumes the velocity magnitude never exceeds
// one world width per tick. WrappedStep never fails.
func (a Agent) WrappedStep(others []Agent, target geom.Point, maxX, maxY float64) Agent {
	vel := a.Vel.Add(a.compositeAcceleration(others, target)).Add(stokesDrag(a.Vel))
	pos := a.Pos.Add(vel)

	if pos.X > maxX {
		pos.X -= maxX
	} else if pos.X < 0 {
		pos.X += maxX
	}
	if pos.Y > maxY {
		pos.Y -= maxY
	} else if pos.Y < 0 {
		pos.Y += maxY
	}

	next := a
	next.Pos = pos
	next.Vel = vel
	return next
}

// Position returns the agent's current coordinates.
func (a Agent) Position() geom.Point { return a.Pos }

// Velocity returns the agent's current velocity vector.
func (a Agent) Velocity() geom.Vector { return a.Vel }
