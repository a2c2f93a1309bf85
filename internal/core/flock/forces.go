package flock

import (
	"math"

	"github.com/flocksim/flocksim/internal/core/geom"
)

const (
	// perceptionFallOff attenuates a neighbor's influence with distance as
	// min(1, 1/d^2.75). The exponent sits between inverse-square (sound and
	// light in air, birds) and inverse-cube (water, fish) propagation.
	perceptionFallOff = 2.75

	// collisionDist is the squared personal-space radius: 10 units per
	// agent, so r = 10 gives r² = 100 and unit repulsion at that range.
	collisionDist = 100.0

	// targetPerceptionDecay controls how fast attraction to the target
	// fades with distance. Smaller means agents notice a distant target
	// more strongly.
	targetPerceptionDecay = 0.1

	// dragCoefficient folds medium density and the agent's cross-section
	// into a single Stokes drag constant (laminar flow assumed).
	dragCoefficient = 0.005
)

// compositeAcceleration sums the four steering contributions, each scaled
// by the agent's trait weight.
func (a Agent) compositeAcceleration(others []Agent, target geom.Point) geom.Vector {
	var total geom.Vector
	total = total.Add(a.accelCohesion(others).Scale(a.Traits.Cohesion))
	total = total.Add(a.accelSeparation(others).Scale(a.Traits.Separation))
	total = total.Add(a.accelAlignment(others).Scale(a.Traits.Alignment))
	total = total.Add(a.accelToward(target).Scale(a.Traits.Attraction))
	return total
}

// perception returns the distance-attenuated weight of a neighbor at
// distance d. A coincident neighbor saturates at 1 via the clamp.
func perception(d float64) float64 {
	return math.Min(1, 1/math.Pow(d, perceptionFallOff))
}

// accelCohesion accelerates toward the perception-weighted centroid of the
// neighbors. The acceleration points at the centroid with magnitude equal
// to the distance to it, i.e. it is exactly the displacement vector from
// the agent's position to the centroid.
//
// An empty neighbor set contributes nothing.
func (a Agent) accelCohesion(others []Agent) geom.Vector {
	if len(others) == 0 {
		return geom.Vector{}
	}

	var weighted geom.Vector
	var weightTotal float64
	for i := range others {
		w := perception(a.Pos.Dist(others[i].Pos))
		weighted = weighted.Add(others[i].Pos.Sub(geom.Point{}).Scale(w))
		weightTotal += w
	}
	centroid := geom.Point{}.Add(weighted.Scale(1 / weightTotal))

	return centroid.Sub(a.Pos)
}

// accelSeparation accelerates away from every neighbor with magnitude
// collisionDist/d². There is no perception fall-off here: distant agents
// barely matter through the inverse square alone, while very close ones
// must always be avoided at full strength.
func (a Agent) accelSeparation(others []Agent) geom.Vector {
	var acc geom.Vector
	for i := range others {
		away := a.Pos.Sub(others[i].Pos)
		d := away.Len()
		if d == 0 {
			// Coincident agents have no meaningful away direction.
			continue
		}
		acc = acc.Add(away.Unit().Scale(collisionDist / (d * d)))
	}
	return acc
}

// accelAlignment steers toward the perception-weighted average velocity of
// the neighbors: the acceleration closes the gap between the agent's own
// velocity and the local consensus heading and speed.
//
// An empty neighbor set contributes nothing.
func (a Agent) accelAlignment(others []Agent) geom.Vector {
	if len(others) == 0 {
		return geom.Vector{}
	}

	var common geom.Vector
	var weightTotal float64
	for i := range others {
		w := perception(a.Pos.Dist(others[i].Pos))
		common = common.Add(others[i].Vel.Scale(w))
		weightTotal += w
	}
	common = common.Scale(1 / weightTotal)

	return common.Sub(a.Vel)
}

// accelToward accelerates toward the target point with magnitude
// 1/(1 + decay*d): stronger when close, but never fading to zero, so even a
// distant target always pulls. An agent sitting exactly on the target feels
// no pull.
func (a Agent) accelToward(target geom.Point) geom.Vector {
	toTarget := target.Sub(a.Pos)
	magnitude := 1 / (1 + targetPerceptionDecay*toTarget.Len())
	return toTarget.Unit().Scale(magnitude)
}

// stokesDrag returns the viscous drag force F = -C_d * v opposing the
// current velocity. Zero velocity short-circuits to exactly zero force so
// no degenerate direction is ever computed.
func stokesDrag(vel geom.Vector) geom.Vector {
	if vel.IsZero() {
		return geom.Vector{}
	}
	return vel.Unit().Scale(-dragCoefficient * vel.Len())
}
