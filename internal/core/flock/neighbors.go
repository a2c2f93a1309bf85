package flock

import (
	"math"

	"github.com/flocksim/flocksim/internal/core/geom"
)

// NeighborSource produces the neighbor set for one agent of a population
// snapshot. Implementations must never include the agent itself and must
// not retain or mutate the snapshot.
//
// The interface exists so a spatial index can replace the brute-force
// baseline behind the same Step/WrappedStep contract.
type NeighborSource interface {
	// Reset is called once per tick with the full snapshot before any
	// Neighbors calls for that tick.
	Reset(pop []Agent)

	// Neighbors returns the interaction set for pop[i]. The returned slice
	// is only valid until the next call with the same source on the same
	// goroutine unless the implementation documents otherwise.
	Neighbors(i int, pop []Agent) []Agent
}

// BruteForce is the reference neighbor source: every other agent in the
// population, in snapshot order. O(N) per agent, O(N²) per tick.
//
// BruteForce is stateless and safe for concurrent Neighbors calls, which
// each allocate their own slice.
type BruteForce struct{}

func (BruteForce) Reset([]Agent) {}

func (BruteForce) Neighbors(i int, pop []Agent) []Agent {
	others := make([]Agent, 0, len(pop)-1)
	others = append(others, pop[:i]...)
	return append(others, pop[i+1:]...)
}

// GridIndex buckets agents into uniform cells and returns only neighbors
// within Radius. It trades the long-range tail of the interaction for
// locality: results match BruteForce only for agents whose relevant
// neighbors all lie within Radius, so it is an approximation of the
// reference model, not a drop-in equivalence.
//
// Reset must be called from a single goroutine; Neighbors calls may then
// run concurrently.
type GridIndex struct {
	Radius float64

	cellSize float64
	cols     int
	rows     int
	cells    map[int][]int
}

// NewGridIndex returns a grid index with the given interaction radius,
// which is also used as the cell size.
func NewGridIndex(radius float64) *GridIndex {
	return &GridIndex{Radius: radius}
}

func (g *GridIndex) Reset(pop []Agent) {
	g.cellSize = g.Radius
	if g.cellSize <= 0 {
		g.cellSize = 1
	}
	var maxX, maxY float64
	for i := range pop {
		maxX = math.Max(maxX, pop[i].Edges.X)
		maxY = math.Max(maxY, pop[i].Edges.Y)
	}
	g.cols = int(maxX/g.cellSize) + 1
	g.rows = int(maxY/g.cellSize) + 1
	g.cells = make(map[int][]int, len(pop))
	for i := range pop {
		key := g.cellKey(pop[i].Pos)
		g.cells[key] = append(g.cells[key], i)
	}
}

func (g *GridIndex) Neighbors(i int, pop []Agent) []Agent {
	self := pop[i]
	cx, cy := g.cellCoords(self.Pos)
	r2 := g.Radius * g.Radius

	var out []Agent
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := cx+dx, cy+dy
			if x < 0 || y < 0 || x >= g.cols || y >= g.rows {
				continue
			}
			for _, j := range g.cells[y*g.cols+x] {
				if j == i {
					continue
				}
				d := pop[j].Pos.Sub(self.Pos)
				if d.Dot(d) <= r2 {
					out = append(out, pop[j])
				}
			}
		}
	}
	return out
}

func (g *GridIndex) cellCoords(p geom.Point) (int, int) {
	cx := int(p.X / g.cellSize)
	cy := int(p.Y / g.cellSize)
	if cx < 0 {
		cx = 0
	} else if cx >= g.cols {
		cx = g.cols - 1
	}
	if cy < 0 {
		cy = 0
	} else if cy >= g.rows {
		cy = g.rows - 1
	}
	return cx, cy
}

func (g *GridIndex) cellKey(p geom.Point) int {
	cx, cy := g.cellCoords(p)
	return cy*g.cols + cx
}
