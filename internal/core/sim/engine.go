// Package sim owns the simulation driver: population lifecycle, the
// snapshot-and-replace tick loop, the recovery policy for agents that
// escape the world, and the frame stream consumed by renderers.
package sim

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/flocksim/flocksim/internal/core/events/bus"
	"github.com/flocksim/flocksim/internal/core/flock"
	"github.com/flocksim/flocksim/internal/core/geom"
	"github.com/flocksim/flocksim/internal/core/observability/log"
	"github.com/flocksim/flocksim/pkg/concurrent"
	"github.com/flocksim/flocksim/pkg/generic"
	"github.com/flocksim/flocksim/pkg/sequence"
)

// Event types published on the bus.
const (
	// EventFrame carries a *Frame after every tick that changed the world.
	EventFrame = "sim.frame"
	// EventRespawn carries a RespawnInfo when a boundary violation forced
	// an agent to be replaced.
	EventRespawn = "sim.agent.respawned"
)

const eventSource = "sim.engine"

// RespawnInfo is the payload of EventRespawn.
type RespawnInfo struct {
	OldID string
	NewID string
	Tick  uint64
	Cause string
}

// Engine advances a population of agents tick by tick.
//
// Every tick is a pure function of the previous population snapshot and
// the current target point: all next states are computed from the same
// unmutated snapshot, then the population is replaced wholesale. No agent
// ever observes another agent's same-tick update.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	pop       []flock.Agent
	tick      uint64
	target    geom.Point
	wrapped   bool
	neighbors flock.NeighborSource
	rng       *rand.Rand
	workers   int

	events bus.EventBus
	logger log.Log

	bufPool  *generic.Pool[[]flock.Agent]
	lastHash uint64
}

// stepResult pairs an agent's next state with the boundary error that
// prevented it, if any.
type stepResult struct {
	agent flock.Agent
	err   error
}

// NewEngine seeds the RNG, spawns the initial population and returns a
// ready-to-tick engine. events may be nil when no one listens.
func NewEngine(cfg Config, events bus.EventBus, logger log.Log) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Provide()
	}
	if events == nil {
		events = bus.New()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	e := &Engine{
		cfg:       cfg,
		target:    geom.Point{X: cfg.WorldWidth / 2, Y: cfg.WorldHeight / 2},
		wrapped:   cfg.Wrapped,
		neighbors: flock.BruteForce{},
		rng:       rand.New(rand.NewSource(seed)),
		workers:   workers,
		events:    events,
		logger:    logger.With(log.String("component", "engine")),
		bufPool: generic.NewResetPool(
			func() []flock.Agent { return make([]flock.Agent, 0, cfg.Population) },
			func(buf []flock.Agent) []flock.Agent { return buf[:0] },
		),
	}
	e.pop = e.spawnPopulation()

	e.logger.Info("engine initialized",
		log.Int("population", cfg.Population),
		log.Bool("wrapped", cfg.Wrapped),
		log.Int("workers", workers),
		log.Int64("seed", seed))
	return e, nil
}

// UseNeighborSource swaps the neighbor source. The default is the
// brute-force all-pairs baseline.
func (e *Engine) UseNeighborSource(src flock.NeighborSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.neighbors = src
}

// SetTarget moves the attractor point (usually the viewer's pointer). The
// new target takes effect on the next tick.
func (e *Engine) SetTarget(p geom.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p.X = math.Min(math.Max(p.X, 0), e.cfg.WorldWidth)
	p.Y = math.Min(math.Max(p.Y, 0), e.cfg.WorldHeight)
	e.target = p
}

// Target returns the current attractor point.
func (e *Engine) Target() geom.Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.target
}

// SetWrapped toggles between toroidal and reflective boundaries.
func (e *Engine) SetWrapped(wrapped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wrapped = wrapped
}

// Wrapped reports the current boundary mode.
func (e *Engine) Wrapped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wrapped
}

// TickCount returns the number of completed ticks.
func (e *Engine) TickCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// Snapshot returns a copy of the current population.
func (e *Engine) Snapshot() []flock.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]flock.Agent, len(e.pop))
	copy(out, e.pop)
	return out
}

// Restart replaces the population with a freshly spawned one.
func (e *Engine) Restart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pop = e.spawnPopulation()
	e.tick = 0
	e.lastHash = 0
	e.logger.Info("population restarted", log.Int("population", len(e.pop)))
}

// Tick advances the simulation by one step.
//
// The per-agent computation fans out across the worker pool; each worker
// reads only the immutable snapshot taken at the start of the tick.
// Boundary violations are resolved afterwards, sequentially, by respawning
// the offender near the world center with zero velocity.
func (e *Engine) Tick() {
	e.mu.Lock()
	snapshot := e.pop
	target := e.target
	wrapped := e.wrapped
	src := e.neighbors
	e.mu.Unlock()

	src.Reset(snapshot)

	results := concurrent.ParallelMap(sequence.From(snapshot), e.workers,
		func(i int, a flock.Agent) stepResult {
			others := src.Neighbors(i, snapshot)
			if wrapped {
				return stepResult{agent: a.WrappedStep(others, target, a.Edges.X, a.Edges.Y)}
			}
			next, err := a.Step(others, target)
			return stepResult{agent: next, err: err}
		})

	e.mu.Lock()
	next := e.bufPool.Get()
	tick := e.tick + 1
	var respawns []RespawnInfo
	for i, r := range results {
		if r.err == nil {
			next = append(next, r.agent)
			continue
		}
		// Per-agent failure: the rest of the flock is unaffected. Cheat
		// and drop a replacement near the center, standing still.
		fresh := e.respawnLocked()
		next = append(next, fresh)
		respawns = append(respawns, RespawnInfo{
			OldID: snapshot[i].ID.String(),
			NewID: fresh.ID.String(),
			Tick:  tick,
			Cause: r.err.Error(),
		})
	}
	old := e.pop
	e.pop = next
	e.tick = tick
	e.mu.Unlock()

	e.bufPool.Put(old)

	for _, info := range respawns {
		e.logger.Debug("agent left the world, respawned",
			log.String("old_id", info.OldID),
			log.String("new_id", info.NewID),
			log.String("cause", info.Cause))
		if err := e.events.Publish(bus.NewEvent(EventRespawn, eventSource, info)); err != nil {
			e.logger.Warn("respawn event delivery failed", log.Error(err))
		}
	}
}

// Run ticks the engine at the configured interval until ctx is cancelled.
// After each tick the current frame is published on the bus unless it
// hashes identically to the previous one.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.TickInterval.Std()
	if interval <= 0 {
		interval = DefaultConfig().TickInterval.Std()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("engine running", log.Duration("tick_interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", log.Uint64("ticks", e.TickCount()))
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
			e.publishFrame()
		}
	}
}

func (e *Engine) publishFrame() {
	frame := e.Frame()
	digest, err := frame.Digest()
	if err != nil {
		e.logger.Error("frame digest failed", log.Error(err))
		return
	}

	e.mu.Lock()
	unchanged := digest == e.lastHash
	e.lastHash = digest
	e.mu.Unlock()
	if unchanged {
		return
	}

	if err := e.events.Publish(bus.NewEvent(EventFrame, eventSource, frame)); err != nil {
		e.logger.Warn("frame event delivery failed", log.Error(err))
	}
}

// spawnPopulation creates the initial agents: spawned in a box around the
// world center, heading outward at the configured per-axis speed.
func (e *Engine) spawnPopulation() []flock.Agent {
	edges := geom.Point{X: e.cfg.WorldWidth, Y: e.cfg.WorldHeight}
	cx, cy := e.cfg.WorldWidth/2, e.cfg.WorldHeight/2

	pop := make([]flock.Agent, 0, e.cfg.Population)
	for i := 0; i < e.cfg.Population; i++ {
		pos := e.randomSpawnPoint()
		vel := geom.Vector{
			X: math.Copysign(e.cfg.InitialSpeed, pos.X-cx),
			Y: math.Copysign(e.cfg.InitialSpeed, pos.Y-cy),
		}
		pop = append(pop, flock.New(pos, vel, e.cfg.Traits, edges))
	}
	return pop
}

// respawnLocked creates a replacement agent near the center with zero
// velocity. Caller must hold e.mu.
func (e *Engine) respawnLocked() flock.Agent {
	edges := geom.Point{X: e.cfg.WorldWidth, Y: e.cfg.WorldHeight}
	return flock.New(e.randomSpawnPoint(), geom.Vector{}, e.cfg.Traits, edges)
}

// randomSpawnPoint picks a whole-valued coordinate in the spawn box around
// the world center.
func (e *Engine) randomSpawnPoint() geom.Point {
	span := int(2 * e.cfg.SpawnExtent)
	return geom.Point{
		X: e.cfg.WorldWidth/2 - e.cfg.SpawnExtent + float64(e.rng.Intn(span)),
		Y: e.cfg.WorldHeight/2 - e.cfg.SpawnExtent + float64(e.rng.Intn(span)),
	}
}
