package sim

import (
	"encoding/json"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/flocksim/flocksim/internal/core/geom"
)

// Frame is the render-facing snapshot of one tick, shipped to viewers as
// JSON. It carries everything a renderer needs to place a sprite and pick
// its orientation frame; the kinematics core knows nothing about it.
type Frame struct {
	Tick    uint64       `json:"tick"`
	World   geom.Point   `json:"world"`
	Target  geom.Point   `json:"target"`
	Wrapped bool         `json:"wrapped"`
	Agents  []AgentFrame `json:"agents"`
}

// AgentFrame is one agent as seen by a renderer.
type AgentFrame struct {
	ID     string      `json:"id"`
	Pos    geom.Point  `json:"pos"`
	Vel    geom.Vector `json:"vel"`
	Sprite int         `json:"sprite"`
}

// Frame builds the current render frame.
func (e *Engine) Frame() *Frame {
	pop := e.Snapshot()

	e.mu.RLock()
	frame := &Frame{
		Tick:    e.tick,
		World:   geom.Point{X: e.cfg.WorldWidth, Y: e.cfg.WorldHeight},
		Target:  e.target,
		Wrapped: e.wrapped,
		Agents:  make([]AgentFrame, 0, len(pop)),
	}
	numFrames := e.cfg.SpriteFrames
	e.mu.RUnlock()

	for i := range pop {
		frame.Agents = append(frame.Agents, AgentFrame{
			ID:     pop[i].ID.String(),
			Pos:    pop[i].Pos,
			Vel:    pop[i].Vel,
			Sprite: SpriteFrame(pop[i].Vel, numFrames),
		})
	}
	return frame
}

// Encode renders the frame as JSON.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Digest returns the xxhash of the encoded frame. Identical world states
// produce identical digests, which the engine uses to suppress rebroadcast
// of unchanged frames.
func (f *Frame) Digest() (uint64, error) {
	b, err := f.Encode()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}

// SpriteFrame maps a direction of travel to one of numFrames sprite
// orientations ordered counter-clockwise from the X axis.
//
// The screen coordinate system is left-handed (Y grows downward), so a
// fixed -90° rotation is applied, and the signed [-180°,180°] result of
// atan2 is shifted into [0°,360°) before bucketing.
func SpriteFrame(vel geom.Vector, numFrames int) int {
	angle := -90 + (180/math.Pi)*math.Atan2(vel.X, vel.Y)

	degreesPerFrame := 360 / float64(numFrames)
	if angle < 0 {
		angle += 360
	}
	frame := int(math.Floor(angle / degreesPerFrame))
	// Guard the angle == 360 edge after the shift.
	return frame % numFrames
}
