package sim

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flocksim/flocksim/internal/core/flock"
)

// Duration wraps time.Duration so "33ms"-style strings work in YAML.
type Duration time.Duration

// Std returns the wrapped standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("sim: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Std().String(), nil
}

// Config holds the simulation parameters. All fields can be set from a
// YAML file; zero values fall back to the defaults.
type Config struct {
	// World extents; the simulated region is [0,Width] x [0,Height].
	WorldWidth  float64 `yaml:"world_width"`
	WorldHeight float64 `yaml:"world_height"`

	// Population is the number of agents.
	Population int `yaml:"population"`

	// Traits are the behavior weights shared by the whole population.
	Traits flock.Traits `yaml:"traits"`

	// Wrapped selects toroidal boundaries instead of reflective walls.
	Wrapped bool `yaml:"wrapped"`

	// Workers bounds the per-agent fan-out per tick. Zero or negative
	// means one worker per logical CPU.
	Workers int `yaml:"workers"`

	// TickInterval is the wall-clock pacing of Run.
	TickInterval Duration `yaml:"tick_interval"`

	// Seed makes population init and respawns reproducible. Zero means
	// seed from the current time.
	Seed int64 `yaml:"seed"`

	// SpawnExtent is the half-width of the square around the world center
	// where agents spawn and respawn.
	SpawnExtent float64 `yaml:"spawn_extent"`

	// InitialSpeed is the per-axis speed agents start with, directed away
	// from the world center.
	InitialSpeed float64 `yaml:"initial_speed"`

	// SpriteFrames is the number of discrete orientation frames reported
	// to renderers.
	SpriteFrames int `yaml:"sprite_frames"`
}

// DefaultConfig returns the canonical simulation parameters.
func DefaultConfig() Config {
	return Config{
		WorldWidth:   1200,
		WorldHeight:  700,
		Population:   50,
		Traits:       flock.Traits{Cohesion: 0.01, Separation: 0.5, Alignment: 0.1, Attraction: 0.3},
		Wrapped:      false,
		TickInterval: Duration(33 * time.Millisecond),
		SpawnExtent:  100,
		InitialSpeed: 3,
		SpriteFrames: 12,
	}
}

// LoadConfig reads a YAML config from r on top of the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("sim: decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfigFile reads a YAML config file on top of the defaults.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("sim: open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	if c.WorldWidth <= 0 || c.WorldHeight <= 0 {
		return fmt.Errorf("sim: world extents must be positive, got %gx%g", c.WorldWidth, c.WorldHeight)
	}
	if c.Population < 1 {
		return fmt.Errorf("sim: population must be at least 1, got %d", c.Population)
	}
	if c.SpriteFrames < 1 {
		return fmt.Errorf("sim: sprite frames must be at least 1, got %d", c.SpriteFrames)
	}
	if c.SpawnExtent <= 0 || 2*c.SpawnExtent >= c.WorldWidth || 2*c.SpawnExtent >= c.WorldHeight {
		return fmt.Errorf("sim: spawn extent %g does not fit the world", c.SpawnExtent)
	}
	return nil
}
