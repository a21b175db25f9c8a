package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a config-friendly wrapper around time.Duration that accepts
// human readable strings such as "150ms" in YAML or JSON configuration files
// while still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML encodes the duration as its canonical string representation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes a duration from a string or nanosecond integer node.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	return fmt.Errorf("duration: invalid node %q", node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures the tunable parameters needed to bootstrap a terrain server.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Terrain TerrainConfig `yaml:"terrain" json:"terrain"`
	Chunks  ChunkConfig   `yaml:"chunks" json:"chunks"`
	Stream  StreamConfig  `yaml:"stream" json:"stream"`
}

type ServerConfig struct {
	ID           string   `yaml:"id" json:"id"`
	TickRate     Duration `yaml:"tickRate" json:"tickRate"`         // e.g. "33ms"
	BuildWorkers int      `yaml:"buildWorkers" json:"buildWorkers"` // simultaneous chunk mesh builds
}

// LayerConfig tunes one fBm layer of the height field.
type LayerConfig struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
	Octaves   int     `yaml:"octaves" json:"octaves"`
}

// RidgeConfig tunes the folded mountain layer.
type RidgeConfig struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`
	Octaves   int     `yaml:"octaves" json:"octaves"`
	Sharpness float64 `yaml:"sharpness" json:"sharpness"` // power applied to the folded field
	Softening float64 `yaml:"softening" json:"softening"` // secondary power suppressing needle spikes
}

// ValleyConfig tunes the negative-only carving layer.
type ValleyConfig struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Octaves   int     `yaml:"octaves" json:"octaves"`
	Depth     float64 `yaml:"depth" json:"depth"`
}

// DetailConfig tunes the high-frequency Perlin detail layer.
type DetailConfig struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Octaves   int     `yaml:"octaves" json:"octaves"`
	Amount    float64 `yaml:"amount" json:"amount"`
}

// TerrainConfig holds every tunable of the height field. Values are clamped
// to safe ranges by Normalize rather than rejected: terrain is a visual
// system and must degrade gracefully instead of refusing to start.
type TerrainConfig struct {
	Seed        int64   `yaml:"seed" json:"seed"`
	HeightScale float64 `yaml:"heightScale" json:"heightScale"`
	MaxHeight   float64 `yaml:"maxHeight" json:"maxHeight"` // safety clamp magnitude, pre-scale units
	Persistence float64 `yaml:"persistence" json:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity" json:"lacunarity"`

	Region LayerConfig  `yaml:"region" json:"region"`
	Ridge  RidgeConfig  `yaml:"ridge" json:"ridge"`
	Base   LayerConfig  `yaml:"base" json:"base"`
	Valley ValleyConfig `yaml:"valley" json:"valley"`
	Hills  LayerConfig  `yaml:"hills" json:"hills"`
	Detail DetailConfig `yaml:"detail" json:"detail"`

	FlatnessThreshold float64 `yaml:"flatnessThreshold" json:"flatnessThreshold"`
	FlatnessSmooth    float64 `yaml:"flatnessSmooth" json:"flatnessSmooth"`
	BiomeVariation    float64 `yaml:"biomeVariation" json:"biomeVariation"`

	EdgeFadeRadius float64 `yaml:"edgeFadeRadius" json:"edgeFadeRadius"` // 0 disables the fade
	EdgeFadeWidth  float64 `yaml:"edgeFadeWidth" json:"edgeFadeWidth"`
}

// LODBand maps a camera distance ceiling to a segment-count divisor.
type LODBand struct {
	MaxDistance float64 `yaml:"maxDistance" json:"maxDistance"`
	Divisor     int     `yaml:"divisor" json:"divisor"`
}

type ChunkConfig struct {
	Size         float64   `yaml:"size" json:"size"`                 // world units per chunk edge
	Segments     int       `yaml:"segments" json:"segments"`         // full-resolution segment count
	MinSegments  int       `yaml:"minSegments" json:"minSegments"`   // floor after LOD division
	ViewDistance float64   `yaml:"viewDistance" json:"viewDistance"` // streaming radius
	LODBands     []LODBand `yaml:"lodBands" json:"lodBands"`
}

type StreamConfig struct {
	Listen          string   `yaml:"listen" json:"listen"` // ":8480"
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	MaxMessageBytes int64    `yaml:"maxMessageBytes" json:"maxMessageBytes"`
	Compression     bool     `yaml:"compression" json:"compression"`
	SendQueue       int      `yaml:"sendQueue" json:"sendQueue"` // per-client outbound buffer
}

// Load reads configuration from a YAML or JSON file if provided. An empty
// path returns defaults. The loaded config is normalized and validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:           "terrain-server-0",
			TickRate:     Duration(33 * time.Millisecond),
			BuildWorkers: 4,
		},
		Terrain: DefaultTerrain(),
		Chunks: ChunkConfig{
			Size:         500,
			Segments:     64,
			MinSegments:  4,
			ViewDistance: 1500,
			LODBands: []LODBand{
				{MaxDistance: 300, Divisor: 1},
				{MaxDistance: 800, Divisor: 2},
				{MaxDistance: 1500, Divisor: 4},
			},
		},
		Stream: StreamConfig{
			Listen:          ":8480",
			WriteTimeout:    Duration(5 * time.Second),
			ReadTimeout:     Duration(60 * time.Second),
			MaxMessageBytes: 1 << 20,
			Compression:     true,
			SendQueue:       32,
		},
	}
}

// DefaultTerrain returns the stock height field tuning: broad plains split by
// ridged mountain regions, shallow valleys, rolling hills and fine detail.
func DefaultTerrain() TerrainConfig {
	return TerrainConfig{
		Seed:        12345,
		HeightScale: 120,
		MaxHeight:   10,
		Persistence: 0.5,
		Lacunarity:  2.0,
		Region: LayerConfig{
			Frequency: 0.0006,
			Amplitude: 1,
			Octaves:   3,
		},
		Ridge: RidgeConfig{
			Frequency: 0.0022,
			Amplitude: 1.6,
			Octaves:   5,
			Sharpness: 2.2,
			Softening: 1.35,
		},
		Base: LayerConfig{
			Frequency: 0.0011,
			Amplitude: 0.35,
			Octaves:   4,
		},
		Valley: ValleyConfig{
			Frequency: 0.0016,
			Octaves:   3,
			Depth:     0.45,
		},
		Hills: LayerConfig{
			Frequency: 0.006,
			Amplitude: 0.12,
			Octaves:   3,
		},
		Detail: DetailConfig{
			Frequency: 0.03,
			Octaves:   2,
			Amount:    0.035,
		},
		FlatnessThreshold: 0.35,
		FlatnessSmooth:    0.2,
		BiomeVariation:    0.04,
		EdgeFadeRadius:    0,
		EdgeFadeWidth:     600,
	}
}

// Normalize clamps degenerate tunables to safe minimums in place. Terrain
// parameters never produce hard failures (the field clamps at evaluation
// time too), but normalizing early keeps chunk geometry well formed.
func (c *Config) Normalize() {
	if c.Server.TickRate <= 0 {
		c.Server.TickRate = Duration(33 * time.Millisecond)
	}
	if c.Server.BuildWorkers <= 0 {
		c.Server.BuildWorkers = 1
	}

	c.Terrain.Normalize()
	c.Chunks.Normalize()

	if c.Stream.MaxMessageBytes <= 0 {
		c.Stream.MaxMessageBytes = 1 << 20
	}
	if c.Stream.SendQueue <= 0 {
		c.Stream.SendQueue = 8
	}
}

func (t *TerrainConfig) Normalize() {
	if t.HeightScale == 0 {
		t.HeightScale = 1
	}
	if t.MaxHeight <= 0 {
		t.MaxHeight = 10
	}
	if t.Persistence <= 0 {
		t.Persistence = 0.5
	}
	if t.Lacunarity <= 1 {
		t.Lacunarity = 2.0
	}
	normalizeLayer(&t.Region)
	normalizeLayer(&t.Base)
	normalizeLayer(&t.Hills)
	if t.Ridge.Octaves < 1 {
		t.Ridge.Octaves = 1
	}
	if t.Ridge.Sharpness <= 0 {
		t.Ridge.Sharpness = 1
	}
	if t.Ridge.Softening <= 0 {
		t.Ridge.Softening = 1
	}
	if t.Valley.Octaves < 1 {
		t.Valley.Octaves = 1
	}
	if t.Detail.Octaves < 1 {
		t.Detail.Octaves = 1
	}
	if t.FlatnessSmooth <= 0 {
		t.FlatnessSmooth = 0.01
	}
	if t.FlatnessThreshold < 0 {
		t.FlatnessThreshold = 0
	}
	if t.FlatnessThreshold > 1 {
		t.FlatnessThreshold = 1
	}
	if t.EdgeFadeRadius > 0 && t.EdgeFadeWidth <= 0 {
		t.EdgeFadeWidth = t.EdgeFadeRadius * 0.25
	}
}

func normalizeLayer(l *LayerConfig) {
	if l.Octaves < 1 {
		l.Octaves = 1
	}
}

func (cc *ChunkConfig) Normalize() {
	if cc.Size <= 0 {
		cc.Size = 500
	}
	if cc.Segments < 2 {
		cc.Segments = 2
	}
	if cc.MinSegments < 2 {
		cc.MinSegments = 2
	}
	if cc.MinSegments > cc.Segments {
		cc.MinSegments = cc.Segments
	}
	if cc.ViewDistance <= 0 {
		cc.ViewDistance = cc.Size * 3
	}
	if len(cc.LODBands) == 0 {
		cc.LODBands = []LODBand{{MaxDistance: cc.ViewDistance, Divisor: 1}}
	}
	sort.SliceStable(cc.LODBands, func(i, j int) bool {
		return cc.LODBands[i].MaxDistance < cc.LODBands[j].MaxDistance
	})
	for i := range cc.LODBands {
		if cc.LODBands[i].Divisor < 1 {
			cc.LODBands[i].Divisor = 1
		}
		if i > 0 && cc.LODBands[i].Divisor < cc.LODBands[i-1].Divisor {
			cc.LODBands[i].Divisor = cc.LODBands[i-1].Divisor
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return errors.New("server.id must be set")
	}
	if c.Stream.Listen == "" {
		return errors.New("stream.listen must be set")
	}
	if c.Chunks.ViewDistance < c.Chunks.Size {
		return errors.New("chunks.viewDistance must cover at least one chunk")
	}
	last := c.Chunks.LODBands[len(c.Chunks.LODBands)-1]
	if last.MaxDistance < c.Chunks.ViewDistance {
		return errors.New("chunks.lodBands must cover the full view distance")
	}
	return nil
}
