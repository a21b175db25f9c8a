package heightfield

import (
	"math"

	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/noise"
)

// Sampler answers a height query at an arbitrary world coordinate.
// Implementations must be pure and safe for concurrent use.
type Sampler interface {
	Height(x, z float64) float64
}

// Field is the composed terrain height function. It owns its noise channels
// and configuration and has no mutable state after construction, so a single
// instance is shared by mesh building, collider generation and ad-hoc
// queries. Two fields built from the same configuration produce bit-identical
// heights, but consumers still share one instance: the field is the single
// source of truth for where the ground is.
type Field struct {
	cfg  config.TerrainConfig
	ch   noise.Channels
	hash uint64
}

func New(cfg config.TerrainConfig) *Field {
	cfg.Normalize()
	return &Field{
		cfg:  cfg,
		ch:   noise.NewChannels(cfg.Seed),
		hash: cfg.Hash(),
	}
}

func (f *Field) Config() config.TerrainConfig {
	return f.cfg
}

// Hash identifies the configuration this field was built from. Chunk caches
// compare it to decide whether their geometry is stale.
func (f *Field) Hash() uint64 {
	return f.hash
}

// Flatness returns the smooth region gate in [0, 1]: 0 in plains, 1 deep in
// mountain regions. Vegetation placement uses it to thin cover on slopes.
func (f *Field) Flatness(x, z float64) float64 {
	if !finite(x) || !finite(z) {
		return 0
	}
	return f.flatness(x, z)
}

func (f *Field) flatness(x, z float64) float64 {
	t := f.cfg
	mask := 0.5 + 0.5*noise.FBM(f.ch.Region, x, z, t.Region.Octaves, t.Region.Frequency, t.Persistence, t.Lacunarity)
	return smoothGate(mask, t.FlatnessThreshold, t.FlatnessSmooth)
}

// Height evaluates the terrain height at a world coordinate. The result is
// always finite and bounded; numerical trouble degrades to 0 rather than
// propagating. The evaluation order is fixed so that independently generated
// chunks agree exactly at shared boundary vertices.
func (f *Field) Height(x, z float64) float64 {
	if !finite(x) || !finite(z) {
		return 0
	}
	t := f.cfg

	// Region gate: decides plains versus mountains. The gate is smooth on
	// purpose; a hard threshold would print a visible biome seam.
	flatness := f.flatness(x, z)
	mountainMask := flatness * flatness
	flatnessFactor := flatnessFloor + (1-flatnessFloor)*flatness

	// Folded ridge layer, two decorrelated sub-layers blended 75/25. The
	// sharpness power pulls creases out of the folds, the softening power
	// knocks down needle spikes the sharpening introduces.
	r1 := noise.RidgedFBM(f.ch.Ridge, x, z, t.Ridge.Octaves, t.Ridge.Frequency, t.Persistence, t.Lacunarity)
	r1 = math.Pow(r1, t.Ridge.Sharpness)
	r1 = math.Pow(r1, t.Ridge.Softening)
	r2 := noise.RidgedFBM(f.ch.RidgeAlt, x, z, t.Ridge.Octaves, t.Ridge.Frequency, t.Persistence, t.Lacunarity)
	r2 = math.Pow(r2, t.Ridge.Sharpness)
	r2 = math.Pow(r2, t.Ridge.Softening)
	ridge := (0.75*r1 + 0.25*r2) * t.Ridge.Amplitude

	base := noise.FBM(f.ch.Base, x, z, t.Base.Octaves, t.Base.Frequency, t.Persistence, t.Lacunarity) * t.Base.Amplitude

	valley := noise.FBM(f.ch.Valley, x, z, t.Valley.Octaves, t.Valley.Frequency, t.Persistence, t.Lacunarity)
	if valley > 0 {
		valley = 0
	}
	valley *= t.Valley.Depth

	hills := noise.FBM(f.ch.Hills, x, z, t.Hills.Octaves, t.Hills.Frequency, t.Persistence, t.Lacunarity) * t.Hills.Amplitude

	detail := noise.FBM(f.ch.Detail, x, z, t.Detail.Octaves, t.Detail.Frequency, t.Persistence, t.Lacunarity) * t.Detail.Amount

	// Slow per-region drift so distant plains do not all sit at the same
	// elevation. Sampled from the region channel at an incommensurate
	// frequency to avoid locking onto the mask.
	biome := f.ch.Region.Sample(x*t.Region.Frequency*4.7, z*t.Region.Frequency*4.7) * t.BiomeVariation

	h := base + ridge*mountainMask + valley + hills + detail*flatnessFactor + biome
	h *= flatnessFactor

	// Gentle damping pass on the combined field before scaling; any
	// monotonic contraction works here, the point is to shave extreme
	// local curvature without reshaping the terrain.
	h = h*0.98 + math.Copysign(0.01*math.Abs(h), h)

	h *= t.HeightScale

	if t.EdgeFadeRadius > 0 {
		h *= edgeFade(x, z, t.EdgeFadeRadius, t.EdgeFadeWidth)
	}

	bound := t.MaxHeight * math.Abs(t.HeightScale)
	if !finite(h) || math.Abs(h) > bound {
		return 0
	}
	return h
}

// flatnessFloor keeps a sliver of variation alive in plains so they read as
// ground, not as a mathematical plane.
const flatnessFloor = 0.12

// smoothGate maps v through a smoothstep window starting at threshold and
// spanning width. Below the threshold it returns 0, a full width above it 1.
func smoothGate(v, threshold, width float64) float64 {
	t := (v - threshold) / width
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// edgeFade scales toward 0 past the fade radius so a streamed world ends in
// a soft shoreline instead of a cliff.
func edgeFade(x, z, radius, width float64) float64 {
	d := math.Hypot(x, z)
	if d <= radius {
		return 1
	}
	t := (d - radius) / width
	if t >= 1 {
		return 0
	}
	return 1 - t*t*(3-2*t)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
