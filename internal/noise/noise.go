package noise

import (
	"math"

	"github.com/aquilax/go-perlin"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Sampler2D is a deterministic 2D scalar noise field. Implementations return
// values in [-1, 1] and must be pure: the same coordinates always produce the
// same value for the lifetime of the sampler.
type Sampler2D interface {
	Sample(x, y float64) float64
}

// Source is a seeded simplex noise channel. The permutation table is built
// once at construction; sampling allocates nothing.
type Source struct {
	seed int64
	gen  opensimplex.Noise
}

func NewSource(seed int64) *Source {
	return &Source{
		seed: seed,
		gen:  opensimplex.New(seed),
	}
}

func (s *Source) Seed() int64 {
	return s.seed
}

// Sample returns a value in [-1, 1]. Pathological coordinates (NaN or Inf)
// return 0 so downstream clamping never sees a poisoned value.
func (s *Source) Sample(x, y float64) float64 {
	if !finite(x) || !finite(y) {
		return 0
	}
	return s.gen.Eval2(x, y)
}

// Perlin parameters matching the terrain-friendly defaults used across the
// project: alpha controls octave weight decay, beta the frequency spread.
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinDepth = 3
)

// PerlinSource is an independently seeded Perlin channel used where a layer
// must be decorrelated from the simplex channels even at an identical seed.
type PerlinSource struct {
	seed int64
	gen  *perlin.Perlin
}

func NewPerlinSource(seed int64) *PerlinSource {
	return &PerlinSource{
		seed: seed,
		gen:  perlin.NewPerlin(perlinAlpha, perlinBeta, perlinDepth, seed),
	}
}

func (p *PerlinSource) Seed() int64 {
	return p.seed
}

func (p *PerlinSource) Sample(x, y float64) float64 {
	if !finite(x) || !finite(y) {
		return 0
	}
	v := p.gen.Noise2D(x, y)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return v
}

// Channel seed offsets. Layers sampled at the same coordinates must not
// correlate, so every channel derives from the master seed at a fixed offset.
const (
	offsetRegion   = 0
	offsetRidge    = 1000
	offsetRidgeAlt = 2000
	offsetBase     = 3000
	offsetValley   = 4000
	offsetHills    = 5000
	offsetDetail   = 6000
)

// Channels bundles the decorrelated noise channels consumed by the height
// field. All channels are immutable after construction and safe for
// concurrent sampling.
type Channels struct {
	Region   *Source
	Ridge    *Source
	RidgeAlt *Source
	Base     *Source
	Valley   *Source
	Hills    *Source
	Detail   *PerlinSource
}

func NewChannels(seed int64) Channels {
	return Channels{
		Region:   NewSource(seed + offsetRegion),
		Ridge:    NewSource(seed + offsetRidge),
		RidgeAlt: NewSource(seed + offsetRidgeAlt),
		Base:     NewSource(seed + offsetBase),
		Valley:   NewSource(seed + offsetValley),
		Hills:    NewSource(seed + offsetHills),
		Detail:   NewPerlinSource(seed + offsetDetail),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
