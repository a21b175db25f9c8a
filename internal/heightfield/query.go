package heightfield

// Query is the height-query function handed to external consumers: physics
// proxy rebuilds, vegetation placement, spawn resolution. It is bound once to
// a sampler and shared; consumers must not construct their own field from the
// same parameters, since only the shared instance guarantees bit-identical
// heights across every caller.
type Query func(x, z float64) float64

// NewQuery binds a sampler into the shared query closure.
func NewQuery(s Sampler) Query {
	return s.Height
}

// SpawnHeight resolves the ground height at (x, z) plus a clearance, used to
// drop a physics-driven entity safely above the terrain.
func (q Query) SpawnHeight(x, z, clearance float64) float64 {
	if clearance < 0 {
		clearance = 0
	}
	return q(x, z) + clearance
}

// Ground aligns a vertical position to the terrain: positions below the
// surface are lifted onto it, positions above are left alone.
func (q Query) Ground(x, y, z float64) float64 {
	if h := q(x, z); y < h {
		return h
	}
	return y
}
