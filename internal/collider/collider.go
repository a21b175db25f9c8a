package collider

import (
	"fmt"
	"math"

	"github.com/tibogot/wawa-terrain/internal/mesh"
)

// Trimesh is the static collision descriptor handed to the physics engine
// for one chunk. Vertices and indices alias the render mesh buffers: the
// surface a body collides with is, by construction, the surface being drawn,
// and the two can never drift apart.
type Trimesh struct {
	Vertices []float32 // xyz triples, shared with the render mesh
	Indices  []uint32  // shared with the render mesh
}

// FromMesh adapts a built chunk mesh into a collider descriptor.
func FromMesh(d *mesh.Data) (Trimesh, error) {
	if d == nil {
		return Trimesh{}, fmt.Errorf("collider: nil mesh")
	}
	if len(d.Positions) == 0 || len(d.Indices) < 3 {
		return Trimesh{}, fmt.Errorf("collider: empty mesh for chunk at (%v,%v)", d.OriginX, d.OriginZ)
	}
	for i, v := range d.Positions {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Trimesh{}, fmt.Errorf("collider: non-finite vertex component %d in chunk at (%v,%v)", i, d.OriginX, d.OriginZ)
		}
	}
	return Trimesh{Vertices: d.Positions, Indices: d.Indices}, nil
}

// TriangleCount reports the number of collision triangles.
func (t Trimesh) TriangleCount() int {
	return len(t.Indices) / 3
}
