package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tibogot/wawa-terrain/internal/heightfield"
)

// Data is one chunk's triangulated surface plus the raw height grid it was
// built from. The height grid is kept alongside the buffers so collider
// rebuilds and in-bounds height lookups reuse the sampled values instead of
// re-running the noise stack.
type Data struct {
	OriginX  float64
	OriginZ  float64
	Size     float64
	Segments int

	Heights []float64 // (segments+1)^2 row-major, world heights

	Positions []float32 // xyz per vertex
	Normals   []float32 // xyz per vertex, unit length
	UVs       []float32 // uv per vertex, [0,1] across the chunk
	Indices   []uint32  // two CCW triangles per grid cell
}

// Build samples the field on a (segments+1) x (segments+1) grid anchored at
// the chunk's absolute world origin and triangulates it. Sampling absolute
// coordinates is what makes adjacent chunks share boundary vertices exactly;
// chunk-local coordinates would shift the noise lattice per chunk and tear
// every seam.
func Build(originX, originZ, size float64, segments int, s heightfield.Sampler) *Data {
	if segments < 1 {
		segments = 1
	}
	verts := segments + 1
	step := size / float64(segments)

	d := &Data{
		OriginX:   originX,
		OriginZ:   originZ,
		Size:      size,
		Segments:  segments,
		Heights:   make([]float64, verts*verts),
		Positions: make([]float32, 0, verts*verts*3),
		UVs:       make([]float32, 0, verts*verts*2),
		Indices:   make([]uint32, 0, segments*segments*6),
	}

	for iz := 0; iz < verts; iz++ {
		worldZ := originZ + float64(iz)*step
		for ix := 0; ix < verts; ix++ {
			worldX := originX + float64(ix)*step
			h := s.Height(worldX, worldZ)
			d.Heights[iz*verts+ix] = h

			d.Positions = append(d.Positions, float32(worldX), float32(h), float32(worldZ))
			d.UVs = append(d.UVs, float32(ix)/float32(segments), float32(iz)/float32(segments))
		}
	}

	for iz := 0; iz < segments; iz++ {
		for ix := 0; ix < segments; ix++ {
			a := uint32(iz*verts + ix)
			b := a + 1
			c := a + uint32(verts)
			dd := c + 1
			d.Indices = append(d.Indices, a, c, b, b, c, dd)
		}
	}

	d.Normals = smoothNormals(d.Positions, d.Indices)
	return d
}

// smoothNormals averages adjacent face normals per vertex. The cross product
// is left unnormalized during accumulation, which weights each face by its
// area; long skinny LOD triangles therefore pull less than they would under
// a plain average.
func smoothNormals(positions []float32, indices []uint32) []float32 {
	acc := make([]mgl32.Vec3, len(positions)/3)

	for i := 0; i+2 < len(indices); i += 3 {
		ia, ib, ic := indices[i], indices[i+1], indices[i+2]
		a := vertex(positions, ia)
		b := vertex(positions, ib)
		c := vertex(positions, ic)

		face := b.Sub(a).Cross(c.Sub(a))
		acc[ia] = acc[ia].Add(face)
		acc[ib] = acc[ib].Add(face)
		acc[ic] = acc[ic].Add(face)
	}

	out := make([]float32, len(positions))
	up := mgl32.Vec3{0, 1, 0}
	for i, n := range acc {
		if n.Len() < 1e-12 {
			n = up
		} else {
			n = n.Normalize()
		}
		out[i*3] = n.X()
		out[i*3+1] = n.Y()
		out[i*3+2] = n.Z()
	}
	return out
}

func vertex(positions []float32, idx uint32) mgl32.Vec3 {
	i := int(idx) * 3
	return mgl32.Vec3{positions[i], positions[i+1], positions[i+2]}
}

// HeightAt answers an in-bounds height lookup from the cached grid with
// bilinear filtering, avoiding a noise re-evaluation. The second return is
// false when the coordinate lies outside this chunk.
func (d *Data) HeightAt(x, z float64) (float64, bool) {
	if x < d.OriginX || z < d.OriginZ || x > d.OriginX+d.Size || z > d.OriginZ+d.Size {
		return 0, false
	}
	verts := d.Segments + 1
	step := d.Size / float64(d.Segments)

	u := (x - d.OriginX) / step
	v := (z - d.OriginZ) / step
	x0 := int(math.Floor(u))
	z0 := int(math.Floor(v))
	if x0 >= d.Segments {
		x0 = d.Segments - 1
	}
	if z0 >= d.Segments {
		z0 = d.Segments - 1
	}
	fu := u - float64(x0)
	fv := v - float64(z0)

	h00 := d.Heights[z0*verts+x0]
	h10 := d.Heights[z0*verts+x0+1]
	h01 := d.Heights[(z0+1)*verts+x0]
	h11 := d.Heights[(z0+1)*verts+x0+1]

	top := h00 + (h10-h00)*fu
	bottom := h01 + (h11-h01)*fu
	return top + (bottom-top)*fv, true
}

// VertexCount reports the number of vertices in the buffers.
func (d *Data) VertexCount() int {
	return len(d.Positions) / 3
}

// TriangleCount reports the number of triangles in the index buffer.
func (d *Data) TriangleCount() int {
	return len(d.Indices) / 3
}
