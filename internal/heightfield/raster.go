package heightfield

import (
	"fmt"
	"image"
	"io"
	"math"

	_ "image/png" // raster heightmaps ship as PNG
)

// RasterField is the image-backed alternative to the procedural field: a
// grayscale heightmap stretched over a square world extent, bilinearly
// filtered. It satisfies the same Sampler contract, so chunk meshing,
// colliders and spawn queries work unchanged against it.
type RasterField struct {
	width  int
	height int
	values []float64 // luminance in [0, 1], row-major

	extent float64 // world units covered per axis, centered on the origin
	scale  float64 // world height at full luminance
	offset float64 // world height at zero luminance
}

// LoadRaster decodes a grayscale image and maps it over extent world units
// per axis, with luminance 0 at offset and luminance 1 at offset+scale.
func LoadRaster(r io.Reader, extent, scale, offset float64) (*RasterField, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode heightmap: %w", err)
	}
	return NewRasterFromImage(img, extent, scale, offset)
}

func NewRasterFromImage(img image.Image, extent, scale, offset float64) (*RasterField, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("heightmap too small: %dx%d", w, h)
	}
	if extent <= 0 {
		return nil, fmt.Errorf("heightmap extent must be positive, got %v", extent)
	}

	values := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Rec. 601 luminance over 16-bit channel values.
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
			values[y*w+x] = lum / 0xffff
		}
	}

	return &RasterField{
		width:  w,
		height: h,
		values: values,
		extent: extent,
		scale:  scale,
		offset: offset,
	}, nil
}

// Height samples the raster bilinearly at a world coordinate. Coordinates
// outside the covered extent clamp to the border row/column, matching how
// the procedural field stays defined everywhere.
func (r *RasterField) Height(x, z float64) float64 {
	if !finite(x) || !finite(z) {
		return 0
	}

	// World origin sits at the raster center.
	u := (x/r.extent + 0.5) * float64(r.width-1)
	v := (z/r.extent + 0.5) * float64(r.height-1)

	u = clampF(u, 0, float64(r.width-1))
	v = clampF(v, 0, float64(r.height-1))

	x0 := int(math.Floor(u))
	z0 := int(math.Floor(v))
	x1 := minInt(x0+1, r.width-1)
	z1 := minInt(z0+1, r.height-1)
	fu := u - float64(x0)
	fv := v - float64(z0)

	top := lerp(r.values[z0*r.width+x0], r.values[z0*r.width+x1], fu)
	bottom := lerp(r.values[z1*r.width+x0], r.values[z1*r.width+x1], fu)
	h := r.offset + lerp(top, bottom, fv)*r.scale

	if !finite(h) {
		return 0
	}
	return h
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
