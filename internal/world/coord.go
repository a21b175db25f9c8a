package world

import (
	"fmt"
	"math"
)

// Coord identifies a chunk by its integer grid position.
type Coord struct {
	X int
	Z int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Origin returns the chunk's minimum-corner world position.
func (c Coord) Origin(size float64) (float64, float64) {
	return float64(c.X) * size, float64(c.Z) * size
}

// CoordAt locates the chunk containing a world position.
func CoordAt(x, z, size float64) Coord {
	return Coord{
		X: int(math.Floor(x / size)),
		Z: int(math.Floor(z / size)),
	}
}

// chunkDistance is the planar distance from a point to the chunk's bounding
// rectangle. Using the nearest point on the rectangle rather than its center
// keeps large chunks the camera is standing inside at distance 0, so they
// never get under-streamed.
func chunkDistance(camX, camZ float64, c Coord, size float64) float64 {
	ox, oz := c.Origin(size)

	dx := 0.0
	if camX < ox {
		dx = ox - camX
	} else if camX > ox+size {
		dx = camX - (ox + size)
	}

	dz := 0.0
	if camZ < oz {
		dz = oz - camZ
	} else if camZ > oz+size {
		dz = camZ - (oz + size)
	}

	return math.Hypot(dx, dz)
}
