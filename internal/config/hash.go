package config

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Hash returns a stable digest of every field that influences height values.
// Chunks are memoized by (coordinate, LOD, terrain hash); a chunk whose hash
// matches the live configuration is never rebuilt.
func (t TerrainConfig) Hash() uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)

	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}

	writeInt(t.Seed)
	writeFloat(t.HeightScale)
	writeFloat(t.MaxHeight)
	writeFloat(t.Persistence)
	writeFloat(t.Lacunarity)

	for _, l := range []LayerConfig{t.Region, t.Base, t.Hills} {
		writeFloat(l.Frequency)
		writeFloat(l.Amplitude)
		writeInt(int64(l.Octaves))
	}

	writeFloat(t.Ridge.Frequency)
	writeFloat(t.Ridge.Amplitude)
	writeInt(int64(t.Ridge.Octaves))
	writeFloat(t.Ridge.Sharpness)
	writeFloat(t.Ridge.Softening)

	writeFloat(t.Valley.Frequency)
	writeInt(int64(t.Valley.Octaves))
	writeFloat(t.Valley.Depth)

	writeFloat(t.Detail.Frequency)
	writeInt(int64(t.Detail.Octaves))
	writeFloat(t.Detail.Amount)

	writeFloat(t.FlatnessThreshold)
	writeFloat(t.FlatnessSmooth)
	writeFloat(t.BiomeVariation)
	writeFloat(t.EdgeFadeRadius)
	writeFloat(t.EdgeFadeWidth)

	return h.Sum64()
}
