package noise

import (
	"math"
	"testing"
)

func TestSourceDeterministicAcrossConstructions(t *testing.T) {
	const seed = 12345
	a := NewSource(seed)
	b := NewSource(seed)

	points := [][2]float64{{0, 0}, {256, 0}, {0.5, -17.25}, {-1024.75, 3333.125}}
	for _, p := range points {
		va := a.Sample(p[0], p[1])
		vb := b.Sample(p[0], p[1])
		if math.IsNaN(va) || math.IsInf(va, 0) {
			t.Fatalf("sample at (%v,%v) is not finite: %v", p[0], p[1], va)
		}
		if va != vb {
			t.Fatalf("two constructions of seed %d diverge at (%v,%v): %v vs %v", seed, p[0], p[1], va, vb)
		}
		if va < -1 || va > 1 {
			t.Fatalf("sample at (%v,%v) out of [-1,1]: %v", p[0], p[1], va)
		}
	}
}

func TestSourcePathologicalCoordinates(t *testing.T) {
	s := NewSource(7)
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if v := s.Sample(bad, 1); v != 0 {
			t.Fatalf("expected 0 for coordinate %v, got %v", bad, v)
		}
		if v := s.Sample(1, bad); v != 0 {
			t.Fatalf("expected 0 for coordinate %v, got %v", bad, v)
		}
	}
}

func TestChannelsDecorrelated(t *testing.T) {
	ch := NewChannels(42)

	matches := 0
	const samples = 64
	for i := 0; i < samples; i++ {
		x := float64(i) * 1.37
		y := float64(i) * -0.91
		if ch.Region.Sample(x, y) == ch.Ridge.Sample(x, y) {
			matches++
		}
	}
	if matches == samples {
		t.Fatalf("region and ridge channels are identical; channels must be decorrelated")
	}
}

func TestFBMSingleOctaveDegeneratesToRawNoise(t *testing.T) {
	src := NewSource(99)
	const freq = 0.013

	for _, p := range [][2]float64{{0, 0}, {15.5, -3.25}, {500, 500}} {
		got := FBM(src, p[0], p[1], 1, freq, 0.5, 2.0)
		want := src.Sample(p[0]*freq, p[1]*freq)
		if got != want {
			t.Fatalf("single-octave fbm at (%v,%v) = %v, want raw sample %v", p[0], p[1], got, want)
		}
	}
}

func TestFBMZeroOctaves(t *testing.T) {
	src := NewSource(1)
	if v := FBM(src, 3, 4, 0, 0.01, 0.5, 2.0); v != 0 {
		t.Fatalf("expected 0 for zero octaves, got %v", v)
	}
	if v := FBM(src, 3, 4, -2, 0.01, 0.5, 2.0); v != 0 {
		t.Fatalf("expected 0 for negative octaves, got %v", v)
	}
}

func TestFBMBounded(t *testing.T) {
	src := NewSource(2024)
	for i := 0; i < 200; i++ {
		x := float64(i%20) * 41.0
		y := float64(i/20) * 73.0
		v := FBM(src, x, y, 5, 0.004, 0.5, 2.0)
		if v < -1.0001 || v > 1.0001 {
			t.Fatalf("fbm at (%v,%v) out of normalized range: %v", x, y, v)
		}
	}
}

func TestRidgedFBMRange(t *testing.T) {
	src := NewSource(5)
	for i := 0; i < 100; i++ {
		v := RidgedFBM(src, float64(i)*13.7, float64(i)*-7.3, 4, 0.008, 0.5, 2.0)
		if v < 0 || v > 1.0001 {
			t.Fatalf("ridged fbm out of [0,1]: %v", v)
		}
	}
	if v := RidgedFBM(src, 1, 1, 0, 0.01, 0.5, 2.0); v != 0 {
		t.Fatalf("expected 0 for zero octaves, got %v", v)
	}
}

func TestPerlinSourceDeterministic(t *testing.T) {
	a := NewPerlinSource(77)
	b := NewPerlinSource(77)
	for i := 0; i < 32; i++ {
		x := float64(i) * 0.17
		y := float64(i) * 0.29
		if a.Sample(x, y) != b.Sample(x, y) {
			t.Fatalf("perlin channels with equal seed diverge at (%v,%v)", x, y)
		}
	}
}
