package world

import (
	"testing"

	"github.com/tibogot/wawa-terrain/internal/config"
)

func defaultChunkConfig() config.ChunkConfig {
	return config.ChunkConfig{
		Size:         500,
		Segments:     64,
		MinSegments:  4,
		ViewDistance: 1500,
		LODBands: []config.LODBand{
			{MaxDistance: 300, Divisor: 1},
			{MaxDistance: 800, Divisor: 2},
			{MaxDistance: 1500, Divisor: 4},
		},
	}
}

func TestSelectorBandStepping(t *testing.T) {
	s := NewSelector(defaultChunkConfig())

	cases := []struct {
		distance float64
		segments int
	}{
		{0, 64},
		{250, 64},
		{300, 64},
		{301, 32},
		{600, 32},
		{900, 16},
		{1500, 16},
	}
	for _, tc := range cases {
		got, ok := s.SegmentsFor(tc.distance)
		if !ok {
			t.Fatalf("distance %v unexpectedly outside streaming radius", tc.distance)
		}
		if got != tc.segments {
			t.Fatalf("distance %v: got %d segments, want %d", tc.distance, got, tc.segments)
		}
	}

	if _, ok := s.SegmentsFor(1501); ok {
		t.Fatal("expected distance beyond view distance to be unloaded")
	}
}

// Walking a chunk away from the camera must step its resolution down through
// the configured bands in order, never skipping back up.
func TestSelectorMonotonicOverWalkout(t *testing.T) {
	s := NewSelector(defaultChunkConfig())

	prev := int(^uint(0) >> 1)
	var seen []int
	for d := 300.0; d <= 1500; d += 50 {
		segments, ok := s.SegmentsFor(d)
		if !ok {
			t.Fatalf("distance %v unexpectedly unloaded", d)
		}
		if segments > prev {
			t.Fatalf("resolution increased from %d to %d at distance %v", prev, segments, d)
		}
		if segments != prev {
			seen = append(seen, segments)
		}
		prev = segments
	}

	want := []int{64, 32, 16}
	if len(seen) != len(want) {
		t.Fatalf("expected tiers %v, saw %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected tiers %v, saw %v", want, seen)
		}
	}
}

func TestSelectorRespectsMinSegments(t *testing.T) {
	cc := defaultChunkConfig()
	cc.MinSegments = 32
	s := NewSelector(cc)

	segments, ok := s.SegmentsFor(1500)
	if !ok {
		t.Fatal("unexpectedly unloaded")
	}
	if segments != 32 {
		t.Fatalf("expected min segment clamp to 32, got %d", segments)
	}
}

func TestChunkDistanceNearestPointOnRect(t *testing.T) {
	const size = 500.0

	// Camera inside the chunk: distance 0.
	if d := chunkDistance(250, 250, Coord{0, 0}, size); d != 0 {
		t.Fatalf("expected 0 inside chunk, got %v", d)
	}
	// Camera due east of the chunk: pure X distance.
	if d := chunkDistance(700, 250, Coord{0, 0}, size); d != 200 {
		t.Fatalf("expected 200, got %v", d)
	}
	// Camera diagonal from the corner.
	if d := chunkDistance(800, 900, Coord{0, 0}, size); d != 500 {
		t.Fatalf("expected corner distance 500, got %v", d)
	}
	// Negative coordinates.
	if d := chunkDistance(-600, 0, Coord{-1, 0}, size); d != 100 {
		t.Fatalf("expected 100, got %v", d)
	}
}

func TestCoordAtAndOrigin(t *testing.T) {
	if c := CoordAt(750, -1, 500); (c != Coord{X: 1, Z: -1}) {
		t.Fatalf("unexpected coord %v", c)
	}
	ox, oz := (Coord{X: -2, Z: 3}).Origin(500)
	if ox != -1000 || oz != 1500 {
		t.Fatalf("unexpected origin (%v,%v)", ox, oz)
	}
}
