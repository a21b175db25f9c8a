package world

import "github.com/tibogot/wawa-terrain/internal/config"

// Selector maps camera distance to a chunk resolution. Bands are sorted by
// distance with non-decreasing divisors (config normalization guarantees
// both), which makes the mapping monotonic: a closer chunk never receives a
// coarser resolution than a farther one.
type Selector struct {
	bands       []config.LODBand
	segments    int
	minSegments int
	view        float64
}

func NewSelector(cc config.ChunkConfig) *Selector {
	cc.Normalize()
	return &Selector{
		bands:       cc.LODBands,
		segments:    cc.Segments,
		minSegments: cc.MinSegments,
		view:        cc.ViewDistance,
	}
}

// ViewDistance reports the streaming radius.
func (s *Selector) ViewDistance() float64 {
	return s.view
}

// SegmentsFor returns the segment count for a chunk at the given distance,
// or false when the chunk is outside the streaming radius entirely.
func (s *Selector) SegmentsFor(distance float64) (int, bool) {
	if distance > s.view {
		return 0, false
	}

	divisor := s.bands[len(s.bands)-1].Divisor
	for _, band := range s.bands {
		if distance <= band.MaxDistance {
			divisor = band.Divisor
			break
		}
	}

	segments := s.segments / divisor
	if segments < s.minSegments {
		segments = s.minSegments
	}
	return segments, true
}
