package world

import (
	"math"
	"sync"

	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/mesh"
)

// Chunk is one streamed tile of the world. Its cached height grid (inside
// Mesh) is the single source of truth for the render surface, the physics
// collider and in-bounds height lookups; the grid owns it exclusively.
type Chunk struct {
	Coord    Coord
	OriginX  float64
	OriginZ  float64
	Size     float64
	Distance float64 // planar distance to the camera at the last update

	Segments  int        // resolution of the published mesh, 0 before first build
	Mesh      *mesh.Data // nil until the first build publishes
	BuiltHash uint64     // terrain hash the mesh was built with

	targetSegments int  // resolution requested from the builder
	pending        bool // a build is in flight
}

// Built reports whether the chunk has a published mesh at its requested
// resolution for the live configuration.
func (c *Chunk) Built(liveHash uint64) bool {
	return c.Mesh != nil && c.Segments == c.targetSegments && c.BuiltHash == liveHash
}

// BuildRequest describes one chunk (re)build for the mesh workers.
type BuildRequest struct {
	Coord    Coord
	OriginX  float64
	OriginZ  float64
	Size     float64
	Segments int
	Hash     uint64 // terrain hash the build is for
}

// UpdateResult lists what changed during a camera update. Unchanged chunks
// never appear here; per-frame cost for a stationary camera is a map scan.
type UpdateResult struct {
	Build []BuildRequest // newly visible chunks and LOD/config changes
	Evict []Coord        // chunks that left the streaming radius
}

// Grid owns the streamed chunk set. Update decides visibility and
// resolution, Publish applies finished meshes, and a one-shot Ready channel
// closes once the initial visible set is fully built.
type Grid struct {
	cfg config.ChunkConfig
	lod *Selector

	mu     sync.RWMutex
	chunks map[Coord]*Chunk
	hash   uint64 // live terrain hash; chunks built under another hash are stale

	readyOnce sync.Once
	ready     chan struct{}
}

func NewGrid(cc config.ChunkConfig, terrainHash uint64) *Grid {
	cc.Normalize()
	return &Grid{
		cfg:    cc,
		lod:    NewSelector(cc),
		chunks: make(map[Coord]*Chunk),
		hash:   terrainHash,
		ready:  make(chan struct{}),
	}
}

// Ready closes once every chunk of the initial visible set has a mesh.
// Consumers that must not start before collision geometry exists (character
// spawning, for one) block on it.
func (g *Grid) Ready() <-chan struct{} {
	return g.ready
}

// Invalidate swaps the live terrain hash. Every chunk whose mesh was built
// under the old hash is rebuilt on the next update; results still in flight
// for the old hash are discarded at publish time.
func (g *Grid) Invalidate(terrainHash uint64) {
	g.mu.Lock()
	g.hash = terrainHash
	for _, ch := range g.chunks {
		// In-flight builds are now for a dead configuration; clearing the
		// flag lets the next update re-dispatch under the new hash while
		// Publish rejects the stale results by hash.
		ch.pending = false
	}
	g.mu.Unlock()
}

// Update recomputes the visible chunk set for a camera position and returns
// only the transitions. Rebuilds are triggered by visibility, resolution or
// configuration changes, never unconditionally.
func (g *Grid) Update(camX, camZ float64) UpdateResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	var result UpdateResult
	size := g.cfg.Size
	view := g.lod.ViewDistance()

	minC := CoordAt(camX-view, camZ-view, size)
	maxC := CoordAt(camX+view, camZ+view, size)

	visible := make(map[Coord]struct{})
	for cz := minC.Z; cz <= maxC.Z; cz++ {
		for cx := minC.X; cx <= maxC.X; cx++ {
			coord := Coord{X: cx, Z: cz}
			dist := chunkDistance(camX, camZ, coord, size)
			segments, ok := g.lod.SegmentsFor(dist)
			if !ok {
				continue
			}
			visible[coord] = struct{}{}

			ch, exists := g.chunks[coord]
			if !exists {
				ox, oz := coord.Origin(size)
				ch = &Chunk{
					Coord:   coord,
					OriginX: ox,
					OriginZ: oz,
					Size:    size,
				}
				g.chunks[coord] = ch
			}
			ch.Distance = dist

			needsBuild := ch.Mesh == nil || ch.Segments != segments || ch.BuiltHash != g.hash
			alreadyInFlight := ch.pending && ch.targetSegments == segments
			if needsBuild && !alreadyInFlight {
				ch.pending = true
				ch.targetSegments = segments
				result.Build = append(result.Build, BuildRequest{
					Coord:    coord,
					OriginX:  ch.OriginX,
					OriginZ:  ch.OriginZ,
					Size:     size,
					Segments: segments,
					Hash:     g.hash,
				})
			}
		}
	}

	for coord, ch := range g.chunks {
		if _, ok := visible[coord]; ok {
			continue
		}
		// Free the cached geometry; an in-flight build for this chunk
		// will be dropped when it tries to publish.
		ch.Mesh = nil
		delete(g.chunks, coord)
		result.Evict = append(result.Evict, coord)
	}

	return result
}

// Publish applies a finished mesh. The result is discarded when the chunk
// was evicted meanwhile, when its target resolution moved on, or when the
// configuration changed under the build; stale geometry never lands.
func (g *Grid) Publish(req BuildRequest, data *mesh.Data) bool {
	g.mu.Lock()

	ch, ok := g.chunks[req.Coord]
	if !ok || req.Hash != g.hash || !ch.pending || ch.targetSegments != req.Segments {
		g.mu.Unlock()
		return false
	}

	ch.Mesh = data
	ch.Segments = req.Segments
	ch.BuiltHash = req.Hash
	ch.pending = false

	allBuilt := true
	for _, c := range g.chunks {
		if !c.Built(g.hash) {
			allBuilt = false
			break
		}
	}
	g.mu.Unlock()

	if allBuilt {
		g.readyOnce.Do(func() { close(g.ready) })
	}
	return true
}

// Chunk returns the live chunk at a coordinate, if any.
func (g *Grid) Chunk(coord Coord) (*Chunk, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.chunks[coord]
	return ch, ok
}

// ChunkState is a copy of one published chunk's streamable state. The Mesh
// pointer is shared but its contents are immutable once published.
type ChunkState struct {
	Coord     Coord
	Segments  int
	BuiltHash uint64
	Mesh      *mesh.Data
}

// Snapshot copies the published chunk set under the grid lock, in no
// particular order. Chunks without a mesh yet are omitted. This is the only
// safe way to read chunk state from outside the goroutine that publishes;
// live *Chunk fields are mutated by Publish and must not be read unlocked.
func (g *Grid) Snapshot() []ChunkState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ChunkState, 0, len(g.chunks))
	for _, ch := range g.chunks {
		if ch.Mesh == nil {
			continue
		}
		out = append(out, ChunkState{
			Coord:     ch.Coord,
			Segments:  ch.Segments,
			BuiltHash: ch.BuiltHash,
			Mesh:      ch.Mesh,
		})
	}
	return out
}

// Len reports the number of resident chunks.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.chunks)
}

// CachedHeight answers a height query from a resident chunk's height grid
// without touching the noise stack. It fails when the position is not
// covered by a built chunk; callers fall back to the shared field.
func (g *Grid) CachedHeight(x, z float64) (float64, bool) {
	if math.IsNaN(x) || math.IsNaN(z) {
		return 0, false
	}
	coord := CoordAt(x, z, g.cfg.Size)

	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.chunks[coord]
	if !ok || ch.Mesh == nil {
		return 0, false
	}
	return ch.Mesh.HeightAt(x, z)
}
