package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tibogot/wawa-terrain/internal/collider"
	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/heightfield"
	"github.com/tibogot/wawa-terrain/internal/mesh"
	"github.com/tibogot/wawa-terrain/internal/stream"
	"github.com/tibogot/wawa-terrain/internal/world"
)

// spawnClearance keeps a freshly dropped body safely above the surface.
const spawnClearance = 2.0

// Server owns the terrain core: the shared height field, the streamed chunk
// grid, a build worker pool and the collider registry. A fixed-rate loop
// applies camera input, dispatches chunk rebuilds and publishes finished
// geometry; publishes happen on the loop goroutine only, so a chunk's mesh
// and collider never tear apart.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	fieldMu sync.RWMutex
	field   *heightfield.Field
	query   heightfield.Query

	grid *world.Grid

	colliderMu sync.RWMutex
	colliders  map[world.Coord]collider.Trimesh

	camMu  sync.Mutex
	camera [2]float64
	stream *stream.Server

	subMu     sync.Mutex
	subs      map[string]chan stream.Event
	readySent bool

	buildQueue []world.BuildRequest
}

type buildResult struct {
	req  world.BuildRequest
	data *mesh.Data
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Writer(), "terrain-server ", log.LstdFlags|log.Lmicroseconds)

	field := heightfield.New(cfg.Terrain)
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		field:     field,
		query:     heightfield.NewQuery(field),
		grid:      world.NewGrid(cfg.Chunks, field.Hash()),
		colliders: make(map[world.Coord]collider.Trimesh),
		subs:      make(map[string]chan stream.Event),
	}

	ws, err := stream.NewServer(srv, cfg.Stream, logger)
	if err != nil {
		return nil, err
	}
	srv.stream = ws
	return srv, nil
}

// Query exposes the shared height-query closure. Everything that needs a
// ground height goes through this one bound instance.
func (s *Server) Query() heightfield.Query {
	s.fieldMu.RLock()
	defer s.fieldMu.RUnlock()
	return s.query
}

// Ready closes once the initial chunk set is fully built.
func (s *Server) Ready() <-chan struct{} {
	return s.grid.Ready()
}

// Grid exposes the chunk grid for in-process consumers and tests.
func (s *Server) Grid() *world.Grid {
	return s.grid
}

// Collider returns the static trimesh for a resident chunk.
func (s *Server) Collider(coord world.Coord) (collider.Trimesh, bool) {
	s.colliderMu.RLock()
	defer s.colliderMu.RUnlock()
	tm, ok := s.colliders[coord]
	return tm, ok
}

// Run drives the frame loop until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := s.cfg.Server.BuildWorkers
	tasks := make(chan world.BuildRequest)
	results := make(chan buildResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.buildWorker(ctx, tasks, results)
		}()
	}

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- s.stream.Run(ctx)
	}()

	s.logger.Printf("server %s running: chunk size %v, view distance %v, %d build workers",
		s.cfg.Server.ID, s.cfg.Chunks.Size, s.cfg.Chunks.ViewDistance, workers)

	ticker := time.NewTicker(s.cfg.Server.TickRate.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			<-streamErr
			s.logger.Printf("shutdown complete")
			return nil

		case err := <-streamErr:
			cancel()
			wg.Wait()
			if err != nil && err != context.Canceled {
				return fmt.Errorf("stream server: %w", err)
			}
			return nil

		case res := <-results:
			s.applyResult(res)

		case <-ticker.C:
			s.tick()
			s.drainQueue(ctx, tasks, results)
		}
	}
}

func (s *Server) buildWorker(ctx context.Context, tasks <-chan world.BuildRequest, results chan<- buildResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-tasks:
			field := s.currentField()
			if field.Hash() != req.Hash {
				// Configuration moved on while the request was queued;
				// the grid has already re-dispatched under the new hash.
				continue
			}
			data := mesh.Build(req.OriginX, req.OriginZ, req.Size, req.Segments, field)
			select {
			case results <- buildResult{req: req, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) currentField() *heightfield.Field {
	s.fieldMu.RLock()
	defer s.fieldMu.RUnlock()
	return s.field
}

func (s *Server) tick() {
	camX, camZ := s.currentCamera()
	result := s.grid.Update(camX, camZ)

	for _, coord := range result.Evict {
		s.colliderMu.Lock()
		delete(s.colliders, coord)
		s.colliderMu.Unlock()
		s.broadcast(stream.Event{Kind: stream.EventChunkRemove, Coord: coord})
	}

	s.buildQueue = append(s.buildQueue, result.Build...)
}

// drainQueue hands queued build requests to idle workers without blocking
// the loop; leftovers wait for the next tick. Results arriving while the
// queue drains are applied inline so workers never stall on a full channel.
func (s *Server) drainQueue(ctx context.Context, tasks chan<- world.BuildRequest, results <-chan buildResult) {
	for len(s.buildQueue) > 0 {
		req := s.buildQueue[0]
		select {
		case tasks <- req:
			s.buildQueue = s.buildQueue[1:]
		case res := <-results:
			s.applyResult(res)
		case <-ctx.Done():
			return
		default:
			return
		}
	}
}

func (s *Server) applyResult(res buildResult) {
	if !s.grid.Publish(res.req, res.data) {
		// Evicted, superseded or reconfigured while building.
		return
	}

	tm, err := collider.FromMesh(res.data)
	if err != nil {
		s.logger.Printf("chunk %v: collider rejected: %v", res.req.Coord, err)
	} else {
		s.colliderMu.Lock()
		s.colliders[res.req.Coord] = tm
		s.colliderMu.Unlock()
	}

	s.broadcast(stream.Event{
		Kind:     stream.EventChunkAdd,
		Coord:    res.req.Coord,
		Segments: res.req.Segments,
		Mesh:     res.data,
	})

	select {
	case <-s.grid.Ready():
		s.announceReady()
	default:
	}
}

// announceReady broadcasts the one-shot readiness signal. The flag stays set
// so late subscribers get the announcement replayed on connect.
func (s *Server) announceReady() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.readySent {
		return
	}
	s.readySent = true
	s.logger.Printf("terrain ready: %d chunks resident", s.grid.Len())
	ev := stream.Event{Kind: stream.EventReady, Chunks: s.grid.Len()}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Printf("client %s: event queue full, dropping ready", id)
		}
	}
}

func (s *Server) currentCamera() (float64, float64) {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	return s.camera[0], s.camera[1]
}

func (s *Server) broadcast(ev stream.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Printf("client %s: event queue full, dropping %d", id, ev.Kind)
		}
	}
}

// --- stream.Engine ---

func (s *Server) ServerID() string {
	return s.cfg.Server.ID
}

func (s *Server) ChunkSize() float64 {
	return s.cfg.Chunks.Size
}

func (s *Server) ViewDistance() float64 {
	return s.cfg.Chunks.ViewDistance
}

// Spawn resolves the drop-in position above the world origin.
func (s *Server) Spawn() (float64, float64, float64) {
	y := s.Query().SpawnHeight(0, 0, spawnClearance)
	return 0, y, 0
}

// Height answers an arbitrary-coordinate query against the shared field.
// It deliberately bypasses the chunk cache: cached grids are LOD-dependent
// approximations, while consumers of this interface (spawn resolution,
// vegetation placement) want the exact field value.
func (s *Server) Height(x, z float64) float64 {
	return s.Query()(x, z)
}

// SetCamera records a client camera position; the last writer drives the
// streamed set.
func (s *Server) SetCamera(clientID string, x, z float64) {
	s.camMu.Lock()
	s.camera = [2]float64{x, z}
	s.camMu.Unlock()
}

// Subscribe registers a client for chunk events. Chunks already resident are
// replayed into the queue so a late joiner starts from the live world state,
// and the one-shot readiness announcement is repeated if it already fired.
// Snapshot and registration happen under the fanout lock as one unit: a
// concurrent publish either lands in the snapshot or is broadcast to the
// registered channel, never neither.
func (s *Server) Subscribe(clientID string) (<-chan stream.Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	snapshot := s.grid.Snapshot()

	capacity := s.cfg.Stream.SendQueue
	if n := len(snapshot) + 1; n > capacity {
		capacity = n
	}
	ch := make(chan stream.Event, capacity)
	for _, st := range snapshot {
		ch <- stream.Event{Kind: stream.EventChunkAdd, Coord: st.Coord, Segments: st.Segments, Mesh: st.Mesh}
	}
	if s.readySent {
		ch <- stream.Event{Kind: stream.EventReady, Chunks: s.grid.Len()}
	}
	s.subs[clientID] = ch

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, clientID)
		s.subMu.Unlock()
	}
}

// Reconfigure swaps the terrain tuning. The shared field is replaced as one
// unit and every resident chunk is regenerated under the new configuration;
// builds still in flight for the old field are discarded at publish time.
func (s *Server) Reconfigure(t config.TerrainConfig) error {
	t.Normalize()
	field := heightfield.New(t)

	s.fieldMu.Lock()
	s.field = field
	s.query = heightfield.NewQuery(field)
	s.cfg.Terrain = t
	s.fieldMu.Unlock()

	s.grid.Invalidate(field.Hash())
	s.logger.Printf("terrain reconfigured: seed %d, hash %x", t.Seed, field.Hash())
	return nil
}
