package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/heightfield"
	"github.com/tibogot/wawa-terrain/internal/stream"
	"github.com/tibogot/wawa-terrain/internal/world"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.TickRate = config.Duration(5 * time.Millisecond)
	cfg.Server.BuildWorkers = 2
	cfg.Chunks.Size = 100
	cfg.Chunks.Segments = 8
	cfg.Chunks.MinSegments = 2
	cfg.Chunks.ViewDistance = 150
	cfg.Chunks.LODBands = []config.LODBand{
		{MaxDistance: 60, Divisor: 1},
		{MaxDistance: 150, Divisor: 2},
	}
	cfg.Stream.Listen = "127.0.0.1:0"
	return cfg
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return srv
}

func waitReady(t *testing.T, srv *Server) {
	t.Helper()
	select {
	case <-srv.Ready():
	case <-time.After(10 * time.Second):
		t.Fatalf("terrain never became ready")
	}
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitialBuildReachesReady(t *testing.T) {
	srv := startServer(t, testConfig())
	waitReady(t, srv)

	snap := srv.Grid().Snapshot()
	if len(snap) == 0 {
		t.Fatalf("ready fired with no resident chunks")
	}
	if got, want := len(snap), srv.Grid().Len(); got != want {
		t.Fatalf("ready fired with %d of %d chunks built", got, want)
	}
	for _, st := range snap {
		tm, ok := srv.Collider(st.Coord)
		if !ok {
			t.Fatalf("chunk %v has no collider", st.Coord)
		}
		if &tm.Vertices[0] != &st.Mesh.Positions[0] {
			t.Fatalf("chunk %v collider does not alias its mesh buffers", st.Coord)
		}
	}
}

func TestHeightMatchesSharedField(t *testing.T) {
	cfg := testConfig()
	srv := startServer(t, cfg)

	reference := heightfield.New(cfg.Terrain)
	for _, p := range [][2]float64{{0, 0}, {37.5, -122.25}, {-950, 640}, {12345, -6789}} {
		got := srv.Height(p[0], p[1])
		want := reference.Height(p[0], p[1])
		if got != want {
			t.Fatalf("Height(%v, %v) = %v, field gives %v", p[0], p[1], got, want)
		}
	}
}

func TestSpawnSitsAboveGround(t *testing.T) {
	srv := startServer(t, testConfig())

	x, y, z := srv.Spawn()
	if x != 0 || z != 0 {
		t.Fatalf("spawn at (%v, %v), want origin", x, z)
	}
	if want := srv.Height(0, 0) + spawnClearance; y != want {
		t.Fatalf("spawn height %v, want %v", y, want)
	}
}

func TestCameraMoveStreamsNewChunks(t *testing.T) {
	srv := startServer(t, testConfig())
	waitReady(t, srv)

	far := world.Coord{X: 50, Z: 50}
	srv.SetCamera("test", 5025, 5025)

	waitFor(t, "chunk at new camera position", func() bool {
		for _, st := range srv.Grid().Snapshot() {
			if st.Coord == far {
				return true
			}
		}
		return false
	})
	waitFor(t, "origin chunk eviction", func() bool {
		_, ok := srv.Grid().Chunk(world.Coord{X: 0, Z: 0})
		return !ok
	})
	waitFor(t, "origin collider removal", func() bool {
		_, ok := srv.Collider(world.Coord{X: 0, Z: 0})
		return !ok
	})
}

func TestReconfigureRebuildsResidentChunks(t *testing.T) {
	cfg := testConfig()
	srv := startServer(t, cfg)
	waitReady(t, srv)

	before := srv.Height(80, 80)

	next := cfg.Terrain
	next.Seed = cfg.Terrain.Seed + 99
	if err := srv.Reconfigure(next); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	if after := srv.Height(80, 80); after == before {
		t.Fatalf("height unchanged after reseed: %v", after)
	}

	newHash := heightfield.New(next).Hash()
	waitFor(t, "all chunks rebuilt under new configuration", func() bool {
		snap := srv.Grid().Snapshot()
		if len(snap) == 0 || len(snap) != srv.Grid().Len() {
			return false
		}
		for _, st := range snap {
			if st.BuiltHash != newHash {
				return false
			}
		}
		return true
	})
}

// A client joining after the initial build must receive every resident chunk
// before the readiness announcement; chunk events are deltas, so anything
// missed at subscribe time would never arrive.
func TestLateSubscriberReceivesResidentSet(t *testing.T) {
	srv := startServer(t, testConfig())
	waitReady(t, srv)

	events, unsub := srv.Subscribe("latecomer")
	defer unsub()

	want := srv.Grid().Len()
	seen := make(map[world.Coord]bool)
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case stream.EventChunkAdd:
				if ev.Mesh == nil {
					t.Fatalf("replayed chunk %v without mesh", ev.Coord)
				}
				seen[ev.Coord] = true
			case stream.EventReady:
				if len(seen) < want {
					t.Fatalf("ready after replaying %d of %d resident chunks", len(seen), want)
				}
				return
			}
		case <-deadline:
			t.Fatal("replay never completed")
		}
	}
}

// Subscribers churn while the camera bounces across a LOD band edge, keeping
// chunk publishes in flight the whole time. Every replayed chunk must carry a
// mesh; with the race detector on, this also verifies the snapshot path never
// reads chunk state the loop goroutine is mutating.
func TestSubscribeWhileChunksPublish(t *testing.T) {
	srv := startServer(t, testConfig())
	waitReady(t, srv)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			// Chunk (1,0) flips between the near and medium bands.
			if i%2 == 0 {
				srv.SetCamera("mover", 0, 0)
			} else {
				srv.SetCamera("mover", 120, 0)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 50; i++ {
		events, unsub := srv.Subscribe(fmt.Sprintf("churn-%d", i))
		replayed := 0
	drain:
		for {
			select {
			case ev := <-events:
				if ev.Kind == stream.EventChunkAdd {
					if ev.Mesh == nil {
						t.Fatalf("subscriber %d: replayed chunk %v without mesh", i, ev.Coord)
					}
					replayed++
				}
			default:
				break drain
			}
		}
		if replayed == 0 {
			t.Fatalf("subscriber %d: no resident chunks replayed", i)
		}
		unsub()
	}
	close(stop)
	wg.Wait()
}

func TestSubscribeReceivesChunkTraffic(t *testing.T) {
	srv, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Register before the loop starts so the one-shot ready broadcast
	// cannot slip past the observer.
	events, unsub := srv.Subscribe("observer")
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	sawAdd := false
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case stream.EventChunkAdd:
				if ev.Mesh == nil {
					t.Fatalf("chunk add event without mesh")
				}
				sawAdd = true
			case stream.EventReady:
				if !sawAdd {
					t.Fatalf("ready announced before any chunk was delivered")
				}
				if ev.Chunks != srv.Grid().Len() {
					t.Fatalf("ready reports %d chunks, grid has %d", ev.Chunks, srv.Grid().Len())
				}
				return
			}
		case <-deadline:
			t.Fatalf("never received the ready event")
		}
	}
}
