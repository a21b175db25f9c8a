package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/mesh"
	"github.com/tibogot/wawa-terrain/internal/world"
)

// EventKind discriminates engine-to-client chunk traffic.
type EventKind int

const (
	EventChunkAdd EventKind = iota
	EventChunkRemove
	EventReady
)

// Event is one chunk-set change fanned out to subscribed clients.
type Event struct {
	Kind     EventKind
	Coord    world.Coord
	Segments int
	Mesh     *mesh.Data
	Chunks   int // resident chunk count, set on EventReady
}

// Engine is the terrain core as seen by the transport: camera input in,
// chunk events and height answers out.
type Engine interface {
	ServerID() string
	ChunkSize() float64
	ViewDistance() float64
	Spawn() (x, y, z float64)
	Height(x, z float64) float64
	SetCamera(clientID string, x, z float64)
	Subscribe(clientID string) (<-chan Event, func())
	Reconfigure(cfg config.TerrainConfig) error
}

// Server streams chunk meshes to websocket clients and answers their height
// queries. One goroutine per client direction, voxel-style: a writer draining
// the subscription, a reader parsing client messages.
type Server struct {
	engine Engine
	cfg    config.StreamConfig
	logger *log.Logger

	upgrader   websocket.Upgrader
	compressor *Compressor
	clientSeq  atomic.Uint64
}

func NewServer(engine Engine, cfg config.StreamConfig, logger *log.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("stream: engine is nil")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "stream ", log.LstdFlags|log.Lmicroseconds)
	}

	s := &Server{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // local tooling default
		},
	}
	if cfg.Compression {
		c, err := NewCompressor()
		if err != nil {
			return nil, err
		}
		s.compressor = c
	}
	return s, nil
}

// Run serves the websocket endpoint until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/terrain", s.Handler())

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("stream listen: %w", err)
	}
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Printf("streaming terrain on %s", ln.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler upgrades one client connection and runs its session.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if s.cfg.MaxMessageBytes > 0 {
			conn.SetReadLimit(s.cfg.MaxMessageBytes)
		}

		clientID := fmt.Sprintf("%s#%d", conn.RemoteAddr(), s.clientSeq.Add(1))
		if !s.handshake(conn, clientID) {
			return
		}

		events, unsubscribe := s.engine.Subscribe(clientID)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, s.cfg.SendQueue)
		go s.writeLoop(ctx, cancel, conn, out)
		go s.eventLoop(ctx, cancel, clientID, events, out)

		s.readLoop(ctx, cancel, conn, clientID, out)
	}
}

func (s *Server) handshake(conn *websocket.Conn, clientID string) bool {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false
	}

	base, err := DecodeBase(msg)
	if err != nil || base.Type != TypeHello {
		s.closePolicy(conn, "expected hello")
		return false
	}
	var hello HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return false
	}
	if hello.ProtocolVersion != Version {
		s.closePolicy(conn, "bad protocol_version")
		return false
	}

	sx, sy, sz := s.engine.Spawn()
	welcome := WelcomeMsg{
		Type:            TypeWelcome,
		ProtocolVersion: Version,
		ServerID:        s.engine.ServerID(),
		ChunkSize:       s.engine.ChunkSize(),
		ViewDistance:    s.engine.ViewDistance(),
		SpawnX:          sx,
		SpawnY:          sy,
		SpawnZ:          sz,
	}
	payload, err := json.Marshal(welcome)
	if err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return false
	}

	s.logger.Printf("client %s connected (%s)", clientID, hello.ClientName)
	return true
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-out:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) eventLoop(ctx context.Context, cancel context.CancelFunc, clientID string, events <-chan Event, out chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				cancel()
				return
			}
			b, err := s.encodeEvent(ev)
			if err != nil {
				s.logger.Printf("client %s: encode event: %v", clientID, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) encodeEvent(ev Event) ([]byte, error) {
	switch ev.Kind {
	case EventChunkAdd:
		return json.Marshal(ChunkAddMsg{
			Type:     TypeChunkAdd,
			ChunkX:   ev.Coord.X,
			ChunkZ:   ev.Coord.Z,
			Segments: ev.Segments,
			Payload:  PackMesh(ev.Mesh, s.compressor),
		})
	case EventChunkRemove:
		return json.Marshal(ChunkRemoveMsg{
			Type:   TypeChunkRemove,
			ChunkX: ev.Coord.X,
			ChunkZ: ev.Coord.Z,
		})
	case EventReady:
		return json.Marshal(TerrainReadyMsg{Type: TypeTerrainReady, Chunks: ev.Chunks})
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, clientID string, out chan<- []byte) {
	defer cancel()
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		base, err := DecodeBase(msg)
		if err != nil {
			continue
		}

		switch base.Type {
		case TypeCamera:
			var cam CameraMsg
			if err := json.Unmarshal(msg, &cam); err != nil {
				continue
			}
			s.engine.SetCamera(clientID, cam.X, cam.Z)

		case TypeHeightQuery:
			var q HeightQueryMsg
			if err := json.Unmarshal(msg, &q); err != nil {
				continue
			}
			b, err := json.Marshal(HeightResultMsg{
				Type:   TypeHeightResult,
				ID:     q.ID,
				X:      q.X,
				Z:      q.Z,
				Height: s.engine.Height(q.X, q.Z),
			})
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}

		case TypeReconfigure:
			var rc ReconfigureMsg
			if err := json.Unmarshal(msg, &rc); err != nil {
				continue
			}
			if err := s.engine.Reconfigure(rc.Terrain); err != nil {
				s.logger.Printf("client %s: reconfigure rejected: %v", clientID, err)
				if b, mErr := json.Marshal(ErrorMsg{Type: TypeError, Reason: err.Error()}); mErr == nil {
					select {
					case out <- b:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}
}

func (s *Server) closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second),
	)
}

func (s *Server) writeTimeout() time.Duration {
	if d := s.cfg.WriteTimeout.Duration(); d > 0 {
		return d
	}
	return 5 * time.Second
}

func (s *Server) readTimeout() time.Duration {
	if d := s.cfg.ReadTimeout.Duration(); d > 0 {
		return d
	}
	return 60 * time.Second
}
