package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tibogot/wawa-terrain/internal/stream"
)

// terrainprobe connects to a terrain server, parks a camera and prints the
// chunk traffic until the server announces the terrain is ready. Useful for
// eyeballing LOD band behaviour and payload sizes from the command line.
func main() {
	server := flag.String("server", "127.0.0.1:8480", "terrain server address")
	camX := flag.Float64("x", 0, "camera X position")
	camZ := flag.Float64("z", 0, "camera Z position")
	queryX := flag.Float64("qx", 0, "height query X")
	queryZ := flag.Float64("qz", 0, "height query Z")
	timeout := flag.Duration("timeout", 30*time.Second, "give up after this long")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/terrain", *server)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close()

	send(conn, stream.HelloMsg{
		Type:            stream.TypeHello,
		ProtocolVersion: stream.Version,
		ClientName:      "terrainprobe",
	})

	var welcome stream.WelcomeMsg
	if err := readInto(conn, stream.TypeWelcome, &welcome); err != nil {
		log.Fatalf("handshake: %v", err)
	}
	fmt.Printf("connected to %s: chunk size %.0f, view distance %.0f, spawn (%.1f, %.2f, %.1f)\n",
		welcome.ServerID, welcome.ChunkSize, welcome.ViewDistance,
		welcome.SpawnX, welcome.SpawnY, welcome.SpawnZ)

	send(conn, stream.CameraMsg{Type: stream.TypeCamera, X: *camX, Z: *camZ})
	send(conn, stream.HeightQueryMsg{Type: stream.TypeHeightQuery, ID: 1, X: *queryX, Z: *queryZ})

	compressor, err := stream.NewCompressor()
	if err != nil {
		log.Fatalf("compressor: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(*timeout))
	added, removed := 0, 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		base, err := stream.DecodeBase(raw)
		if err != nil {
			log.Fatalf("decode: %v", err)
		}

		switch base.Type {
		case stream.TypeChunkAdd:
			var msg stream.ChunkAddMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Fatalf("decode chunk add: %v", err)
			}
			data, err := stream.UnpackMesh(msg.Payload, compressor)
			if err != nil {
				log.Fatalf("unpack chunk (%d,%d): %v", msg.ChunkX, msg.ChunkZ, err)
			}
			added++
			fmt.Printf("+ chunk (%d,%d) segments=%d vertices=%d payload=%dB (%s)\n",
				msg.ChunkX, msg.ChunkZ, msg.Segments, data.VertexCount(),
				len(msg.Payload.Data), msg.Payload.Encoding)

		case stream.TypeChunkRemove:
			var msg stream.ChunkRemoveMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Fatalf("decode chunk remove: %v", err)
			}
			removed++
			fmt.Printf("- chunk (%d,%d)\n", msg.ChunkX, msg.ChunkZ)

		case stream.TypeHeightResult:
			var msg stream.HeightResultMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Fatalf("decode height result: %v", err)
			}
			fmt.Printf("height(%.1f, %.1f) = %.4f\n", msg.X, msg.Z, msg.Height)

		case stream.TypeTerrainReady:
			var msg stream.TerrainReadyMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Fatalf("decode ready: %v", err)
			}
			fmt.Printf("terrain ready: %d chunks resident (%d added, %d removed this session)\n",
				msg.Chunks, added, removed)
			return

		case stream.TypeError:
			var msg stream.ErrorMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Fatalf("decode error message: %v", err)
			}
			log.Fatalf("server error: %s", msg.Reason)
		}
	}
}

func send(conn *websocket.Conn, msg any) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Fatalf("send: %v", err)
	}
}

// readInto skips unrelated traffic until a message of the wanted type
// arrives, then unmarshals it.
func readInto(conn *websocket.Conn, want stream.MessageType, out any) error {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := stream.DecodeBase(raw)
		if err != nil {
			return err
		}
		if base.Type == stream.TypeError {
			var e stream.ErrorMsg
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			return fmt.Errorf("server rejected: %s", e.Reason)
		}
		if base.Type == want {
			return json.Unmarshal(raw, out)
		}
	}
}
