package stream

import (
	"encoding/json"
	"fmt"

	"github.com/tibogot/wawa-terrain/internal/config"
)

// Version is the wire protocol version. Clients announcing another version
// are turned away during the handshake.
const Version = 1

type MessageType string

const (
	// Client -> server.
	TypeHello       MessageType = "hello"
	TypeCamera      MessageType = "camera"
	TypeHeightQuery MessageType = "height_query"
	TypeReconfigure MessageType = "reconfigure"

	// Server -> client.
	TypeWelcome      MessageType = "welcome"
	TypeChunkAdd     MessageType = "chunk_add"
	TypeChunkRemove  MessageType = "chunk_remove"
	TypeTerrainReady MessageType = "terrain_ready"
	TypeHeightResult MessageType = "height_result"
	TypeError        MessageType = "error"
)

// Base is the envelope every message shares; decoding it first lets the
// reader dispatch on type before committing to a full unmarshal.
type Base struct {
	Type MessageType `json:"type"`
}

func DecodeBase(b []byte) (Base, error) {
	var base Base
	if err := json.Unmarshal(b, &base); err != nil {
		return Base{}, fmt.Errorf("decode envelope: %w", err)
	}
	if base.Type == "" {
		return Base{}, fmt.Errorf("envelope missing type")
	}
	return base, nil
}

type HelloMsg struct {
	Type            MessageType `json:"type"`
	ProtocolVersion int         `json:"protocol_version"`
	ClientName      string      `json:"client_name,omitempty"`
}

type WelcomeMsg struct {
	Type            MessageType `json:"type"`
	ProtocolVersion int         `json:"protocol_version"`
	ServerID        string      `json:"server_id"`
	ChunkSize       float64     `json:"chunk_size"`
	ViewDistance    float64     `json:"view_distance"`
	SpawnX          float64     `json:"spawn_x"`
	SpawnY          float64     `json:"spawn_y"`
	SpawnZ          float64     `json:"spawn_z"`
}

type CameraMsg struct {
	Type MessageType `json:"type"`
	X    float64     `json:"x"`
	Z    float64     `json:"z"`
}

type HeightQueryMsg struct {
	Type MessageType `json:"type"`
	ID   uint64      `json:"id"`
	X    float64     `json:"x"`
	Z    float64     `json:"z"`
}

type HeightResultMsg struct {
	Type   MessageType `json:"type"`
	ID     uint64      `json:"id"`
	X      float64     `json:"x"`
	Z      float64     `json:"z"`
	Height float64     `json:"height"`
}

// ReconfigureMsg swaps the terrain tuning at runtime. Every resident chunk
// is regenerated under the new parameters.
type ReconfigureMsg struct {
	Type    MessageType          `json:"type"`
	Terrain config.TerrainConfig `json:"terrain"`
}

// MeshPayload carries one chunk's geometry. Encoding is either "raw"
// (base64 of the binary mesh codec) or "zstd" (the same bytes compressed).
type MeshPayload struct {
	Encoding string `json:"encoding"`
	Data     []byte `json:"data"` // encoding/json base64-encodes []byte
}

type ChunkAddMsg struct {
	Type     MessageType `json:"type"`
	ChunkX   int         `json:"chunk_x"`
	ChunkZ   int         `json:"chunk_z"`
	Segments int         `json:"segments"`
	Payload  MeshPayload `json:"payload"`
}

type ChunkRemoveMsg struct {
	Type   MessageType `json:"type"`
	ChunkX int         `json:"chunk_x"`
	ChunkZ int         `json:"chunk_z"`
}

type TerrainReadyMsg struct {
	Type   MessageType `json:"type"`
	Chunks int         `json:"chunks"`
}

type ErrorMsg struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}
