package stream

import (
	"testing"

	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/heightfield"
	"github.com/tibogot/wawa-terrain/internal/mesh"
)

func testMesh(t *testing.T) *mesh.Data {
	t.Helper()
	f := heightfield.New(config.DefaultTerrain())
	return mesh.Build(-500, 250, 500, 16, f)
}

func meshesEqual(t *testing.T, a, b *mesh.Data) {
	t.Helper()
	if a.OriginX != b.OriginX || a.OriginZ != b.OriginZ || a.Size != b.Size || a.Segments != b.Segments {
		t.Fatalf("header mismatch: %+v vs %+v", a, b)
	}
	if len(a.Heights) != len(b.Heights) {
		t.Fatalf("height grid length mismatch: %d vs %d", len(a.Heights), len(b.Heights))
	}
	for i := range a.Heights {
		if a.Heights[i] != b.Heights[i] {
			t.Fatalf("height %d mismatch", i)
		}
	}
	for i := range a.Positions {
		if a.Positions[i] != b.Positions[i] {
			t.Fatalf("position float %d mismatch", i)
		}
	}
	for i := range a.Normals {
		if a.Normals[i] != b.Normals[i] {
			t.Fatalf("normal float %d mismatch", i)
		}
	}
	for i := range a.UVs {
		if a.UVs[i] != b.UVs[i] {
			t.Fatalf("uv float %d mismatch", i)
		}
	}
	for i := range a.Indices {
		if a.Indices[i] != b.Indices[i] {
			t.Fatalf("index %d mismatch", i)
		}
	}
}

func TestMeshCodecRoundTrip(t *testing.T) {
	original := testMesh(t)

	decoded, err := DecodeMesh(EncodeMesh(original))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meshesEqual(t, original, decoded)
}

func TestDecodeMeshRejectsGarbage(t *testing.T) {
	if _, err := DecodeMesh([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated input")
	}
	if _, err := DecodeMesh(make([]byte, 64)); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeMeshRejectsTruncatedBuffers(t *testing.T) {
	full := EncodeMesh(testMesh(t))
	if _, err := DecodeMesh(full[:len(full)/2]); err == nil {
		t.Fatal("expected error for truncated mesh")
	}
}

func TestPackMeshCompressed(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	original := testMesh(t)

	payload := PackMesh(original, c)
	if payload.Encoding != "zstd" {
		t.Fatalf("expected zstd encoding, got %q", payload.Encoding)
	}
	if len(payload.Data) >= len(EncodeMesh(original)) {
		t.Fatalf("compressed payload not smaller: %d bytes", len(payload.Data))
	}

	decoded, err := UnpackMesh(payload, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meshesEqual(t, original, decoded)
}

func TestPackMeshRaw(t *testing.T) {
	original := testMesh(t)
	payload := PackMesh(original, nil)
	if payload.Encoding != "raw" {
		t.Fatalf("expected raw encoding, got %q", payload.Encoding)
	}
	decoded, err := UnpackMesh(payload, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meshesEqual(t, original, decoded)
}

func TestUnpackMeshUnknownEncoding(t *testing.T) {
	if _, err := UnpackMesh(MeshPayload{Encoding: "gzip"}, nil); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
	if _, err := UnpackMesh(MeshPayload{Encoding: "zstd"}, nil); err == nil {
		t.Fatal("expected error for zstd payload without compressor")
	}
}

func TestDecodeBase(t *testing.T) {
	base, err := DecodeBase([]byte(`{"type":"camera","x":1,"z":2}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Type != TypeCamera {
		t.Fatalf("expected camera type, got %q", base.Type)
	}

	if _, err := DecodeBase([]byte(`{}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, err := DecodeBase([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
