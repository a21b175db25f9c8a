package stream

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/tibogot/wawa-terrain/internal/mesh"
)

// meshMagic guards against decoding arbitrary bytes as a mesh.
const meshMagic = uint32(0x744d5348) // "tMSH"

// EncodeMesh serializes a chunk mesh into the compact little-endian wire
// form: header (magic, origin, size, segments) followed by the height grid
// and the vertex/index buffers, each length-prefixed.
func EncodeMesh(d *mesh.Data) []byte {
	size := 4 + 8*3 + 4 + // header
		4 + len(d.Heights)*8 +
		4 + len(d.Positions)*4 +
		4 + len(d.Normals)*4 +
		4 + len(d.UVs)*4 +
		4 + len(d.Indices)*4
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint32(buf, meshMagic)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(d.OriginX))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(d.OriginZ))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(d.Size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(d.Segments))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.Heights)))
	for _, h := range d.Heights {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(h))
	}
	buf = appendFloat32s(buf, d.Positions)
	buf = appendFloat32s(buf, d.Normals)
	buf = appendFloat32s(buf, d.UVs)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(d.Indices)))
	for _, idx := range d.Indices {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}
	return buf
}

func appendFloat32s(buf []byte, vals []float32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vals)))
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// DecodeMesh is the inverse of EncodeMesh.
func DecodeMesh(b []byte) (*mesh.Data, error) {
	r := &byteReader{buf: b}

	magic, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if magic != meshMagic {
		return nil, fmt.Errorf("decode mesh: bad magic %#x", magic)
	}

	d := &mesh.Data{}
	if d.OriginX, err = r.float64(); err != nil {
		return nil, err
	}
	if d.OriginZ, err = r.float64(); err != nil {
		return nil, err
	}
	if d.Size, err = r.float64(); err != nil {
		return nil, err
	}
	seg, err := r.uint32()
	if err != nil {
		return nil, err
	}
	d.Segments = int(seg)

	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n) * 8); err != nil {
		return nil, err
	}
	d.Heights = make([]float64, n)
	for i := range d.Heights {
		d.Heights[i], _ = r.float64()
	}

	if d.Positions, err = r.float32s(); err != nil {
		return nil, err
	}
	if d.Normals, err = r.float32s(); err != nil {
		return nil, err
	}
	if d.UVs, err = r.float32s(); err != nil {
		return nil, err
	}

	ni, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(ni) * 4); err != nil {
		return nil, err
	}
	d.Indices = make([]uint32, ni)
	for i := range d.Indices {
		d.Indices[i], _ = r.uint32()
	}

	return d, nil
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("decode mesh: truncated at offset %d (need %d of %d)", r.off, n, len(r.buf))
	}
	return nil
}

func (r *byteReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *byteReader) float64() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v, nil
}

func (r *byteReader) float32s() ([]float32, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n) * 4); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
		r.off += 4
	}
	return out, nil
}

// Compressor wraps a reusable zstd encoder/decoder pair for mesh payloads.
// Safe for concurrent use via EncodeAll/DecodeAll.
type Compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCompressor() (*Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &Compressor{enc: enc, dec: dec}, nil
}

func (c *Compressor) Compress(b []byte) []byte {
	return c.enc.EncodeAll(b, nil)
}

func (c *Compressor) Decompress(b []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// PackMesh builds the wire payload for one chunk mesh. A nil compressor
// sends the raw encoding.
func PackMesh(d *mesh.Data, c *Compressor) MeshPayload {
	raw := EncodeMesh(d)
	if c == nil {
		return MeshPayload{Encoding: "raw", Data: raw}
	}
	return MeshPayload{Encoding: "zstd", Data: c.Compress(raw)}
}

// UnpackMesh reverses PackMesh.
func UnpackMesh(p MeshPayload, c *Compressor) (*mesh.Data, error) {
	switch p.Encoding {
	case "raw":
		return DecodeMesh(p.Data)
	case "zstd":
		if c == nil {
			return nil, fmt.Errorf("unpack mesh: zstd payload without a compressor")
		}
		raw, err := c.Decompress(p.Data)
		if err != nil {
			return nil, err
		}
		return DecodeMesh(raw)
	default:
		return nil, fmt.Errorf("unpack mesh: unknown encoding %q", p.Encoding)
	}
}
