package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Codec packs and unpacks user values and on-disk node forms. It is a
// pluggable collaborator: the tree and store packages only ever see already
// packed bytes, and never interpret their contents.
type Codec interface {
	// Pack encodes v to bytes. Round-tripping through Pack then Unpack must
	// reproduce byte-identical output for byte-identical input.
	Pack(v []byte) []byte
	// Unpack decodes bytes produced by Pack.
	Unpack(bz []byte) ([]byte, error)
}

// RawCodec is the default Codec: a varint length prefix followed by the raw
// bytes, the same framing cosmosdb.go uses for leaf values and compact node
// fields. It exists so that packed forms are self-delimiting when
// concatenated inside a compact node tuple or a snapshot chunk.
type RawCodec struct{}

var _ Codec = RawCodec{}

func (RawCodec) Pack(v []byte) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(v))
	n := binary.PutUvarint(buf, uint64(len(v)))
	copy(buf[n:], v)
	return buf[:n+len(v)]
}

func (RawCodec) Unpack(bz []byte) ([]byte, error) {
	r := bytes.NewReader(bz)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading packed length: %w", err)
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("reading packed bytes: length %d exceeds remaining %d bytes", n, r.Len())
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("reading packed bytes: %w", err)
	}
	return out, nil
}

// WriteBytes writes a varint length prefix followed by b, the framing used
// throughout the compact node encoding in tree/compact.go.
func WriteBytes(buf *bytes.Buffer, b []byte) {
	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], uint64(len(b)))
	buf.Write(varintBuf[:n])
	buf.Write(b)
}

// ReadBytes is the inverse of WriteBytes.
func ReadBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("reading %d bytes: length exceeds remaining %d bytes", n, r.Len())
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("reading %d bytes: %w", n, err)
		}
	}
	return out, nil
}
