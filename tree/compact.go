package tree

import (
	"bytes"
	"fmt"
	"io"

	"iavlplus/codec"
)

// Compact tuple arities distinguish Leaf from Branch (spec §4.3): a Leaf is
// [key, value, version], a Branch is [key, version, leftHeight, rightHeight,
// leftHash, rightHash]. The arity is written as a leading byte so the
// decoder does not need external context to tell them apart, and so a
// sequence of encoded forms can be parsed back-to-back without a separate
// length prefix (spec §4.8 snapshot chunks).
const (
	arityLeaf   = 3
	arityBranch = 6
)

// EncodeNode produces the compact on-disk form of a node (spec §4.3, §4.8).
func EncodeNode(n *Node) []byte {
	var buf bytes.Buffer
	if n.isLeaf {
		buf.WriteByte(arityLeaf)
		codec.WriteBytes(&buf, n.key)
		codec.WriteBytes(&buf, n.value)
		buf.Write(codec.U32BE(n.version))
		return buf.Bytes()
	}
	buf.WriteByte(arityBranch)
	codec.WriteBytes(&buf, n.key)
	buf.Write(codec.U32BE(n.version))
	buf.Write(codec.U32BE(uint32(n.leftHeight)))
	buf.Write(codec.U32BE(uint32(n.rightHeight)))
	lh := n.left.Hash()
	rh := n.right.Hash()
	buf.Write(lh[:])
	buf.Write(rh[:])
	return buf.Bytes()
}

// decodeNodeFields parses one compact form off r, leaving the node's hash
// and hashSet unset — the caller decides whether to trust an externally
// known hash (DecodeNode) or derive it from the decoded contents
// (DecodeNodeStream).
func decodeNodeFields(r *bytes.Reader) (*Node, error) {
	arityByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decoding node arity: %w", err)
	}

	switch arityByte {
	case arityLeaf:
		key, err := codec.ReadBytes(r)
		if err != nil {
			return nil, fmt.Errorf("decoding leaf key: %w", err)
		}
		value, err := codec.ReadBytes(r)
		if err != nil {
			return nil, fmt.Errorf("decoding leaf value: %w", err)
		}
		var versionBuf [4]byte
		if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
			return nil, fmt.Errorf("decoding leaf version: %w", err)
		}
		return &Node{
			isLeaf:  true,
			key:     key,
			value:   value,
			version: codec.U32BEDecode(versionBuf[:]),
		}, nil

	case arityBranch:
		key, err := codec.ReadBytes(r)
		if err != nil {
			return nil, fmt.Errorf("decoding branch key: %w", err)
		}
		var fixed [12]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			return nil, fmt.Errorf("decoding branch fixed fields: %w", err)
		}
		n := &Node{
			isLeaf:      false,
			key:         key,
			version:     codec.U32BEDecode(fixed[0:4]),
			leftHeight:  int32(codec.U32BEDecode(fixed[4:8])),
			rightHeight: int32(codec.U32BEDecode(fixed[8:12])),
		}
		var leftHash, rightHash [codec.HashSize]byte
		if _, err := io.ReadFull(r, leftHash[:]); err != nil {
			return nil, fmt.Errorf("decoding branch left hash: %w", err)
		}
		if _, err := io.ReadFull(r, rightHash[:]); err != nil {
			return nil, fmt.Errorf("decoding branch right hash: %w", err)
		}
		n.left = refOfHash(leftHash[:])
		n.right = refOfHash(rightHash[:])
		return n, nil

	default:
		return nil, fmt.Errorf("tree: unknown compact node arity %d", arityByte)
	}
}

// DecodeNode reconstructs a node from its compact form plus an externally
// known hash (its key in the nodes table) without fetching children;
// children remain unmaterialized NodeRefs resolved lazily on first access
// (spec §4.3).
func DecodeNode(data []byte, hash []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("tree: empty compact node form")
	}
	n, err := decodeNodeFields(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	copy(n.hash[:], hash)
	n.hashSet = true
	return n, nil
}

// DecodeNodeStream parses a back-to-back sequence of compact node forms —
// a snapshot chunk — deriving each node's hash from its own contents per
// invariant 3, since chunk data carries no separate hash index (spec
// §4.8 Apply).
func DecodeNodeStream(data []byte) ([]*Node, error) {
	r := bytes.NewReader(data)
	var nodes []*Node
	for r.Len() > 0 {
		n, err := decodeNodeFields(r)
		if err != nil {
			return nil, err
		}
		n.hash = n.computeHash()
		n.hashSet = true
		nodes = append(nodes, n)
	}
	return nodes, nil
}
