package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"iavlplus/codec"
)

func TestEncodeDecodeLeafRoundTrip(t *testing.T) {
	n := &Node{isLeaf: true, key: []byte("key1"), value: []byte("value1"), version: 5}
	encoded := EncodeNode(n)

	hash := codec.LeafHash(n.version, n.key, n.value)
	decoded, err := DecodeNode(encoded, hash[:])
	require.NoError(t, err)
	require.True(t, decoded.isLeaf)
	require.Equal(t, n.key, decoded.key)
	require.Equal(t, n.value, decoded.value)
	require.Equal(t, n.version, decoded.version)
	require.Equal(t, hash, decoded.hash)
	require.True(t, decoded.hashSet)
}

func TestEncodeDecodeBranchRoundTrip(t *testing.T) {
	leftHash := codec.SHA256([]byte("left"))
	rightHash := codec.SHA256([]byte("right"))
	n := &Node{
		isLeaf: false, key: []byte("split"), version: 9,
		leftHeight: 2, rightHeight: 1,
		left: refOfHash(leftHash[:]), right: refOfHash(rightHash[:]),
	}
	encoded := EncodeNode(n)

	hash := codec.BranchHash(n.version, leftHash[:], rightHash[:])
	decoded, err := DecodeNode(encoded, hash[:])
	require.NoError(t, err)
	require.False(t, decoded.isLeaf)
	require.Equal(t, n.key, decoded.key)
	require.Equal(t, n.version, decoded.version)
	require.Equal(t, n.leftHeight, decoded.leftHeight)
	require.Equal(t, n.rightHeight, decoded.rightHeight)
	require.Equal(t, leftHash, decoded.left.Hash())
	require.Equal(t, rightHash, decoded.right.Hash())
}

func TestDecodeNodeRejectsEmptyInput(t *testing.T) {
	_, err := DecodeNode(nil, make([]byte, 32))
	require.Error(t, err)
}

func TestDecodeNodeRejectsTruncatedLeaf(t *testing.T) {
	n := &Node{isLeaf: true, key: []byte("key1"), value: []byte("value1"), version: 5}
	encoded := EncodeNode(n)

	hash := codec.LeafHash(n.version, n.key, n.value)
	_, err := DecodeNode(encoded[:len(encoded)-2], hash[:])
	require.Error(t, err)
}

func TestDecodeNodeRejectsTruncatedBranch(t *testing.T) {
	leftHash := codec.SHA256([]byte("left"))
	rightHash := codec.SHA256([]byte("right"))
	n := &Node{
		isLeaf: false, key: []byte("split"), version: 9,
		leftHeight: 2, rightHeight: 1,
		left: refOfHash(leftHash[:]), right: refOfHash(rightHash[:]),
	}
	encoded := EncodeNode(n)

	hash := codec.BranchHash(n.version, leftHash[:], rightHash[:])
	_, err := DecodeNode(encoded[:len(encoded)-5], hash[:])
	require.Error(t, err)
}

func TestDecodeNodeStreamDerivesHashFromContent(t *testing.T) {
	leaf1 := &Node{isLeaf: true, key: []byte("a"), value: []byte("1"), version: 1}
	leaf2 := &Node{isLeaf: true, key: []byte("b"), value: []byte("2"), version: 2}

	var data []byte
	data = append(data, EncodeNode(leaf1)...)
	data = append(data, EncodeNode(leaf2)...)

	nodes, err := DecodeNodeStream(data)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	wantHash1 := codec.LeafHash(leaf1.version, leaf1.key, leaf1.value)
	wantHash2 := codec.LeafHash(leaf2.version, leaf2.key, leaf2.value)
	require.Equal(t, wantHash1, nodes[0].hash)
	require.Equal(t, wantHash2, nodes[1].hash)
	require.True(t, nodes[0].hashSet)
	require.True(t, nodes[1].hashSet)
}

func TestDecodeNodeStreamMixedArities(t *testing.T) {
	leaf := &Node{isLeaf: true, key: []byte("a"), value: []byte("1"), version: 1}
	leftHash := codec.LeafHash(leaf.version, leaf.key, leaf.value)
	rightHash := codec.SHA256([]byte("other"))
	branch := &Node{
		isLeaf: false, key: []byte("a"), version: 2,
		leftHeight: 0, rightHeight: 0,
		left: refOfHash(leftHash[:]), right: refOfHash(rightHash[:]),
	}

	var data []byte
	data = append(data, EncodeNode(leaf)...)
	data = append(data, EncodeNode(branch)...)

	nodes, err := DecodeNodeStream(data)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.True(t, nodes[0].isLeaf)
	require.False(t, nodes[1].isLeaf)
	wantBranchHash := codec.BranchHash(branch.version, leftHash[:], rightHash[:])
	require.Equal(t, wantBranchHash, nodes[1].hash)
}
