// Package codec provides the fixed-width encodings and the tagged SHA-256
// hashing scheme shared by the store and tree packages, along with the
// pluggable packing format used for leaf values and on-disk node forms.
package codec

import "crypto/sha256"

// HashSize is the fixed width of every node hash in the tree.
const HashSize = 32

// U32BE encodes n as 4 big-endian bytes. The encoding is unambiguous and
// fixed-width for any n, since n is already a uint32.
func U32BE(n uint32) []byte {
	return []byte{
		byte(n >> 24),
		byte(n >> 16),
		byte(n >> 8),
		byte(n),
	}
}

// U32BEDecode is the inverse of U32BE.
func U32BEDecode(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// SHA256 hashes the concatenation of parts, in order.
func SHA256(parts ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LeafHash computes Leaf.hash = SHA256(u32be(version) || key || value).
func LeafHash(version uint32, key, value []byte) [HashSize]byte {
	return SHA256(U32BE(version), key, value)
}

// BranchHash computes Branch.hash = SHA256(u32be(version) || leftHash || rightHash).
func BranchHash(version uint32, leftHash, rightHash []byte) [HashSize]byte {
	return SHA256(U32BE(version), leftHash, rightHash)
}
