package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrphanKeyRoundTrip(t *testing.T) {
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	key := encodeOrphanKey(42, 7, hash)
	require.Len(t, key, orphanKeySize)

	toVersion, fromVersion, decodedHash := decodeOrphanKey(key)
	require.Equal(t, uint32(42), toVersion)
	require.Equal(t, uint32(7), fromVersion)
	require.Equal(t, hash, decodedHash)
}

func TestOrphanKeyOrdersByToVersionThenFromVersion(t *testing.T) {
	hash := make([]byte, 32)
	a := encodeOrphanKey(1, 5, hash)
	b := encodeOrphanKey(1, 6, hash)
	c := encodeOrphanKey(2, 0, hash)
	require.True(t, string(a) < string(b))
	require.True(t, string(b) < string(c))
}
