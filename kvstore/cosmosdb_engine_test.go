package kvstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamespacedKey(t *testing.T) {
	require.Equal(t, []byte("nodes/abc"), namespacedKey([]byte("nodes"), []byte("abc")))
	require.Equal(t, []byte("nodes/"), namespacedKey([]byte("nodes"), nil))
}

func TestPrefixUpperBound(t *testing.T) {
	require.Equal(t, []byte("nodeu"), prefixUpperBound([]byte("nodet")))
	require.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
	require.Equal(t, []byte{0x01}, prefixUpperBound([]byte{0x00, 0xff}))
}

func TestPrefixUpperBoundCoversLongerKeys(t *testing.T) {
	prefix := []byte("nodes/")
	bound := prefixUpperBound(prefix)
	require.True(t, bytes.Compare(prefix, bound) < 0)
	require.True(t, bytes.Compare(append(append([]byte{}, prefix...), 0xff), bound) < 0)
}
