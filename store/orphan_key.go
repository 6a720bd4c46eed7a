package store

import "iavlplus/codec"

// orphanKeySize is toVersion(4) || fromVersion(4) || hash(32), per spec §3.1.
const orphanKeySize = 4 + 4 + codec.HashSize

// encodeOrphanKey builds the composite orphans-table key with toVersion
// leading, so that range scans over the obsolescence window [fromV, toV]
// are a single bytewise prefix scan (§4.5, §9 "orphan windowing").
func encodeOrphanKey(toVersion, fromVersion uint32, hash []byte) []byte {
	key := make([]byte, 0, orphanKeySize)
	key = append(key, codec.U32BE(toVersion)...)
	key = append(key, codec.U32BE(fromVersion)...)
	key = append(key, hash...)
	return key
}

func decodeOrphanKey(key []byte) (toVersion, fromVersion uint32, hash []byte) {
	toVersion = codec.U32BEDecode(key[0:4])
	fromVersion = codec.U32BEDecode(key[4:8])
	hash = key[8:orphanKeySize]
	return
}
