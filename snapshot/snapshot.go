// Package snapshot serializes a full tree version to a directory of
// content-hashed chunks plus a JSON descriptor, and restores a version
// from such a directory (spec §4.8), in the descriptor-plus-chunk-files
// style iavlx's WAL writer uses for its own directory layout.
package snapshot

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"iavlplus/store"
	"iavlplus/tree"
)

const FormatV1 = 1

const DefaultChunkSize = 10 * 1024 * 1024

var (
	// ErrUnknownFormat is returned by Apply for a descriptor whose format
	// tag this package does not recognize.
	ErrUnknownFormat = errors.New("snapshot: unknown format")
	// ErrVersionExists is returned by Apply when the destination store
	// already has the descriptor's version.
	ErrVersionExists = errors.New("snapshot: destination already has this version")
	// ErrNodeTooLarge is returned by Create when a single node's encoded
	// form exceeds the chunk size.
	ErrNodeTooLarge = errors.New("snapshot: node exceeds chunk size")
)

// Descriptor is the snapshot.json contents (spec §4.8).
type Descriptor struct {
	Version   int64    `json:"version"`
	RootHash  string   `json:"rootHash"` // base64
	Format    int      `json:"format"`
	Timestamp int64    `json:"timestamp"`
	Chunks    []string `json:"chunks"` // lowercase MD5 hex, one per chunk file
}

const descriptorFileName = "snapshot.json"

// Create implements spec §4.8 Create: resolves version's root hash, resets
// dir, pre-order traverses the tree packing compact node forms into
// chunkSize-bounded chunks, and writes the descriptor. now is a unix
// timestamp, supplied by the caller since this package never calls the
// clock itself.
func Create(t *tree.Tree, dir string, version int64, chunkSize int, now int64) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var desc *Descriptor
	err := t.Store().Transaction(func() error {
		rootHash, present, err := t.Store().GetVersion(version)
		if err != nil {
			return err
		}
		if !present {
			return fmt.Errorf("snapshot: version %d not found", version)
		}

		desc = &Descriptor{
			Version:   version,
			RootHash:  base64.StdEncoding.EncodeToString(rootHash),
			Format:    FormatV1,
			Timestamp: now,
		}

		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("resetting snapshot dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot dir: %w", err)
		}

		var chunk []byte
		flush := func() error {
			if len(chunk) == 0 {
				return nil
			}
			sum := md5.Sum(chunk)
			name := hex.EncodeToString(sum[:])
			if err := os.WriteFile(filepath.Join(dir, name), chunk, 0o644); err != nil {
				return fmt.Errorf("writing chunk %s: %w", name, err)
			}
			desc.Chunks = append(desc.Chunks, name)
			chunk = nil
			return nil
		}

		if len(rootHash) == 0 {
			return flush()
		}

		rootRef := tree.RefForHash(rootHash)
		_, walkErr := tree.Walk(t.Loader(), rootRef, func(encoded []byte) error {
			if len(encoded) > chunkSize {
				return ErrNodeTooLarge
			}
			if len(chunk)+len(encoded) > chunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
			chunk = append(chunk, encoded...)
			return nil
		})
		if walkErr != nil {
			return walkErr
		}
		return flush()
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, descriptorFileName), data, 0o644)
}

// Apply implements spec §4.8 Apply: reads the descriptor, rejects an
// already-present version, and replays every chunk's compact node forms
// into st, each preserved at its original recorded version so its hash
// stays identical (spec §9 "snapshot restoration preserves versions").
func Apply(st *store.Store, dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, descriptorFileName))
	if err != nil {
		return fmt.Errorf("reading descriptor: %w", err)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("parsing descriptor: %w", err)
	}
	if desc.Format != FormatV1 {
		return fmt.Errorf("%w: %d", ErrUnknownFormat, desc.Format)
	}

	return st.Transaction(func() error {
		_, present, err := st.GetVersion(desc.Version)
		if err != nil {
			return err
		}
		if present {
			return ErrVersionExists
		}

		rootHash, err := base64.StdEncoding.DecodeString(desc.RootHash)
		if err != nil {
			return fmt.Errorf("decoding root hash: %w", err)
		}
		if err := st.PutVersion(desc.Version, rootHash); err != nil {
			return err
		}

		for _, chunkName := range desc.Chunks {
			chunkData, err := os.ReadFile(filepath.Join(dir, chunkName))
			if err != nil {
				return fmt.Errorf("reading chunk %s: %w", chunkName, err)
			}
			if err := applyChunk(st, chunkData); err != nil {
				return fmt.Errorf("applying chunk %s: %w", chunkName, err)
			}
		}
		return nil
	})
}

func applyChunk(st *store.Store, data []byte) error {
	nodes, err := tree.DecodeNodeStream(data)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		hash := n.Hash()
		if err := st.PutNode(hash[:], tree.EncodeNode(n)); err != nil {
			return err
		}
	}
	return nil
}
