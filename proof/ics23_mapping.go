package proof

import "iavlplus/codec"

// HashOp and LengthOp mirror the enum roles ics23's ProofSpec uses; only
// the SHA-256 / fixed-32-byte variants this tree ever produces are named
// here. This package does not import cosmos/ics23 — see the design notes
// for why its ProofSpec cannot express a per-leaf prefix.
type HashOp int

const HashOpSHA256 HashOp = 1

// LeafOp mirrors ics23's LeafOp: how to fold a (key, value) pair into a
// leaf hash. Prefix varies per leaf here (u32be(version)), which is the
// reason this tree cannot be described by one tree-wide ics23 ProofSpec.
type LeafOp struct {
	Hash   HashOp
	Prefix []byte // u32be(leaf.version)
}

// Apply computes the leaf hash this LeafOp describes, for cross-checking
// against codec.LeafHash.
func (op LeafOp) Apply(key, value []byte) [codec.HashSize]byte {
	return codec.SHA256(op.Prefix, key, value)
}

// InnerOp mirrors ics23's InnerOp: how to fold a child hash with its
// sibling into a parent hash. Prefix is u32be(version) alone (sibling on
// the right, suffix carries its hash) or u32be(version)||leftSiblingHash
// (sibling on the left, no suffix).
type InnerOp struct {
	Hash   HashOp
	Prefix []byte
	Suffix []byte
}

func (op InnerOp) Apply(childHash []byte) [codec.HashSize]byte {
	return codec.SHA256(op.Prefix, childHash, op.Suffix)
}

// ToInnerOps converts an ExistenceProof's branch steps into the ics23-shaped
// InnerOp sequence described in spec §4.7 "External proof-spec mapping",
// for interop with tooling that expects that binary shape.
func ToInnerOps(p *ExistenceProof) []InnerOp {
	ops := make([]InnerOp, len(p.Branches))
	for i, b := range p.Branches {
		versionPrefix := codec.U32BE(b.Version)
		if b.Left != nil {
			ops[i] = InnerOp{Hash: HashOpSHA256, Prefix: append(append([]byte{}, versionPrefix...), b.Left...), Suffix: nil}
		} else {
			ops[i] = InnerOp{Hash: HashOpSHA256, Prefix: versionPrefix, Suffix: b.Right}
		}
	}
	return ops
}

// ToLeafOp converts an ExistenceProof's leaf step into the ics23-shaped
// LeafOp.
func ToLeafOp(p *ExistenceProof) LeafOp {
	return LeafOp{Hash: HashOpSHA256, Prefix: codec.U32BE(p.Leaf.Version)}
}
