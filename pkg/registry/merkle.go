package registry

import (
	"sort"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/merkle"
)

// MerkleProof is the registry's view of a membership proof: the leaf
// digest, the ordered sibling path, and the root it was generated
// against. It is a thin renaming of merkle.InclusionProof so registry
// callers never need to import pkg/merkle directly.
type MerkleProof = merkle.InclusionProof

// buildMerkle constructs a Merkle tree over the given entries' digests,
// sorted lexicographically by name. An empty entry
// set yields the canonical zero root rather than an error.
func buildMerkle(entries map[string]Record) (*merkle.Tree, []string, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	leaves := make([][]byte, len(names))
	for i, name := range names {
		d := entries[name].Digest
		leaves[i] = d[:]
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, nil, err
	}
	return tree, names, nil
}

// VerifyProof re-exports the stateless, constant-time proof verifier
// so callers outside this package can check a proof without holding a
// registry handle.
func VerifyProof(leafDigest [32]byte, proof *MerkleProof, expectedRoot [32]byte) (bool, error) {
	return merkle.VerifyProof(leafDigest[:], proof, expectedRoot[:])
}
