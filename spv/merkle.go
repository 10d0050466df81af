package spv

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// maxProofDepth bounds the path so that every index is representable in a
// uint64.
const maxProofDepth = 64

// MerkleProof is an audit path from a leaf to the root of a Bitcoin merkle
// tree. Path is ordered from the leaf level upward.
type MerkleProof struct {
	Leaf  chainhash.Hash
	Path  []chainhash.Hash
	Index uint64
}

// Verify reports whether the proof hashes up to root.
func (p *MerkleProof) Verify(root chainhash.Hash) (bool, error) {
	return VerifyInclusion(p.Leaf, p.Path, p.Index, root)
}

// ComputeRoot walks the path from leaf to root. At each level the low bit of
// index says whether the running hash is the right operand.
func ComputeRoot(leaf chainhash.Hash, path []chainhash.Hash, index uint64) (chainhash.Hash, error) {
	if len(path) > maxProofDepth {
		return chainhash.Hash{}, fmt.Errorf("%w: path has %d levels", ErrProofLengthMismatch, len(path))
	}
	if len(path) < maxProofDepth && index>>uint(len(path)) != 0 {
		return chainhash.Hash{}, fmt.Errorf("%w: index %d out of range for %d levels", ErrProofLengthMismatch, index, len(path))
	}

	cur := leaf
	for i := range path {
		if index&1 == 0 {
			cur = blockchain.HashMerkleBranches(&cur, &path[i])
		} else {
			cur = blockchain.HashMerkleBranches(&path[i], &cur)
		}
		index >>= 1
	}
	return cur, nil
}

// VerifyInclusion recomputes the root from leaf and compares it to
// expectedRoot. A mismatch is (false, nil); only a path that cannot address
// index is an error.
func VerifyInclusion(leaf chainhash.Hash, path []chainhash.Hash, index uint64, expectedRoot chainhash.Hash) (bool, error) {
	root, err := ComputeRoot(leaf, path, index)
	if err != nil {
		return false, err
	}
	return root.IsEqual(&expectedRoot), nil
}

// BuildMerkleProof builds the audit path for leaves[index] and returns it
// with the tree root. The last node of an odd-sized level is paired with
// itself, so its sibling in the path is its own hash.
func BuildMerkleProof(leaves []chainhash.Hash, index int) ([]chainhash.Hash, chainhash.Hash, error) {
	if len(leaves) == 0 {
		return nil, chainhash.Hash{}, fmt.Errorf("%w: no leaves", ErrMalformedInput)
	}
	if index < 0 || index >= len(leaves) {
		return nil, chainhash.Hash{}, fmt.Errorf("%w: index %d out of range for %d leaves", ErrMalformedInput, index, len(leaves))
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)

	var path []chainhash.Hash
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		path = append(path, level[sibling])

		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := i + 1
			if right == len(level) {
				right = i
			}
			next = append(next, blockchain.HashMerkleBranches(&level[i], &level[right]))
		}
		level = next
		index /= 2
	}

	return path, level[0], nil
}
