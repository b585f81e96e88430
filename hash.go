package mpf

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash is a 32-byte digest: a node hash, a root hash, or a key's path.
type Hash [32]byte

// EmptyHash is the sentinel hash of the empty trie and of empty child
// slots. It is never produced by H itself.
var EmptyHash = Hash{}

// IsZero reports whether h is the all-zero sentinel hash.
func (h Hash) IsZero() bool { return h == EmptyHash }

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// String renders the hash as lowercase hex.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashFunc is the hash oracle H used throughout the trie. The default,
// Blake2b256, is the only instance spec.md requires; the function-value
// shape is kept pluggable because the teacher's hasher abstraction
// (database/mpt/hasher.go) shows this is how the lineage swaps hashing
// schemes, and a second scheme is a plausible, low-cost follow-up.
type HashFunc func(data []byte) Hash

// Blake2b256 is the default hash oracle: blake2b with a 32-byte digest.
func Blake2b256(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// hashWith applies the hash oracle h to the concatenation of parts. It is
// a free function rather than a method so that leaf/branch hash
// constructors read the same way the spec states them.
func hashWith(h HashFunc, parts ...[]byte) Hash {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return h(buf)
}

// pathOf returns the 64-nibble path of a key: H(key) read as hex nibbles,
// most-significant nibble first.
func pathOf(h HashFunc, key []byte) []Nibble {
	digest := h(key)
	return nibblesOf(digest)
}

// nibblesOf expands a 32-byte hash into 64 nibbles, most-significant
// nibble first.
func nibblesOf(digest Hash) []Nibble {
	out := make([]Nibble, 64)
	for i, b := range digest {
		out[2*i] = Nibble(b >> 4)
		out[2*i+1] = Nibble(b & 0x0F)
	}
	return out
}

// leafHash computes H(path ‖ H(value)), the hash of a leaf committing to
// its key through its full path and to its value through a pre-hash.
func leafHash(h HashFunc, path Hash, value []byte) Hash {
	valueHash := h(value)
	return hashWith(h, path[:], valueHash[:])
}

// HashNode recomputes a node's hash from scratch, independent of any
// value cached on the node itself. It is safe to call concurrently
// across independent subtrees: the single-in-flight-mutation rule
// (spec.md §5) guards against concurrent *mutation* of one Trie handle,
// not concurrent hashing of subtrees that have already been detached
// from it, which is exactly the case Save exploits to hash a batch of
// newly dirtied subtrees in parallel before writing any of them out.
func HashNode(h HashFunc, n Node) Hash {
	switch v := n.(type) {
	case *LeafNode:
		return leafHash(h, Hash(h(v.Key)), v.Value)
	case *BranchNode:
		return branchHash(h, v.Prefix, v.childHashes())
	default:
		return EmptyHash
	}
}

// branchHash computes H(packPrefix(prefix) ‖ merkleRootOf16(children)).
func branchHash(h HashFunc, prefix []Nibble, children [16]Hash) Hash {
	root := merkleRootOf16(h, children)
	packed := packPrefix(prefix)
	return hashWith(h, packed, root[:])
}

// merkleRootOf16 reduces 16 child-slot hashes to a single root using a
// fixed 4-level binary Merkle tree, combining pairs with H(a ‖ b). This is
// the "sparse Merkle of 16" substructure that lets a single-nibble step in
// a proof cost exactly 4 neighbor hashes.
func merkleRootOf16(h HashFunc, children [16]Hash) Hash {
	level := children[:]
	for len(level) > 1 {
		next := make([]Hash, len(level)/2)
		for i := range next {
			next[i] = hashWith(h, level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	return level[0]
}

// branchNeighbors computes the 4 sibling hashes a proof needs to rebuild
// a branch's Merkle-of-16 root given the hash of the child selected by
// nibble.
func branchNeighbors(h HashFunc, children [16]Hash, nibble Nibble) [4]Hash {
	level := children[:]
	idx := int(nibble)
	var out [4]Hash
	for l := 0; l < 4; l++ {
		out[l] = level[idx^1]
		next := make([]Hash, len(level)/2)
		for i := range next {
			next[i] = hashWith(h, level[2*i][:], level[2*i+1][:])
		}
		level = next
		idx /= 2
	}
	return out
}

// combineBranch folds a child's hash back up through 4 recorded sibling
// levels to rebuild the enclosing branch's Merkle-of-16 root. It is the
// inverse walk of branchNeighbors, used during proof verification.
func combineBranch(h HashFunc, neighbors [4]Hash, nibble Nibble, childHash Hash) Hash {
	idx := int(nibble)
	cur := childHash
	for l := 0; l < 4; l++ {
		sib := neighbors[l]
		if idx%2 == 0 {
			cur = hashWith(h, cur[:], sib[:])
		} else {
			cur = hashWith(h, sib[:], cur[:])
		}
		idx /= 2
	}
	return cur
}
