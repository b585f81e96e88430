// Package mpf implements a Merkle Patricia Forestry: a radix-16 Patricia
// trie mapping arbitrary byte keys to arbitrary byte values, where every
// branch node is itself a small Merkle tree over its 16 child slots. The
// whole mapping is committed to by a single 32-byte root hash, and a short,
// logarithmically-sized proof can convince a verifier that a key is present
// with a given value, or absent, without access to the full trie.
//
// A Trie owns its root node and a handle on a backing store (see the store
// package) used to page children in and out of memory. Mutating operations
// (Insert, Delete, Save) are not safe to call concurrently on the same
// handle; see the package-level documentation on ErrConcurrentMutation.
package mpf

/*

Package layout mirrors the separation of concerns this trie is built from:

  - hash.go, nibble.go    the hash oracle, nibble paths, and the Merkle-of-16
                          reduction used inside every branch node
  - node.go               the three node shapes and the Empty/Inline/Ref
                          child-slot union
  - encoding.go           the canonical persisted byte encoding of nodes
  - trie.go               Insert, Delete, Get, ChildAt, and the paging
                          operations (FetchChildren, Save, Load)
  - proof.go              the proof engine: Prove and dual-mode Verify
  - errors.go, config.go  sentinel errors and trie configuration

The store package is a separate, pluggable collaborator: this package only
depends on the narrow Store interface declared in trie.go.

*/
