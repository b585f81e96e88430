package mpf

// Node is the tagged-variant interface implemented by the three trie node
// shapes: emptyNode, *LeafNode, *BranchNode. Every trie operation
// pattern-matches on the concrete type rather than relying on
// inheritance, following the style of database/mpt/nodes.go's Node
// interface (minus the account/extension shapes, which this simpler,
// two-leaf-shape trie does not need).
type Node interface {
	// Hash returns the node's cached hash. It is a pure function of the
	// subtree content (invariant I5) and is never recomputed lazily on
	// read: constructors that change content always refresh it.
	Hash() Hash

	// isNode is unexported so Node can only be implemented within this
	// package.
	isNode()
}

// emptyNode denotes an empty (sub-)trie. Its hash is the all-zero
// sentinel, never a real output of H.
type emptyNode struct{}

func (emptyNode) Hash() Hash { return EmptyHash }
func (emptyNode) isNode()    {}

// Empty is the canonical empty node value.
var Empty Node = emptyNode{}

// LeafNode holds a key/value pair. Suffix is the portion of H(key) not
// consumed by the chain of ancestor branch prefixes and selector nibbles
// above this leaf (invariant I2).
type LeafNode struct {
	Key    []byte
	Value  []byte
	Suffix []Nibble

	hash Hash
}

func (l *LeafNode) Hash() Hash { return l.hash }
func (*LeafNode) isNode()      {}

// newLeaf builds a LeafNode and computes its hash eagerly, so Hash stays
// a pure O(1) accessor afterward.
func newLeaf(h HashFunc, key, value []byte, suffix []Nibble) *LeafNode {
	path := h(key)
	return &LeafNode{
		Key:    append([]byte(nil), key...),
		Value:  append([]byte(nil), value...),
		Suffix: suffix,
		hash:   leafHash(h, path, value),
	}
}

// BranchNode splits navigation on one nibble, consuming a shared prefix
// first. At least two of its 16 Children must be non-empty (invariant
// I1); a branch that would retain fewer is collapsed by Delete.
type BranchNode struct {
	Prefix   []Nibble
	Children [16]ChildRef

	hash Hash
}

func (b *BranchNode) Hash() Hash { return b.hash }
func (*BranchNode) isNode()      {}

func (b *BranchNode) childHashes() [16]Hash {
	var out [16]Hash
	for i, c := range b.Children {
		out[i] = c.Hash()
	}
	return out
}

// nonEmptyCount returns how many of the branch's 16 slots are non-empty.
func (b *BranchNode) nonEmptyCount() int {
	n := 0
	for _, c := range b.Children {
		if c.kind != childEmpty {
			n++
		}
	}
	return n
}

// soleChild returns the nibble and content of the branch's only non-empty
// slot. It panics if the branch does not have exactly one; callers must
// check nonEmptyCount first.
func (b *BranchNode) soleChild() (Nibble, ChildRef) {
	if b.nonEmptyCount() != 1 {
		panic("mpf: soleChild called on branch without exactly one non-empty child")
	}
	for i, c := range b.Children {
		if c.kind != childEmpty {
			return Nibble(i), c
		}
	}
	panic("mpf: soleChild called on branch with no non-empty children")
}

// newBranch builds a BranchNode and computes its hash eagerly.
func newBranch(h HashFunc, prefix []Nibble, children [16]ChildRef) *BranchNode {
	b := &BranchNode{Prefix: prefix, Children: children}
	b.hash = branchHash(h, prefix, b.childHashes())
	return b
}

// childKind tags what a ChildRef currently holds.
type childKind byte

const (
	childEmpty childKind = iota
	childInline
	childRef
)

// ChildRef is a branch's child slot: Empty, Inline(owned node), or
// Ref(hash, size). A Ref slot never owns node memory; materialization
// (see Trie.resolveChild) replaces the slot's content but, since Go values are
// copied into the array by assignment, callers always do so by writing
// back a whole new ChildRef, not by mutating in place.
type ChildRef struct {
	kind childKind
	node Node // set when kind == childInline
	hash Hash // set when kind == childInline (cached) or childRef
	size int  // informational item count; 0 means "unknown"
}

// EmptyChild is the zero-value Empty slot.
var EmptyChild = ChildRef{kind: childEmpty}

// InlineChild wraps a fully materialized node as a child slot.
func InlineChild(n Node) ChildRef {
	return ChildRef{kind: childInline, node: n, hash: n.Hash()}
}

// RefChild wraps a hash reference to a child not currently in memory.
// size is purely informational (spec.md's Open Question on Ref.size);
// 0 means unknown. Nothing in this package reads or recomputes it.
func RefChild(hash Hash, size int) ChildRef {
	return ChildRef{kind: childRef, hash: hash, size: size}
}

// Hash returns the slot's hash regardless of whether it is materialized.
func (c ChildRef) Hash() Hash {
	switch c.kind {
	case childEmpty:
		return EmptyHash
	default:
		return c.hash
	}
}

// IsEmpty reports whether the slot holds no subtree.
func (c ChildRef) IsEmpty() bool { return c.kind == childEmpty }

// Inline reports whether the slot is already materialized, returning the
// node and true if so.
func (c ChildRef) Inline() (Node, bool) {
	if c.kind == childInline {
		return c.node, true
	}
	return nil, false
}
