package mpf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"

	"github.com/patriciaforestry/mpf/internal/pagelog"
)

// Store is the external collaborator a Trie persists through: a flat,
// content-addressed blob store keyed by 32-byte hash. It is declared
// here, in the package that consumes it, so that concrete
// implementations (see the store subpackage) depend on mpf rather than
// the other way around.
//
//go:generate mockgen -source trie.go -destination store_mocks_test.go -package mpf
type Store interface {
	Get(ctx context.Context, key Hash) ([]byte, bool, error)
	Put(ctx context.Context, key Hash, value []byte) error
	Delete(ctx context.Context, key Hash) error
	Exists(ctx context.Context, key Hash) (bool, error)
	Batch(ctx context.Context, ops []Op) error
}

// Op is one write in a Batch call: a Delete if Tombstone is set,
// otherwise a Put of Value.
type Op struct {
	Key       Hash
	Value     []byte
	Tombstone bool
}

// RootKey is the reserved store key under which a Trie's current root
// hash is kept, chosen so it can never collide with a content-addressed
// node hash: it is the ASCII text "__root__" followed by zero padding,
// not the output of any hash oracle.
var RootKey = func() Hash {
	var h Hash
	copy(h[:], []byte("__root__"))
	return h
}()

// Trie is a Merkle Patricia Forestry: a radix-16 trie over 64-nibble key
// paths, authenticated by a Merkle-of-16 reduction at every branch.
// Mirroring database/mpt's State, a Trie allows only one mutation
// in flight at a time; a second concurrent call observes
// ErrConcurrentMutation rather than blocking.
type Trie struct {
	store  Store
	root   Node
	config Config

	mutating atomic.Bool

	saveProgress *pagelog.Progress
}

// EnableSaveProgress turns on elapsed-time progress logging for Save,
// summarizing throughput every window flushed nodes. It is meant for
// bulk imports where a Save call may flush a large number of nodes at
// once; ordinary interactive use has no need for it.
//
// Log lines are tagged with t.config.Name so that a process driving
// several named tries can tell their progress output apart, and written
// to out; out may be nil, in which case they go to os.Stderr.
func (t *Trie) EnableSaveProgress(window int, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	t.saveProgress = pagelog.NewWithOutput(t.config.Name, out).NewProgress("flushed %d nodes (%.2f nodes/s)", window)
}

// New returns an empty Trie backed by store.
func New(store Store, cfg Config) *Trie {
	return &Trie{store: store, root: Empty, config: cfg}
}

// Load opens a Trie from its last saved root, or an empty Trie if store
// has never been written to. It decodes only the top-level node: the
// rest of the tree is paged in lazily as operations descend into it.
func Load(ctx context.Context, store Store, cfg Config) (*Trie, error) {
	raw, ok, err := store.Get(ctx, RootKey)
	if err != nil {
		return nil, fmt.Errorf("mpf: loading root pointer: %w: %v", ErrStoreUnavailable, err)
	}
	if !ok || len(raw) == 0 {
		return New(store, cfg), nil
	}
	if len(raw) != 32 {
		return nil, ErrCorruptNode
	}
	var rootHash Hash
	copy(rootHash[:], raw)
	if rootHash.IsZero() {
		return New(store, cfg), nil
	}

	h := cfg.hashFunc()
	data, ok, err := store.Get(ctx, rootHash)
	if err != nil {
		return nil, fmt.Errorf("mpf: loading root node: %w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrCorruptNode
	}
	decoded, err := DecodeNode(data)
	if err != nil {
		return nil, err
	}

	var root Node
	switch d := decoded.(type) {
	case *decodedLeaf:
		path := pathOf(h, d.Key)
		root = newLeaf(h, d.Key, d.Value, path)
	case *decodedBranch:
		root = newBranch(h, d.Prefix, d.Children)
	default:
		return nil, ErrCorruptNode
	}
	if root.Hash() != rootHash {
		return nil, ErrCorruptNode
	}
	return &Trie{store: store, root: root, config: cfg}, nil
}

// Root returns the trie's current root hash without touching the store.
func (t *Trie) Root() Hash { return t.root.Hash() }

// Hash is an alias for Root, named to match the diagnostic accessor
// vocabulary of database/mpt/verification.go.
func (t *Trie) Hash() Hash { return t.Root() }

// Stats is a snapshot of a trie's currently materialized shape, useful
// for sanity-checking a trie without a debugger.
type Stats struct {
	Leaves   int
	Branches int
	// MaxDepth is the deepest nibble depth reached among materialized
	// leaves and the leading edge of any un-paged Ref child.
	MaxDepth int
}

// Stats walks the currently materialized portion of the trie and reports
// its shape. It never touches the store: a Ref child that has not been
// paged in contributes its own depth to MaxDepth but is not descended
// into.
func (t *Trie) Stats() Stats {
	var s Stats
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		switch v := n.(type) {
		case emptyNode:
		case *LeafNode:
			s.Leaves++
			if depth > s.MaxDepth {
				s.MaxDepth = depth
			}
		case *BranchNode:
			s.Branches++
			childDepth := depth + len(v.Prefix) + 1
			for _, c := range v.Children {
				if c.IsEmpty() {
					continue
				}
				if child, ok := c.Inline(); ok {
					walk(child, childDepth)
				} else if childDepth > s.MaxDepth {
					s.MaxDepth = childDepth
				}
			}
		}
	}
	walk(t.root, 0)
	return s
}

func (t *Trie) beginMutation() error {
	if !t.mutating.CompareAndSwap(false, true) {
		return ErrConcurrentMutation
	}
	return nil
}

func (t *Trie) endMutation() { t.mutating.Store(false) }

// resolveChild materializes a child slot into a Node. An Inline slot is
// returned as-is; a Ref slot is fetched from the store, decoded, and its
// hash re-verified against the stored pointer before being trusted.
// depth is the child's nibble depth from the trie root, used to
// reconstruct a leaf's Suffix, which is never itself persisted.
func (t *Trie) resolveChild(ctx context.Context, ref ChildRef, depth int) (Node, error) {
	if n, ok := ref.Inline(); ok {
		return n, nil
	}
	if ref.IsEmpty() {
		return Empty, nil
	}

	data, ok, err := t.store.Get(ctx, ref.hash)
	if err != nil {
		return nil, fmt.Errorf("mpf: fetching node %s: %w: %v", ref.hash, ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrCorruptNode
	}
	decoded, err := DecodeNode(data)
	if err != nil {
		return nil, err
	}

	h := t.config.hashFunc()
	switch d := decoded.(type) {
	case *decodedLeaf:
		leafPath := pathOf(h, d.Key)
		if depth > len(leafPath) {
			return nil, ErrCorruptNode
		}
		leaf := newLeaf(h, d.Key, d.Value, cloneNibbles(leafPath[depth:]))
		if leaf.Hash() != ref.hash {
			return nil, ErrCorruptNode
		}
		return leaf, nil
	case *decodedBranch:
		branch := newBranch(h, d.Prefix, d.Children)
		if branch.Hash() != ref.hash {
			return nil, ErrCorruptNode
		}
		return branch, nil
	default:
		return nil, ErrCorruptNode
	}
}

// Get looks up key, returning its value and true if present, or nil and
// false if absent. It never mutates the trie and is safe to call
// concurrently with itself (though not with a concurrent Insert/Delete
// touching overlapping storage, per the single-writer model).
func (t *Trie) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	h := t.config.hashFunc()
	path := pathOf(h, key)

	node := t.root
	depth := 0
	for {
		switch n := node.(type) {
		case emptyNode:
			return nil, false, nil
		case *LeafNode:
			if bytesEqual(n.Key, key) {
				return n.Value, true, nil
			}
			return nil, false, nil
		case *BranchNode:
			remaining := path[depth:]
			q := commonPrefixLength(n.Prefix, remaining)
			if q < len(n.Prefix) {
				return nil, false, nil
			}
			nibble := remaining[len(n.Prefix)]
			child := n.Children[nibble]
			if child.IsEmpty() {
				return nil, false, nil
			}
			depth += len(n.Prefix) + 1
			resolved, err := t.resolveChild(ctx, child, depth)
			if err != nil {
				return nil, false, err
			}
			node = resolved
		default:
			return nil, false, fmt.Errorf("mpf: unknown node type %T: %w", n, ErrInvariantViolation)
		}
	}
}

// Insert sets key to value, creating it if absent or overwriting it if
// present.
func (t *Trie) Insert(ctx context.Context, key, value []byte) error {
	if err := t.beginMutation(); err != nil {
		return err
	}
	defer t.endMutation()

	h := t.config.hashFunc()
	path := pathOf(h, key)
	newRoot, err := t.insert(ctx, t.root, path, 0, key, value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) insert(ctx context.Context, node Node, path []Nibble, depth int, key, value []byte) (Node, error) {
	h := t.config.hashFunc()

	switch n := node.(type) {
	case emptyNode:
		return newLeaf(h, key, value, cloneNibbles(path[depth:])), nil

	case *LeafNode:
		if bytesEqual(n.Key, key) {
			return newLeaf(h, key, value, n.Suffix), nil
		}

		remaining := path[depth:]
		p := commonPrefixLength(n.Suffix, remaining)
		if p == len(n.Suffix) || p == len(remaining) {
			// Two distinct keys producing the same hash path below this
			// depth: H is assumed collision-free, so this can only mean
			// the store or caller violated that assumption.
			return nil, ErrInvariantViolation
		}

		existingNibble := n.Suffix[p]
		newNibble := remaining[p]
		existingLeaf := newLeaf(h, n.Key, n.Value, cloneNibbles(n.Suffix[p+1:]))
		newLeafNode := newLeaf(h, key, value, cloneNibbles(remaining[p+1:]))

		var children [16]ChildRef
		children[existingNibble] = InlineChild(existingLeaf)
		children[newNibble] = InlineChild(newLeafNode)
		return newBranch(h, cloneNibbles(remaining[:p]), children), nil

	case *BranchNode:
		remaining := path[depth:]
		q := commonPrefixLength(n.Prefix, remaining)

		if q < len(n.Prefix) {
			divergeNibble := n.Prefix[q]
			newNibble := remaining[q]
			demoted := newBranch(h, cloneNibbles(n.Prefix[q+1:]), n.Children)
			newLeafNode := newLeaf(h, key, value, cloneNibbles(remaining[q+1:]))

			var children [16]ChildRef
			children[divergeNibble] = InlineChild(demoted)
			children[newNibble] = InlineChild(newLeafNode)
			return newBranch(h, cloneNibbles(n.Prefix[:q]), children), nil
		}

		nibble := remaining[len(n.Prefix)]
		childDepth := depth + len(n.Prefix) + 1
		resolvedChild, err := t.resolveChild(ctx, n.Children[nibble], childDepth)
		if err != nil {
			return nil, err
		}
		newChild, err := t.insert(ctx, resolvedChild, path, childDepth, key, value)
		if err != nil {
			return nil, err
		}
		newChildren := n.Children
		newChildren[nibble] = InlineChild(newChild)
		return newBranch(h, n.Prefix, newChildren), nil

	default:
		return nil, fmt.Errorf("mpf: unknown node type %T: %w", n, ErrInvariantViolation)
	}
}

// Delete removes key if present. Deleting a key that is not present is a
// no-op, leaving the trie (and its root hash) unchanged; it is not an
// error (spec.md §4.4).
func (t *Trie) Delete(ctx context.Context, key []byte) error {
	if err := t.beginMutation(); err != nil {
		return err
	}
	defer t.endMutation()

	h := t.config.hashFunc()
	path := pathOf(h, key)
	newRoot, err := t.delete(ctx, t.root, path, 0, key)
	if err != nil {
		if err == ErrKeyAbsent {
			return nil
		}
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) delete(ctx context.Context, node Node, path []Nibble, depth int, key []byte) (Node, error) {
	h := t.config.hashFunc()

	switch n := node.(type) {
	case emptyNode:
		return nil, ErrKeyAbsent

	case *LeafNode:
		if !bytesEqual(n.Key, key) {
			return nil, ErrKeyAbsent
		}
		return Empty, nil

	case *BranchNode:
		remaining := path[depth:]
		q := commonPrefixLength(n.Prefix, remaining)
		if q < len(n.Prefix) {
			return nil, ErrKeyAbsent
		}
		nibble := remaining[len(n.Prefix)]
		child := n.Children[nibble]
		if child.IsEmpty() {
			return nil, ErrKeyAbsent
		}
		childDepth := depth + len(n.Prefix) + 1
		resolvedChild, err := t.resolveChild(ctx, child, childDepth)
		if err != nil {
			return nil, err
		}
		newChild, err := t.delete(ctx, resolvedChild, path, childDepth, key)
		if err != nil {
			return nil, err
		}

		newChildren := n.Children
		if _, empty := newChild.(emptyNode); empty {
			newChildren[nibble] = EmptyChild
		} else {
			newChildren[nibble] = InlineChild(newChild)
		}

		count := 0
		for _, c := range newChildren {
			if !c.IsEmpty() {
				count++
			}
		}
		if count == 0 {
			return Empty, nil
		}
		if count == 1 {
			var soleNibble Nibble
			var sole ChildRef
			for i, c := range newChildren {
				if !c.IsEmpty() {
					soleNibble, sole = Nibble(i), c
					break
				}
			}
			soleDepth := depth + len(n.Prefix) + 1
			resolvedSole, err := t.resolveChild(ctx, sole, soleDepth)
			if err != nil {
				return nil, err
			}
			switch sc := resolvedSole.(type) {
			case *LeafNode:
				mergedSuffix := append(append(cloneNibbles(n.Prefix), soleNibble), sc.Suffix...)
				return newLeaf(h, sc.Key, sc.Value, mergedSuffix), nil
			case *BranchNode:
				mergedPrefix := append(append(cloneNibbles(n.Prefix), soleNibble), sc.Prefix...)
				return newBranch(h, mergedPrefix, sc.Children), nil
			default:
				return nil, fmt.Errorf("mpf: unexpected sole child type %T: %w", sc, ErrInvariantViolation)
			}
		}
		return newBranch(h, n.Prefix, newChildren), nil

	default:
		return nil, fmt.Errorf("mpf: unknown node type %T: %w", n, ErrInvariantViolation)
	}
}

// ChildAt navigates to the node addressed by an explicit nibble prefix,
// independent of any particular key's hash path. It returns Empty if no
// node exists at that exact address.
func (t *Trie) ChildAt(ctx context.Context, prefix []Nibble) (Node, error) {
	node := t.root
	pos := 0
	for pos < len(prefix) {
		switch n := node.(type) {
		case emptyNode:
			return Empty, nil

		case *LeafNode:
			return Empty, nil

		case *BranchNode:
			available := prefix[pos:]
			q := commonPrefixLength(n.Prefix, available)
			if q < len(n.Prefix) {
				return Empty, nil
			}
			pos += len(n.Prefix)
			if pos == len(prefix) {
				return n, nil
			}
			nibble := prefix[pos]
			pos++
			child := n.Children[nibble]
			if child.IsEmpty() {
				return Empty, nil
			}
			resolved, err := t.resolveChild(ctx, child, pos)
			if err != nil {
				return nil, err
			}
			node = resolved

		default:
			return nil, fmt.Errorf("mpf: unknown node type %T: %w", n, ErrInvariantViolation)
		}
	}
	return node, nil
}

// FetchChildren eagerly materializes every Ref child down to depth
// nibbles from the root, trading memory for fewer round trips on
// subsequent operations that are known to touch that region of the
// tree.
func (t *Trie) FetchChildren(ctx context.Context, depth int) error {
	if err := t.beginMutation(); err != nil {
		return err
	}
	defer t.endMutation()

	newRoot, err := t.fetchChildren(ctx, t.root, 0, depth)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) fetchChildren(ctx context.Context, node Node, curDepth, target int) (Node, error) {
	b, ok := node.(*BranchNode)
	if !ok || curDepth >= target {
		return node, nil
	}

	childDepth := curDepth + len(b.Prefix) + 1
	newChildren := b.Children
	for i, c := range b.Children {
		if c.IsEmpty() {
			continue
		}
		resolved, err := t.resolveChild(ctx, c, childDepth)
		if err != nil {
			return nil, err
		}
		fetched, err := t.fetchChildren(ctx, resolved, childDepth, target)
		if err != nil {
			return nil, err
		}
		newChildren[i] = InlineChild(fetched)
	}
	return &BranchNode{Prefix: b.Prefix, Children: newChildren, hash: b.hash}, nil
}

// Save persists every materialized node reachable from the root,
// demoting each flushed subtree to a Ref child so memory is released,
// then writes the new root pointer. Save is idempotent: calling it again
// with nothing changed leaves the store's contents unchanged, though it
// re-writes the root node's blob (with identical bytes) along with the
// root pointer. Save does not check which nodes the store already holds:
// every materialized node, including one paged back in by FetchChildren,
// is written again.
func (t *Trie) Save(ctx context.Context) (Hash, error) {
	if err := t.beginMutation(); err != nil {
		return Hash{}, err
	}
	defer t.endMutation()

	blobs := map[Hash][]byte{}
	var mu sync.Mutex
	newRoot, err := t.save(ctx, t.root, blobs, &mu)
	if err != nil {
		return Hash{}, err
	}

	keys := maps.Keys(blobs)
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	if len(keys) > 0 {
		ops := make([]Op, 0, len(keys))
		for _, k := range keys {
			ops = append(ops, Op{Key: k, Value: blobs[k]})
		}
		if err := t.store.Batch(ctx, ops); err != nil {
			return Hash{}, fmt.Errorf("mpf: flushing nodes: %w: %v", ErrStoreUnavailable, err)
		}
		if t.saveProgress != nil {
			t.saveProgress.Step(len(ops))
		}
	}

	rootHash := newRoot.Hash()
	if err := t.store.Put(ctx, RootKey, rootHash[:]); err != nil {
		return Hash{}, fmt.Errorf("mpf: writing root pointer: %w: %v", ErrStoreUnavailable, err)
	}

	t.root = newRoot
	return rootHash, nil
}

// save flushes node and everything reachable from it into blobs, keyed by
// content hash, demoting every flushed Inline child to a Ref. Sibling
// subtrees hanging off the same branch share no state, so they are
// hashed and encoded concurrently via HashNode rather than one at a
// time; blobs and mu are shared across the whole recursive fan-out.
func (t *Trie) save(ctx context.Context, node Node, blobs map[Hash][]byte, mu *sync.Mutex) (Node, error) {
	h := t.config.hashFunc()

	switch n := node.(type) {
	case emptyNode:
		return Empty, nil

	case *LeafNode:
		putBlob(blobs, mu, n.hash, n)
		return n, nil

	case *BranchNode:
		newChildren := n.Children
		var wg sync.WaitGroup
		errs := make([]error, 16)
		for i, c := range n.Children {
			if c.kind != childInline {
				continue
			}
			i, c := i, c
			wg.Add(1)
			go func() {
				defer wg.Done()
				saved, err := t.save(ctx, c.node, blobs, mu)
				if err != nil {
					errs[i] = err
					return
				}
				newChildren[i] = RefChild(HashNode(h, saved), 0)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}

		branch := &BranchNode{Prefix: n.Prefix, Children: newChildren, hash: n.hash}
		putBlob(blobs, mu, branch.hash, branch)
		return branch, nil

	default:
		return nil, fmt.Errorf("mpf: unknown node type %T: %w", n, ErrInvariantViolation)
	}
}

func putBlob(blobs map[Hash][]byte, mu *sync.Mutex, key Hash, n Node) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := blobs[key]; !ok {
		blobs[key] = EncodeNode(n)
	}
}
