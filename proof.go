package mpf

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Step is one element of a Proof, ordered from the root down to the
// target location (the order Prove discovers them in; Verify walks them
// back to front). Grounded on spec.md §4.7's step taxonomy.
type Step interface {
	isStep()
}

// BranchStep is recorded at every branch the walk fully descends through:
// its Prefix is entirely consumed by the queried key's own path, so only
// its length (Skip) needs recording — the nibble values themselves are
// re-derived by the verifier from the key it already knows. Neighbors is
// the concatenation of the 4 sibling hashes needed to rebuild the
// branch's Merkle-of-16 root from the hash of the child on the path.
type BranchStep struct {
	Skip      int
	Neighbors [4]Hash
}

func (BranchStep) isStep() {}

// ForkStep is recorded when the walk diverges inside a branch's prefix:
// the key, if inserted, would split this branch before reaching its
// selector nibble. Skip is the number of matching nibbles before the
// divergence. Nibble and Prefix describe the one pre-existing subtree
// (the branch, demoted) that the verifier cannot otherwise derive, since
// it departs from the queried key's own path. Root is the branch's
// Merkle-of-16 root (invariant across how many prefix nibbles it is
// addressed by), not its final domain-separated hash.
type ForkStep struct {
	Skip   int
	Nibble Nibble
	Prefix []Nibble
	Root   Hash
}

func (ForkStep) isStep() {}

// LeafStep is recorded when the walk ends at an existing leaf whose key
// differs from the one being proven. Skip is the total depth (in
// nibbles) at which that leaf was reached. KeyPath is the neighbor
// leaf's full 64-nibble path (as a 32-byte hash) and ValueHash is
// H(neighbor.value); together they let the verifier compute that leaf's
// own hash, which it has no other way to learn.
type LeafStep struct {
	Skip      int
	KeyPath   Hash
	ValueHash Hash
}

func (LeafStep) isStep() {}

// Proof is the ordered list of steps encountered walking from the root of
// a trie to the location of a key. A Proof produced for a key the trie
// does not hold verifies both an inclusion claim against the root after
// the key is inserted with a given value, and an exclusion claim against
// the current root (spec.md §4.7's "dual semantics"). A Proof produced
// for a key the trie does hold reproduces the current root in inclusion
// mode; in exclusion mode it reproduces the root after Delete only when
// the key is the root leaf or its parent branch has at least two other
// children: Verify does not model the collapse Delete performs on a
// branch left with a single child.
type Proof struct {
	Steps []Step
}

// Size returns the proof's canonical binary encoding length in bytes,
// letting callers check spec.md's P5 bound (at most 64*(128+O(1))).
func (p Proof) Size() int { return len(mustMarshalBinary(p)) }

func mustMarshalBinary(p Proof) []byte {
	b, _ := p.MarshalBinary()
	return b
}

// Prove walks the trie from its root to the location addressed by key,
// recording the Merkle neighbors a verifier needs at each step. It
// materializes hash references along the way exactly like Get.
func (t *Trie) Prove(ctx context.Context, key []byte) (*Proof, error) {
	h := t.config.hashFunc()
	path := pathOf(h, key)

	var steps []Step
	depth := 0
	node := t.root

	for {
		switch n := node.(type) {
		case emptyNode:
			return &Proof{Steps: steps}, nil

		case *LeafNode:
			if bytesEqual(n.Key, key) {
				return &Proof{Steps: steps}, nil
			}
			neighborPath := h(n.Key)
			steps = append(steps, LeafStep{
				Skip:      depth,
				KeyPath:   neighborPath,
				ValueHash: h(n.Value),
			})
			return &Proof{Steps: steps}, nil

		case *BranchNode:
			remaining := path[depth:]
			q := commonPrefixLength(n.Prefix, remaining)
			if q < len(n.Prefix) {
				demotedPrefix := cloneNibbles(n.Prefix[q+1:])
				root := merkleRootOf16(h, n.childHashes())
				steps = append(steps, ForkStep{
					Skip:   q,
					Nibble: n.Prefix[q],
					Prefix: demotedPrefix,
					Root:   root,
				})
				return &Proof{Steps: steps}, nil
			}

			nibble := remaining[len(n.Prefix)]
			neighbors := branchNeighbors(h, n.childHashes(), nibble)
			steps = append(steps, BranchStep{Skip: len(n.Prefix), Neighbors: neighbors})
			depth += len(n.Prefix) + 1

			child := n.Children[nibble]
			if child.IsEmpty() {
				return &Proof{Steps: steps}, nil
			}
			resolved, err := t.resolveChild(ctx, child, depth)
			if err != nil {
				return nil, err
			}
			node = resolved

		default:
			return nil, fmt.Errorf("mpf: unknown node type %T: %w", n, ErrInvariantViolation)
		}
	}
}

// Verify reconstructs the root hash implied by the proof, either
// including (key, value) or excluding key, and returns it for the caller
// to compare against a known root. Verify is total: a structurally
// invalid proof yields ErrProofMalformed rather than panicking, and any
// other input simply produces a hash that will not match a genuine root.
func (p Proof) Verify(h HashFunc, key, value []byte, includingItem bool) (Hash, error) {
	if h == nil {
		h = Blake2b256
	}
	steps := p.Steps
	keyPath := nibblesOf(h(key))

	if len(steps) == 0 {
		if includingItem {
			return leafHash(h, Hash(h(key)), value), nil
		}
		return EmptyHash, nil
	}

	depths := make([]int, len(steps))
	depth := 0
	for i, s := range steps {
		depths[i] = depth
		bs, ok := s.(BranchStep)
		if !ok {
			if i != len(steps)-1 {
				return Hash{}, ErrProofMalformed
			}
			continue
		}
		if bs.Skip < 0 {
			return Hash{}, ErrProofMalformed
		}
		depth += bs.Skip + 1
	}

	last := steps[len(steps)-1]
	depthBeforeLast := depths[len(steps)-1]

	var cur Hash
	switch s := last.(type) {
	case BranchStep:
		if includingItem {
			cur = leafHash(h, Hash(h(key)), value)
		} else {
			cur = EmptyHash
		}
		if depthBeforeLast+s.Skip >= len(keyPath) {
			return Hash{}, ErrProofMalformed
		}
		nibble := keyPath[depthBeforeLast+s.Skip]
		merkleRoot := combineBranch(h, s.Neighbors, nibble, cur)
		prefix := keyPath[depthBeforeLast : depthBeforeLast+s.Skip]
		cur = branchHashFromRoot(h, prefix, merkleRoot)

	case ForkStep:
		if s.Skip < 0 || depthBeforeLast+s.Skip >= len(keyPath) || s.Nibble > 15 {
			return Hash{}, ErrProofMalformed
		}
		parentPrefix := keyPath[depthBeforeLast : depthBeforeLast+s.Skip]
		if includingItem {
			newNibbleIdx := depthBeforeLast + s.Skip
			if newNibbleIdx >= len(keyPath) {
				return Hash{}, ErrProofMalformed
			}
			newNibble := keyPath[newNibbleIdx]
			if newNibble == s.Nibble {
				return Hash{}, ErrProofMalformed
			}
			existingHash := branchHashFromRoot(h, s.Prefix, s.Root)
			newHash := leafHash(h, Hash(h(key)), value)
			var children [16]Hash
			children[s.Nibble] = existingHash
			children[newNibble] = newHash
			merkleRoot := merkleRootOf16(h, children)
			cur = branchHashFromRoot(h, parentPrefix, merkleRoot)
		} else {
			fullPrefix := append(append(cloneNibbles(parentPrefix), s.Nibble), s.Prefix...)
			cur = branchHashFromRoot(h, fullPrefix, s.Root)
		}

	case LeafStep:
		existingNibbles := nibblesOf(s.KeyPath)
		if s.Skip < 0 || s.Skip > len(existingNibbles) || s.Skip > len(keyPath) {
			return Hash{}, ErrProofMalformed
		}
		if includingItem {
			existingSuffix := existingNibbles[s.Skip:]
			newSuffix := keyPath[s.Skip:]
			p2 := commonPrefixLength(existingSuffix, newSuffix)
			if p2 >= len(existingSuffix) || p2 >= len(newSuffix) {
				return Hash{}, ErrProofMalformed
			}
			var children [16]Hash
			children[existingSuffix[p2]] = hashWith(h, s.KeyPath[:], s.ValueHash[:])
			children[newSuffix[p2]] = leafHash(h, Hash(h(key)), value)
			merkleRoot := merkleRootOf16(h, children)
			prefix := newSuffix[:p2]
			cur = branchHashFromRoot(h, prefix, merkleRoot)
		} else {
			cur = hashWith(h, s.KeyPath[:], s.ValueHash[:])
		}

	default:
		return Hash{}, ErrProofMalformed
	}

	for i := len(steps) - 2; i >= 0; i-- {
		bs, ok := steps[i].(BranchStep)
		if !ok {
			return Hash{}, ErrProofMalformed
		}
		db := depths[i]
		if db+bs.Skip >= len(keyPath) {
			return Hash{}, ErrProofMalformed
		}
		nibble := keyPath[db+bs.Skip]
		merkleRoot := combineBranch(h, bs.Neighbors, nibble, cur)
		prefix := keyPath[db : db+bs.Skip]
		cur = branchHashFromRoot(h, prefix, merkleRoot)
	}

	return cur, nil
}

// branchHashFromRoot combines a branch's already-reduced Merkle-of-16
// root with its prefix to produce the branch's final node hash, the
// second half of the two-stage computation spec.md §4.7's Verify
// description calls out explicitly.
func branchHashFromRoot(h HashFunc, prefix []Nibble, root Hash) Hash {
	packed := packPrefix(prefix)
	return hashWith(h, packed, root[:])
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------
// JSON encoding (spec.md §6: canonical proof encoding, byte fields as
// lowercase hex)
// ---------------------------------------------------------------------

type jsonStep struct {
	Type      string `json:"type"`
	Skip      int    `json:"skip"`
	Neighbors string `json:"neighbors,omitempty"`
	Neighbor  any    `json:"neighbor,omitempty"`
}

type jsonForkNeighbor struct {
	Nibble byte   `json:"nibble"`
	Prefix string `json:"prefix"`
	Root   string `json:"root"`
}

type jsonLeafNeighbor struct {
	KeyPath   string `json:"key_path"`
	ValueHash string `json:"value_hash"`
}

// MarshalJSON renders the proof as an ordered array of step objects.
func (p Proof) MarshalJSON() ([]byte, error) {
	out := make([]jsonStep, 0, len(p.Steps))
	for _, s := range p.Steps {
		switch v := s.(type) {
		case BranchStep:
			buf := make([]byte, 0, 128)
			for _, n := range v.Neighbors {
				buf = append(buf, n[:]...)
			}
			out = append(out, jsonStep{Type: "branch", Skip: v.Skip, Neighbors: hex.EncodeToString(buf)})
		case ForkStep:
			out = append(out, jsonStep{Type: "fork", Skip: v.Skip, Neighbor: jsonForkNeighbor{
				Nibble: byte(v.Nibble),
				Prefix: hex.EncodeToString(packPrefix(v.Prefix)),
				Root:   hex.EncodeToString(v.Root[:]),
			}})
		case LeafStep:
			out = append(out, jsonStep{Type: "leaf", Skip: v.Skip, Neighbor: jsonLeafNeighbor{
				KeyPath:   hex.EncodeToString(v.KeyPath[:]),
				ValueHash: hex.EncodeToString(v.ValueHash[:]),
			}})
		default:
			return nil, fmt.Errorf("mpf: unknown step type %T", s)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a proof serialized with MarshalJSON.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var raw []struct {
		Type      string          `json:"type"`
		Skip      int             `json:"skip"`
		Neighbors string          `json:"neighbors"`
		Neighbor  json.RawMessage `json:"neighbor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	steps := make([]Step, 0, len(raw))
	for _, r := range raw {
		switch r.Type {
		case "branch":
			buf, err := hex.DecodeString(r.Neighbors)
			if err != nil || len(buf) != 128 {
				return ErrProofMalformed
			}
			var n [4]Hash
			for i := range n {
				copy(n[i][:], buf[i*32:(i+1)*32])
			}
			steps = append(steps, BranchStep{Skip: r.Skip, Neighbors: n})
		case "fork":
			var fn jsonForkNeighbor
			if err := json.Unmarshal(r.Neighbor, &fn); err != nil {
				return err
			}
			packed, err := hex.DecodeString(fn.Prefix)
			if err != nil {
				return ErrProofMalformed
			}
			prefix, _, err := unpackPrefix(packed)
			if err != nil {
				return err
			}
			rootBytes, err := hex.DecodeString(fn.Root)
			if err != nil || len(rootBytes) != 32 {
				return ErrProofMalformed
			}
			var root Hash
			copy(root[:], rootBytes)
			steps = append(steps, ForkStep{Skip: r.Skip, Nibble: Nibble(fn.Nibble), Prefix: prefix, Root: root})
		case "leaf":
			var ln jsonLeafNeighbor
			if err := json.Unmarshal(r.Neighbor, &ln); err != nil {
				return err
			}
			kp, err := hex.DecodeString(ln.KeyPath)
			if err != nil || len(kp) != 32 {
				return ErrProofMalformed
			}
			vh, err := hex.DecodeString(ln.ValueHash)
			if err != nil || len(vh) != 32 {
				return ErrProofMalformed
			}
			var keyPath, valueHash Hash
			copy(keyPath[:], kp)
			copy(valueHash[:], vh)
			steps = append(steps, LeafStep{Skip: r.Skip, KeyPath: keyPath, ValueHash: valueHash})
		default:
			return ErrProofMalformed
		}
	}
	p.Steps = steps
	return nil
}

// ---------------------------------------------------------------------
// Binary encoding: a trivial concatenation of step records (fixed-size,
// except that a fork record's length depends on its prefix), supplementing spec.md §6's JSON form for size-sensitive callers (P5).
// ---------------------------------------------------------------------

const (
	binTagBranch byte = 0
	binTagFork   byte = 1
	binTagLeaf   byte = 2
)

// MarshalBinary encodes the proof as a compact sequence of step records;
// branch and leaf records are fixed-size, a fork record carries its
// packed prefix.
func (p Proof) MarshalBinary() ([]byte, error) {
	var out []byte
	for _, s := range p.Steps {
		switch v := s.(type) {
		case BranchStep:
			out = append(out, binTagBranch, byte(v.Skip))
			for _, n := range v.Neighbors {
				out = append(out, n[:]...)
			}
		case ForkStep:
			out = append(out, binTagFork, byte(v.Skip), byte(v.Nibble), byte(len(v.Prefix)))
			out = append(out, packPrefix(v.Prefix)[1:]...)
			out = append(out, v.Root[:]...)
		case LeafStep:
			out = append(out, binTagLeaf, byte(v.Skip))
			out = append(out, v.KeyPath[:]...)
			out = append(out, v.ValueHash[:]...)
		default:
			return nil, fmt.Errorf("mpf: unknown step type %T", s)
		}
	}
	return out, nil
}

// UnmarshalBinary parses a proof encoded with MarshalBinary.
func (p *Proof) UnmarshalBinary(data []byte) error {
	var steps []Step
	for len(data) > 0 {
		tag := data[0]
		data = data[1:]
		switch tag {
		case binTagBranch:
			if len(data) < 1+128 {
				return ErrProofMalformed
			}
			skip := int(data[0])
			data = data[1:]
			var n [4]Hash
			for i := range n {
				copy(n[i][:], data[i*32:(i+1)*32])
			}
			data = data[128:]
			steps = append(steps, BranchStep{Skip: skip, Neighbors: n})
		case binTagFork:
			if len(data) < 3 {
				return ErrProofMalformed
			}
			skip := int(data[0])
			nibble := Nibble(data[1])
			plen := int(data[2])
			data = data[3:]
			nBytes := (plen + 1) / 2
			if len(data) < nBytes+32 {
				return ErrProofMalformed
			}
			packed := append([]byte{byte(plen)}, data[:nBytes]...)
			prefix, _, err := unpackPrefix(packed)
			if err != nil {
				return err
			}
			data = data[nBytes:]
			var root Hash
			copy(root[:], data[:32])
			data = data[32:]
			steps = append(steps, ForkStep{Skip: skip, Nibble: nibble, Prefix: prefix, Root: root})
		case binTagLeaf:
			if len(data) < 1+64 {
				return ErrProofMalformed
			}
			skip := int(data[0])
			data = data[1:]
			var keyPath, valueHash Hash
			copy(keyPath[:], data[:32])
			copy(valueHash[:], data[32:64])
			data = data[64:]
			steps = append(steps, LeafStep{Skip: skip, KeyPath: keyPath, ValueHash: valueHash})
		default:
			return ErrProofMalformed
		}
	}
	p.Steps = steps
	return nil
}
