package mpf

import "testing"

func TestEmpty_Hash(t *testing.T) {
	if Empty.Hash() != EmptyHash {
		t.Errorf("Empty.Hash() = %s, want zero hash", Empty.Hash())
	}
}

func TestNewLeaf_HashIsPure(t *testing.T) {
	a := newLeaf(Blake2b256, []byte("key"), []byte("value"), nil)
	b := newLeaf(Blake2b256, []byte("key"), []byte("value"), nil)
	if a.Hash() != b.Hash() {
		t.Errorf("two leaves with identical key/value should hash identically")
	}
	c := newLeaf(Blake2b256, []byte("key"), []byte("other"), nil)
	if a.Hash() == c.Hash() {
		t.Errorf("leaves with different values should hash differently")
	}
}

func TestBranchNode_NonEmptyCountAndSoleChild(t *testing.T) {
	leaf := newLeaf(Blake2b256, []byte("k"), []byte("v"), nil)
	var children [16]ChildRef
	children[3] = InlineChild(leaf)
	b := newBranch(Blake2b256, nil, children)

	if got := b.nonEmptyCount(); got != 1 {
		t.Fatalf("nonEmptyCount() = %d, want 1", got)
	}
	nibble, ref := b.soleChild()
	if nibble != 3 {
		t.Errorf("soleChild nibble = %d, want 3", nibble)
	}
	if ref.Hash() != leaf.Hash() {
		t.Errorf("soleChild ref hash mismatch")
	}
}

func TestBranchNode_SoleChildPanicsWithoutExactlyOne(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected soleChild to panic on a branch with no children")
		}
	}()
	b := newBranch(Blake2b256, nil, [16]ChildRef{})
	b.soleChild()
}

func TestChildRef_EmptyEqualsZeroValue(t *testing.T) {
	if !EmptyChild.IsEmpty() {
		t.Errorf("EmptyChild.IsEmpty() should be true")
	}
	if EmptyChild.Hash() != EmptyHash {
		t.Errorf("EmptyChild.Hash() should be the zero hash")
	}
	if _, ok := EmptyChild.Inline(); ok {
		t.Errorf("EmptyChild.Inline() should report false")
	}
}

func TestChildRef_RefChildIsNotInline(t *testing.T) {
	ref := RefChild(Blake2b256([]byte("x")), 0)
	if ref.IsEmpty() {
		t.Errorf("a RefChild should not be IsEmpty")
	}
	if _, ok := ref.Inline(); ok {
		t.Errorf("a RefChild should not report Inline")
	}
}

func TestBranchNode_HashChangesWithPrefixOrChildren(t *testing.T) {
	leaf := newLeaf(Blake2b256, []byte("k"), []byte("v"), nil)
	var children [16]ChildRef
	children[0] = InlineChild(leaf)

	b1 := newBranch(Blake2b256, []Nibble{1, 2}, children)
	b2 := newBranch(Blake2b256, []Nibble{1, 3}, children)
	if b1.Hash() == b2.Hash() {
		t.Errorf("branches with different prefixes should hash differently")
	}

	var children2 [16]ChildRef
	children2[1] = InlineChild(leaf)
	b3 := newBranch(Blake2b256, []Nibble{1, 2}, children2)
	if b1.Hash() == b3.Hash() {
		t.Errorf("branches with children in different slots should hash differently")
	}
}
