package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/nahratzah/monsoon/txfile"
)

// splitResult is returned up the recursion spine when a page had to split:
// sepKey separates the original (left) page from the freshly allocated
// right page at off, whose folded augment is aug.
type splitResult[K, A any] struct {
	sepKey K
	off    int64
	aug    A
}

// Lookup returns the value visible to snapshot under key, if any.
//
// Keys are treated as unique: unlike the tree this package is grounded on,
// which supports an equal_range of several elements sharing a key, Lookup
// returns at most one match, the first visible element with an equal key.
func (t *Tree[K, V, A]) Lookup(tx *txfile.Tx, snapshot txfile.CommitID, key K) (V, bool, error) {
	var zero V
	if t.rootOff == 0 {
		return zero, false, nil
	}
	off := t.rootOff
	for {
		kind, err := t.pageKind(tx, off)
		if err != nil {
			return zero, false, err
		}
		if kind == pageTypeLeaf {
			leaf, err := t.loadLeaf(tx, off)
			if err != nil {
				return zero, false, err
			}
			t.latches.RLock(leaf.off)
			defer t.latches.RUnlock(leaf.off)
			for i := range leaf.elems {
				e := &leaf.elems[i]
				if e.visible(snapshot) && !t.cfg.Less(e.key, key) && !t.cfg.Less(key, e.key) {
					return e.val, true, nil
				}
			}
			return zero, false, nil
		}
		branch, err := t.loadBranch(tx, off)
		if err != nil {
			return zero, false, err
		}
		off = t.childFor(branch, key)
	}
}

// childFor returns the child offset holding key, per the standard B+-tree
// convention: children[i] covers keys < keys[i].
func (t *Tree[K, V, A]) childFor(p *branchPage[K, V, A], key K) int64 {
	t.latches.RLock(p.off)
	defer t.latches.RUnlock(p.off)
	idx := 0
	for idx < len(p.keys) && !t.cfg.Less(key, p.keys[idx]) {
		idx++
	}
	return p.children[idx].off
}

// ForEach visits every element visible to snapshot, in leaf-chain order.
func (t *Tree[K, V, A]) ForEach(tx *txfile.Tx, snapshot txfile.CommitID, fn func(K, V) error) error {
	return t.ForEachAugment(tx, snapshot, func(A) bool { return true }, fn)
}

// ForEachAugment visits every element visible to snapshot, pruning any
// branch subtree whose folded augment fails keep.
func (t *Tree[K, V, A]) ForEachAugment(tx *txfile.Tx, snapshot txfile.CommitID, keep func(A) bool, fn func(K, V) error) error {
	if t.rootOff == 0 {
		return nil
	}
	leaf, err := t.leftmostLeaf(tx, t.rootOff, keep)
	if err != nil {
		return err
	}
	for leaf != nil {
		t.latches.RLock(leaf.off)
		next := leaf.next
		elems := append([]elem[K, V](nil), leaf.elems...)
		t.latches.RUnlock(leaf.off)

		for _, e := range elems {
			if e.visible(snapshot) {
				if err := fn(e.key, e.val); err != nil {
					return err
				}
			}
		}
		if next == 0 {
			return nil
		}
		leaf, err = t.loadLeaf(tx, next)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree[K, V, A]) leftmostLeaf(tx *txfile.Tx, off int64, keep func(A) bool) (*leafPage[K, V, A], error) {
	for {
		kind, err := t.pageKind(tx, off)
		if err != nil {
			return nil, err
		}
		if kind == pageTypeLeaf {
			return t.loadLeaf(tx, off)
		}
		branch, err := t.loadBranch(tx, off)
		if err != nil {
			return nil, err
		}
		t.latches.RLock(branch.off)
		children := append([]child[A](nil), branch.children...)
		t.latches.RUnlock(branch.off)
		found := false
		for _, c := range children {
			if keep(c.aug) {
				off = c.off
				found = true
				break
			}
		}
		if !found {
			return nil, nil
		}
	}
}

// Insert adds (key, val) created at commit id created, unless an
// unerased element with an equal key already exists, in which case Insert
// is a no-op and reports existed=true.
func (t *Tree[K, V, A]) Insert(tx *txfile.Tx, created txfile.CommitID, key K, val V) (existed bool, err error) {
	if t.rootOff == 0 {
		root, err := t.newLeaf(tx)
		if err != nil {
			return false, err
		}
		if err := t.setRootOff(tx, root.off); err != nil {
			return false, err
		}
	}

	existed, rootAug, split, err := t.insertRecursive(tx, t.rootOff, created, key, val)
	if err != nil {
		return false, err
	}
	if split == nil {
		return existed, nil
	}

	newRoot, err := t.newBranch(tx)
	if err != nil {
		return false, err
	}
	newRoot.keys = []K{split.sepKey}
	newRoot.children = []child[A]{{off: t.rootOff, aug: rootAug}, {off: split.off, aug: split.aug}}
	if err := t.writeBranch(tx, newRoot); err != nil {
		return false, err
	}
	return existed, t.setRootOff(tx, newRoot.off)
}

func (t *Tree[K, V, A]) setRootOff(tx *txfile.Tx, off int64) error {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(off))
	if err := tx.WriteAt(16, buf); err != nil {
		return err
	}
	t.rootOff = off
	return nil
}

// insertRecursive returns whether an equal key already existed, the
// inserted-into subtree's post-insert augment, and a splitResult if the
// page at off had to split.
func (t *Tree[K, V, A]) insertRecursive(tx *txfile.Tx, off int64, created txfile.CommitID, key K, val V) (existed bool, aug A, split *splitResult[K, A], err error) {
	kind, err := t.pageKind(tx, off)
	if err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	if kind == pageTypeLeaf {
		return t.insertIntoLeaf(tx, off, created, key, val)
	}
	return t.insertIntoBranch(tx, off, created, key, val)
}

func (t *Tree[K, V, A]) insertIntoLeaf(tx *txfile.Tx, off int64, created txfile.CommitID, key K, val V) (existed bool, aug A, split *splitResult[K, A], err error) {
	leaf, err := t.loadLeaf(tx, off)
	if err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	t.latches.Lock(leaf.off)
	defer t.latches.Unlock(leaf.off)

	for i := range leaf.elems {
		e := &leaf.elems[i]
		if e.occupied && !e.erasedSet && !t.cfg.Less(e.key, key) && !t.cfg.Less(key, e.key) {
			return true, t.leafAugment(leaf), nil, nil
		}
	}

	freeIdx := -1
	for i := range leaf.elems {
		if !leaf.elems[i].occupied {
			freeIdx = i
			break
		}
	}

	if freeIdx >= 0 {
		// Occupied slots form a prefix kept in key order: shift larger keys
		// up one slot to make room.
		for freeIdx > 0 && t.cfg.Less(key, leaf.elems[freeIdx-1].key) {
			leaf.elems[freeIdx] = leaf.elems[freeIdx-1]
			freeIdx--
		}
		leaf.elems[freeIdx] = elem[K, V]{occupied: true, created: created, key: key, val: val}
		if err := t.writeLeaf(tx, leaf); err != nil {
			return false, t.cfg.ZeroAug, nil, err
		}
		return false, t.leafAugment(leaf), nil, nil
	}

	// Leaf full: half-split.
	if t.cfg.LeafCapacity < 2 {
		return false, t.cfg.ZeroAug, nil, fmt.Errorf("tree: leaf capacity too small to split")
	}
	mid := t.cfg.LeafCapacity / 2
	right, err := t.newLeaf(tx)
	if err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	for i := mid; i < t.cfg.LeafCapacity; i++ {
		right.elems[i-mid] = leaf.elems[i]
		leaf.elems[i] = elem[K, V]{}
	}
	right.next = leaf.next
	leaf.next = right.off

	sep, ok := t.minKey(right)
	if !ok {
		return false, t.cfg.ZeroAug, nil, fmt.Errorf("tree: split produced an empty right leaf")
	}

	target := leaf
	if !t.cfg.Less(key, sep) {
		target = right
	}
	placed := false
	for i := range target.elems {
		if !target.elems[i].occupied {
			for i > 0 && t.cfg.Less(key, target.elems[i-1].key) {
				target.elems[i] = target.elems[i-1]
				i--
			}
			target.elems[i] = elem[K, V]{occupied: true, created: created, key: key, val: val}
			placed = true
			break
		}
	}
	if !placed {
		return false, t.cfg.ZeroAug, nil, fmt.Errorf("tree: no free slot after split")
	}

	if err := t.writeLeaf(tx, right); err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	if err := t.writeLeaf(tx, leaf); err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}

	return false, t.leafAugment(leaf), &splitResult[K, A]{sepKey: sep, off: right.off, aug: t.leafAugment(right)}, nil
}

func (t *Tree[K, V, A]) minKey(p *leafPage[K, V, A]) (K, bool) {
	var min K
	found := false
	for i := range p.elems {
		e := &p.elems[i]
		if !e.occupied {
			continue
		}
		if !found || t.cfg.Less(e.key, min) {
			min = e.key
			found = true
		}
	}
	return min, found
}

func (t *Tree[K, V, A]) insertIntoBranch(tx *txfile.Tx, off int64, created txfile.CommitID, key K, val V) (existed bool, aug A, split *splitResult[K, A], err error) {
	branch, err := t.loadBranch(tx, off)
	if err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	t.latches.Lock(branch.off)
	defer t.latches.Unlock(branch.off)

	idx := 0
	for idx < len(branch.keys) && !t.cfg.Less(key, branch.keys[idx]) {
		idx++
	}

	childExisted, childAug, childSplit, err := t.insertRecursive(tx, branch.children[idx].off, created, key, val)
	if err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	branch.children[idx].aug = childAug
	if childSplit == nil {
		if err := t.writeBranch(tx, branch); err != nil {
			return false, t.cfg.ZeroAug, nil, err
		}
		return childExisted, t.branchAugment(branch), nil, nil
	}

	var zeroKey K
	branch.keys = append(branch.keys, zeroKey)
	copy(branch.keys[idx+1:], branch.keys[idx:])
	branch.keys[idx] = childSplit.sepKey

	branch.children = append(branch.children, child[A]{})
	copy(branch.children[idx+2:], branch.children[idx+1:])
	branch.children[idx+1] = child[A]{off: childSplit.off, aug: childSplit.aug}

	if len(branch.keys) <= t.cfg.BranchCapacity {
		if err := t.writeBranch(tx, branch); err != nil {
			return false, t.cfg.ZeroAug, nil, err
		}
		return childExisted, t.branchAugment(branch), nil, nil
	}

	mid := len(branch.keys) / 2
	promoted := branch.keys[mid]

	right, err := t.newBranch(tx)
	if err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	right.keys = append([]K(nil), branch.keys[mid+1:]...)
	right.children = append([]child[A](nil), branch.children[mid+1:]...)

	branch.keys = branch.keys[:mid]
	branch.children = branch.children[:mid+1]

	if err := t.writeBranch(tx, right); err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}
	if err := t.writeBranch(tx, branch); err != nil {
		return false, t.cfg.ZeroAug, nil, err
	}

	return childExisted, t.branchAugment(branch), &splitResult[K, A]{sepKey: promoted, off: right.off, aug: t.branchAugment(right)}, nil
}

// Erase soft-deletes the element matching key, marking it erased at commit
// id erasedAt so snapshots taken before erasedAt still see it.
func (t *Tree[K, V, A]) Erase(tx *txfile.Tx, erasedAt txfile.CommitID, key K) (bool, error) {
	if t.rootOff == 0 {
		return false, nil
	}
	off := t.rootOff
	for {
		kind, err := t.pageKind(tx, off)
		if err != nil {
			return false, err
		}
		if kind == pageTypeLeaf {
			leaf, err := t.loadLeaf(tx, off)
			if err != nil {
				return false, err
			}
			t.latches.Lock(leaf.off)
			defer t.latches.Unlock(leaf.off)
			for i := range leaf.elems {
				e := &leaf.elems[i]
				if e.occupied && !e.erasedSet && !t.cfg.Less(e.key, key) && !t.cfg.Less(key, e.key) {
					e.erasedSet = true
					e.erased = erasedAt
					return true, t.writeLeaf(tx, leaf)
				}
			}
			return false, nil
		}
		branch, err := t.loadBranch(tx, off)
		if err != nil {
			return false, err
		}
		off = t.childFor(branch, key)
	}
}
