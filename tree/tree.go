// Package tree implements tree-v2 pages: a tx-aware B+-tree layered over a
// txfile.Txfile. Leaves hold a fixed number of element slots; an erased
// element keeps its slot and is only marked with the commit id that erased
// it. Branches hold separator keys and augments
// folded from their subtree via a caller-supplied monoid. Visibility of an
// element to a reader is governed by the commit id that created it and, if
// erased, the commit id that erased it — not by byte-level MVCC, which is
// handled lower down by txfile.Tx.
package tree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/txfile"
)

// ErrNotFound names a missing element. Lookup and Erase do not return it;
// they report a miss through their boolean result.
var ErrNotFound = errors.New("tree: not found")

func commitLessEqual(a, b txfile.CommitID) bool {
	return a == b || a.Less(b)
}

// Codec describes how to turn a value of type T into and out of a
// fixed-size byte slot.
type Codec[T any] struct {
	Size   int
	Encode func(v T, buf []byte)
	Decode func(buf []byte) T
}

// Config parameterizes a Tree over its key, value and augment types.
type Config[K, V, A any] struct {
	Less    func(a, b K) bool
	Key     Codec[K]
	Val     Codec[V]
	Aug     Codec[A]
	ZeroAug A
	ElemAug func(K, V) A
	Merge   func(a, b A) A

	LeafCapacity   int // element slots per leaf page
	BranchCapacity int // separator-key slots per branch page (children = capacity+1)
}

type elem[K, V any] struct {
	occupied bool
	created  txfile.CommitID
	erased   txfile.CommitID // valid only if erasedSet
	erasedSet bool
	key      K
	val      V
}

func (e *elem[K, V]) visible(snapshot txfile.CommitID) bool {
	if !e.occupied {
		return false
	}
	if !commitLessEqual(e.created, snapshot) {
		return false
	}
	if e.erasedSet && commitLessEqual(e.erased, snapshot) {
		return false
	}
	return true
}

type child[A any] struct {
	off int64
	aug A
}

type leafPage[K, V, A any] struct {
	off   int64
	next  int64 // sibling leaf offset, 0 = none
	elems []elem[K, V]
}

type branchPage[K, V, A any] struct {
	off      int64
	keys     []K         // len == len(children)-1
	children []child[A]
}

const (
	pageTypeLeaf   = byte(0)
	pageTypeBranch = byte(1)
)

const headerLen = 40 // magic(4) + pad(4) + nextFree(8) + rootOff(8) + leafCap(2) + branchCap(2) + pad(12)

const treeMagic = 0x6d736e74 // "msnt"

// Tree is a tx-aware B+-tree persisted in a txfile.Txfile.
type Tree[K, V, A any] struct {
	tf  *txfile.Txfile
	cfg Config[K, V, A]

	cache *fsptr.Cache[Tree[K, V, A]]

	latches *LatchManager

	rootMu sync.RWMutex
	rootOff int64

	allocMu sync.Mutex

	leafPageLen   int64
	branchPageLen int64
}

func leafSlotLen[K, V, A any](cfg Config[K, V, A]) int {
	// occupied(1) + created(8) + erasedSet(1) + erased(8) + key + val
	return 1 + 8 + 1 + 8 + cfg.Key.Size + cfg.Val.Size
}

func branchChildLen[K, V, A any](cfg Config[K, V, A]) int {
	return 8 + cfg.Aug.Size // offset + augment
}

// Create lays out a brand new, empty tree at the start of tf's data region.
func Create[K, V, A any](tf *txfile.Txfile, cfg Config[K, V, A]) (*Tree[K, V, A], error) {
	t := &Tree[K, V, A]{tf: tf, cfg: cfg}
	t.cache = fsptr.New[Tree[K, V, A]](256<<20, 15*time.Minute)
	t.latches = NewLatchManager()
	t.leafPageLen = int64(headerLenForLeaf(cfg))
	t.branchPageLen = int64(headerLenForBranch(cfg))

	tx, err := tf.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("tree: create: %w", err)
	}
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint32(buf[0:], treeMagic)
	binary.BigEndian.PutUint64(buf[8:], uint64(headerLen))
	binary.BigEndian.PutUint16(buf[24:], uint16(cfg.LeafCapacity))
	binary.BigEndian.PutUint16(buf[26:], uint16(cfg.BranchCapacity))
	if err := tx.WriteAt(0, buf); err != nil {
		return nil, err
	}
	if err := tx.Resize(uint64(headerLen)); err != nil {
		return nil, err
	}
	if _, err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tree: create: %w", err)
	}
	t.rootOff = 0
	return t, nil
}

// Open recovers a tree previously laid out by Create.
func Open[K, V, A any](tf *txfile.Txfile, cfg Config[K, V, A]) (*Tree[K, V, A], error) {
	t := &Tree[K, V, A]{tf: tf, cfg: cfg}
	t.cache = fsptr.New[Tree[K, V, A]](256<<20, 15*time.Minute)
	t.latches = NewLatchManager()
	t.leafPageLen = int64(headerLenForLeaf(cfg))
	t.branchPageLen = int64(headerLenForBranch(cfg))

	tx, err := tf.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("tree: open: %w", err)
	}
	buf := make([]byte, headerLen)
	if err := tx.ReadAt(0, buf); err != nil {
		return nil, fmt.Errorf("tree: open: %w", err)
	}
	if binary.BigEndian.Uint32(buf[0:]) != treeMagic {
		return nil, fmt.Errorf("tree: open: bad magic")
	}
	t.rootOff = int64(binary.BigEndian.Uint64(buf[16:]))
	return t, nil
}

func headerLenForLeaf[K, V, A any](cfg Config[K, V, A]) int64 {
	return 9 + int64(cfg.LeafCapacity*leafSlotLen(cfg)) // pageType(1)+next(8)
}

func headerLenForBranch[K, V, A any](cfg Config[K, V, A]) int64 {
	numChildren := cfg.BranchCapacity + 1
	return 1 + int64(numChildren*branchChildLen(cfg)) + int64(cfg.BranchCapacity*cfg.Key.Size)
}

func (t *Tree[K, V, A]) allocate(tx *txfile.Tx, size int64) (int64, error) {
	t.allocMu.Lock()
	defer t.allocMu.Unlock()

	hdr := make([]byte, headerLen)
	if err := tx.ReadAt(0, hdr); err != nil {
		return 0, err
	}
	next := int64(binary.BigEndian.Uint64(hdr[8:]))
	binary.BigEndian.PutUint64(hdr[8:], uint64(next+size))
	if err := tx.WriteAt(8, hdr[8:16]); err != nil {
		return 0, err
	}
	if err := tx.Resize(uint64(next + size)); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *Tree[K, V, A]) encodeLeaf(p *leafPage[K, V, A]) []byte {
	buf := make([]byte, t.leafPageLen)
	buf[0] = pageTypeLeaf
	binary.BigEndian.PutUint64(buf[1:], uint64(p.next))
	off := 9
	slot := leafSlotLen(t.cfg)
	for i := 0; i < t.cfg.LeafCapacity; i++ {
		s := buf[off+i*slot : off+(i+1)*slot]
		e := &p.elems[i]
		if !e.occupied {
			continue
		}
		s[0] = 1
		binary.BigEndian.PutUint32(s[1:], e.created.TxStart)
		binary.BigEndian.PutUint32(s[5:], e.created.Val)
		if e.erasedSet {
			s[9] = 1
			binary.BigEndian.PutUint32(s[10:], e.erased.TxStart)
			binary.BigEndian.PutUint32(s[14:], e.erased.Val)
		}
		kv := s[18:]
		t.cfg.Key.Encode(e.key, kv[:t.cfg.Key.Size])
		t.cfg.Val.Encode(e.val, kv[t.cfg.Key.Size:t.cfg.Key.Size+t.cfg.Val.Size])
	}
	return buf
}

func (t *Tree[K, V, A]) decodeLeaf(off int64, buf []byte) *leafPage[K, V, A] {
	p := &leafPage[K, V, A]{off: off}
	p.next = int64(binary.BigEndian.Uint64(buf[1:]))
	p.elems = make([]elem[K, V], t.cfg.LeafCapacity)
	o := 9
	slot := leafSlotLen(t.cfg)
	for i := 0; i < t.cfg.LeafCapacity; i++ {
		s := buf[o+i*slot : o+(i+1)*slot]
		e := &p.elems[i]
		if s[0] == 0 {
			continue
		}
		e.occupied = true
		e.created = txfile.CommitID{TxStart: binary.BigEndian.Uint32(s[1:]), Val: binary.BigEndian.Uint32(s[5:])}
		if s[9] == 1 {
			e.erasedSet = true
			e.erased = txfile.CommitID{TxStart: binary.BigEndian.Uint32(s[10:]), Val: binary.BigEndian.Uint32(s[14:])}
		}
		kv := s[18:]
		e.key = t.cfg.Key.Decode(kv[:t.cfg.Key.Size])
		e.val = t.cfg.Val.Decode(kv[t.cfg.Key.Size : t.cfg.Key.Size+t.cfg.Val.Size])
	}
	return p
}

func (t *Tree[K, V, A]) encodeBranch(p *branchPage[K, V, A]) []byte {
	buf := make([]byte, t.branchPageLen)
	buf[0] = pageTypeBranch
	numChildren := t.cfg.BranchCapacity + 1
	clen := branchChildLen(t.cfg)
	off := 1
	for i := 0; i < numChildren; i++ {
		s := buf[off+i*clen : off+(i+1)*clen]
		if i < len(p.children) {
			binary.BigEndian.PutUint64(s, uint64(p.children[i].off))
			t.cfg.Aug.Encode(p.children[i].aug, s[8:])
		}
	}
	off += numChildren * clen
	for i := 0; i < t.cfg.BranchCapacity; i++ {
		s := buf[off+i*t.cfg.Key.Size : off+(i+1)*t.cfg.Key.Size]
		if i < len(p.keys) {
			t.cfg.Key.Encode(p.keys[i], s)
		}
	}
	return buf
}

func (t *Tree[K, V, A]) decodeBranch(off int64, buf []byte) *branchPage[K, V, A] {
	p := &branchPage[K, V, A]{off: off}
	numChildren := t.cfg.BranchCapacity + 1
	clen := branchChildLen(t.cfg)
	o := 1
	p.children = make([]child[A], 0, numChildren)
	for i := 0; i < numChildren; i++ {
		s := buf[o+i*clen : o+(i+1)*clen]
		co := int64(binary.BigEndian.Uint64(s))
		if co == 0 && i > 0 {
			break
		}
		aug := t.cfg.Aug.Decode(s[8:])
		p.children = append(p.children, child[A]{off: co, aug: aug})
	}
	o += numChildren * clen
	p.keys = make([]K, 0, t.cfg.BranchCapacity)
	for i := 0; i < len(p.children)-1; i++ {
		s := buf[o+i*t.cfg.Key.Size : o+(i+1)*t.cfg.Key.Size]
		p.keys = append(p.keys, t.cfg.Key.Decode(s))
	}
	return p
}

func (t *Tree[K, V, A]) loadLeaf(tx *txfile.Tx, off int64) (*leafPage[K, V, A], error) {
	v, err := t.cache.GetOrLoad(t, fsptr.Pointer{Off: off, Len: t.leafPageLen}, fsptr.TagTreeLeaf, func() (any, int64, error) {
		buf := make([]byte, t.leafPageLen)
		if err := tx.ReadAt(uint64(off), buf); err != nil {
			return nil, 0, err
		}
		return t.decodeLeaf(off, buf), t.leafPageLen, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*leafPage[K, V, A]), nil
}

func (t *Tree[K, V, A]) loadBranch(tx *txfile.Tx, off int64) (*branchPage[K, V, A], error) {
	v, err := t.cache.GetOrLoad(t, fsptr.Pointer{Off: off, Len: t.branchPageLen}, fsptr.TagTreeBranch, func() (any, int64, error) {
		buf := make([]byte, t.branchPageLen)
		if err := tx.ReadAt(uint64(off), buf); err != nil {
			return nil, 0, err
		}
		return t.decodeBranch(off, buf), t.branchPageLen, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*branchPage[K, V, A]), nil
}

func (t *Tree[K, V, A]) pageKind(tx *txfile.Tx, off int64) (byte, error) {
	var b [1]byte
	if err := tx.ReadAt(uint64(off), b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (t *Tree[K, V, A]) writeLeaf(tx *txfile.Tx, p *leafPage[K, V, A]) error {
	t.cache.Invalidate(t, fsptr.Pointer{Off: p.off, Len: t.leafPageLen}, fsptr.TagTreeLeaf)
	return tx.WriteAt(uint64(p.off), t.encodeLeaf(p))
}

func (t *Tree[K, V, A]) writeBranch(tx *txfile.Tx, p *branchPage[K, V, A]) error {
	t.cache.Invalidate(t, fsptr.Pointer{Off: p.off, Len: t.branchPageLen}, fsptr.TagTreeBranch)
	return tx.WriteAt(uint64(p.off), t.encodeBranch(p))
}

func (t *Tree[K, V, A]) newLeaf(tx *txfile.Tx) (*leafPage[K, V, A], error) {
	off, err := t.allocate(tx, t.leafPageLen)
	if err != nil {
		return nil, err
	}
	p := &leafPage[K, V, A]{off: off, elems: make([]elem[K, V], t.cfg.LeafCapacity)}
	if err := t.writeLeaf(tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tree[K, V, A]) newBranch(tx *txfile.Tx) (*branchPage[K, V, A], error) {
	off, err := t.allocate(tx, t.branchPageLen)
	if err != nil {
		return nil, err
	}
	p := &branchPage[K, V, A]{off: off}
	if err := t.writeBranch(tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// leafAugment folds every occupied element of this leaf, erased or not,
// into a single augment.
func (t *Tree[K, V, A]) leafAugment(p *leafPage[K, V, A]) A {
	acc := t.cfg.ZeroAug
	first := true
	for i := range p.elems {
		e := &p.elems[i]
		if !e.occupied {
			continue
		}
		a := t.cfg.ElemAug(e.key, e.val)
		if first {
			acc = a
			first = false
		} else {
			acc = t.cfg.Merge(acc, a)
		}
	}
	return acc
}

func (t *Tree[K, V, A]) branchAugment(p *branchPage[K, V, A]) A {
	acc := t.cfg.ZeroAug
	first := true
	for _, c := range p.children {
		if first {
			acc = c.aug
			first = false
		} else {
			acc = t.cfg.Merge(acc, c.aug)
		}
	}
	return acc
}
