// Package intern implements a reference-counted string pool.
//
// Strings acquired from a Pool are identified by a Ref, a small comparable
// handle that can be used as a map key and compared without touching the
// string content. Every Ref owns one claim on its slot; Clone adds a claim
// and Release gives one back. When the last claim is released the slot is
// emptied and its index becomes available to later acquisitions.
package intern

import (
	"cmp"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

type slot struct {
	value string
	refs  int
}

// Pool is a string interner safe for concurrent use.
//
// The content map, the slot vector and the free-index set are guarded by
// separate mutexes. Operations that need more than one of them always lock
// in that order: values, slots, free.
type Pool struct {
	valuesMu sync.Mutex
	values   map[string]int

	slotsMu sync.Mutex
	slots   []*slot

	freeMu sync.Mutex
	free   *bitset.BitSet
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		values: make(map[string]int),
		free:   bitset.New(0),
	}
}

// Ref is a handle to an interned string. Two refs from the same pool are
// equal iff they were acquired for equal content. The zero Ref refers to no
// pool and reads as the empty string.
type Ref struct {
	pool  *Pool
	index int
}

// Acquire returns a handle for s, adding s to the pool if needed.
func (p *Pool) Acquire(s string) Ref {
	p.valuesMu.Lock()
	defer p.valuesMu.Unlock()
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()

	if index, ok := p.values[s]; ok {
		sl := p.slots[index]
		if sl == nil {
			panic(fmt.Sprintf("intern: content map points at empty slot %d", index))
		}
		sl.refs++
		return Ref{pool: p, index: index}
	}

	p.freeMu.Lock()
	index, reuse := p.free.NextSet(0)
	if reuse {
		p.free.Clear(index)
	}
	p.freeMu.Unlock()

	sl := &slot{value: s, refs: 1}
	var i int
	if reuse {
		i = int(index)
		p.slots[i] = sl
	} else {
		i = len(p.slots)
		p.slots = append(p.slots, sl)
	}
	p.values[s] = i
	return Ref{pool: p, index: i}
}

// AcquireAll acquires every string in ss.
func (p *Pool) AcquireAll(ss []string) []Ref {
	if len(ss) == 0 {
		return nil
	}
	refs := make([]Ref, len(ss))
	for i, s := range ss {
		refs[i] = p.Acquire(s)
	}
	return refs
}

// Len returns the number of distinct live strings.
func (p *Pool) Len() int {
	p.valuesMu.Lock()
	defer p.valuesMu.Unlock()
	return len(p.values)
}

// RefCount returns the number of outstanding claims on r's slot, or 0 if the
// slot is empty.
func (p *Pool) RefCount(r Ref) int {
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()
	if r.index < 0 || r.index >= len(p.slots) || p.slots[r.index] == nil {
		return 0
	}
	return p.slots[r.index].refs
}

func (p *Pool) get(index int) string {
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()
	if index < 0 || index >= len(p.slots) || p.slots[index] == nil {
		panic(fmt.Sprintf("intern: live reference to empty slot %d", index))
	}
	return p.slots[index].value
}

func (p *Pool) clone(index int) {
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()
	if index < 0 || index >= len(p.slots) || p.slots[index] == nil {
		panic(fmt.Sprintf("intern: clone of empty slot %d", index))
	}
	p.slots[index].refs++
}

func (p *Pool) release(index int) {
	p.valuesMu.Lock()
	defer p.valuesMu.Unlock()
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()

	if index < 0 || index >= len(p.slots) || p.slots[index] == nil {
		panic(fmt.Sprintf("intern: release of empty slot %d", index))
	}
	sl := p.slots[index]
	sl.refs--
	if sl.refs > 0 {
		return
	}
	delete(p.values, sl.value)
	p.slots[index] = nil

	p.freeMu.Lock()
	p.free.Set(uint(index))
	p.freeMu.Unlock()
}

// String returns the interned content. It panics if r's slot has been
// emptied while r was still live, which only happens when a Ref is used
// after its final Release.
func (r Ref) String() string {
	if r.pool == nil {
		return ""
	}
	return r.pool.get(r.index)
}

// Clone adds a claim on r's slot and returns an equal handle.
func (r Ref) Clone() Ref {
	if r.pool != nil {
		r.pool.clone(r.index)
	}
	return r
}

// Release gives back the claim held by r. r must not be used afterwards;
// releasing a Ref whose slot is already empty panics.
func (r Ref) Release() {
	if r.pool != nil {
		r.pool.release(r.index)
	}
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r.pool == nil }

// Compare orders refs by slot index.
func (r Ref) Compare(o Ref) int { return cmp.Compare(r.index, o.index) }

// MarshalText encodes the interned content.
func (r Ref) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// ReleaseAll releases every ref in refs.
func ReleaseAll(refs []Ref) {
	for _, r := range refs {
		r.Release()
	}
}

// Strings returns the content of refs.
func Strings(refs []Ref) []string {
	if len(refs) == 0 {
		return nil
	}
	ss := make([]string, len(refs))
	for i, r := range refs {
		ss[i] = r.String()
	}
	return ss
}
