// Copyright 2025 The Seqtools Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package counter

import (
	"io"
	"sync/atomic"
	"unsafe"
)

// Value constrains the counter type to an unsigned machine integer.
// The all-ones pattern of V is the saturated state.
type Value interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

const (
	// copyChunks is the number of chunks an old generation is split
	// into during copy-over, so that all workers contribute evenly.
	copyChunks    = 128
	copyChunksLog = 7
)

// generation is one sized table: a packed key array plus a counter
// array of the same length, lane-packed into 64-bit words so that a
// counter update is a compare-and-swap on the word containing the
// lane.
//
// Generations form a singly-linked list through next, oldest to
// newest. A generation holds one reference on its next sibling; the
// other references are the table's head reference and one per handle
// or iterator caching the generation. When the count drops to zero the
// generation is destroyed and its reference on next is released,
// cascading oldest-first.
type generation[V Value] struct {
	size      uint64
	modMask   uint64
	keys      *PackedArray
	vals      []uint64
	laneBits  uint64
	laneMask  uint64
	next      *generation[V]
	refs      atomic.Int32
	copyChunk atomic.Uint32
	allocated bool
	alloc     Allocator
	stats     *Stats
}

// valBytes returns unsafe.Sizeof(V), resolved at instantiation.
func valBytes[V Value]() uint64 {
	var v V
	return uint64(unsafe.Sizeof(v))
}

// valWordCount returns the number of 64-bit words backing size lanes
// of V.
func valWordCount[V Value](size uint64) uint64 {
	return (size*valBytes[V]() + 7) / 8
}

// newGeneration allocates a generation of at least the requested size,
// rounded up to a power of two. When prev is non-nil the new
// generation is linked as prev.next and takes one reference on itself
// for that link. Not safe for concurrent callers; the resize mutex
// serializes construction.
func newGeneration[V Value](keyBits uint32, size uint64, prev *generation[V], alloc Allocator, stats *Stats) *generation[V] {
	s := uint64(1)
	for size > s {
		s <<= 1
	}
	vb := valBytes[V]()
	g := &generation[V]{
		size:      s,
		modMask:   s - 1,
		keys:      newPackedArray(keyBits, s, alloc.Alloc(int(packedWordCount(keyBits, s)))),
		vals:      alloc.Alloc(int(valWordCount[V](s))),
		laneBits:  vb * 8,
		laneMask:  ^uint64(0) >> (64 - vb*8),
		allocated: true,
		alloc:     alloc,
		stats:     stats,
	}
	if prev != nil {
		g.refInc()
		prev.next = g
	}
	return g
}

// newMappedGeneration builds a read-only generation over an existing
// serialized buffer. size must already be a power of two.
func newMappedGeneration[V Value](keyBits uint32, size uint64, data []byte, stats *Stats) *generation[V] {
	keyWords := packedWordCount(keyBits, size)
	vb := valBytes[V]()
	return &generation[V]{
		size:     size,
		modMask:  size - 1,
		keys:     newPackedArray(keyBits, size, wordsView(data, keyWords)),
		vals:     wordsView(data[keyWords*8:], valWordCount[V](size)),
		laneBits: vb * 8,
		laneMask: ^uint64(0) >> (64 - vb*8),
		stats:    stats,
	}
}

func (g *generation[V]) lanesPerWord() uint64 { return 64 / g.laneBits }

func (g *generation[V]) loadVal(i uint64) V {
	w := atomic.LoadUint64(&g.vals[i/g.lanesPerWord()])
	return V(w >> ((i % g.lanesPerWord()) * g.laneBits) & g.laneMask)
}

// casVal swaps lane i from old to new. A false return means either the
// lane no longer holds old or a neighbouring lane in the same word
// changed; the caller reloads and retries either way.
func (g *generation[V]) casVal(i uint64, old, new V) bool {
	p := &g.vals[i/g.lanesPerWord()]
	shift := (i % g.lanesPerWord()) * g.laneBits
	w := atomic.LoadUint64(p)
	if V(w>>shift&g.laneMask) != old {
		return false
	}
	nw := w&^(g.laneMask<<shift) | uint64(new)<<shift
	return atomic.CompareAndSwapUint64(p, w, nw)
}

// add installs k at slot idx and adds v to its counter, saturating at
// all-ones. It returns false when the slot holds a different key, in
// which case the caller reprobes. The counter update is the classic
// read-modify-CAS loop; the overflow test compares the unsigned
// complement of the current value against v so it cannot wrap.
func (g *generation[V]) add(idx, k uint64, v V) bool {
	if !g.keys.Set(idx, k) {
		return false
	}
	for {
		c := g.loadVal(idx)
		nc := ^c
		if nc == 0 {
			// Already saturated; further increments are absorbed.
			return true
		}
		var n V
		if nc < v {
			n = ^V(0)
			g.stats.incMaxedOutVal()
		} else {
			n = c + v
		}
		if g.casVal(idx, c, n) {
			return true
		}
		g.stats.incValConflicts()
	}
}

// get reads slot idx, returning its key and counter when occupied.
func (g *generation[V]) get(idx uint64) (uint64, V, bool) {
	k, ok := g.keys.Get(idx)
	if !ok {
		return 0, 0, false
	}
	return k, g.loadVal(idx), true
}

// getChunk atomically claims the next chunk of slots to copy over,
// returning ok=false when the generation is exhausted. The table is
// split into up to copyChunks chunks of at least one slot each.
func (g *generation[V]) getChunk() (start, end uint64, ok bool) {
	i := uint64(g.copyChunk.Add(1)) - 1
	if i >= copyChunks {
		return 0, 0, false
	}
	n := g.size >> copyChunksLog
	if n == 0 {
		n = 1
	}
	start = i * n
	if start >= g.size {
		return 0, 0, false
	}
	end = min(start+n, g.size)
	return start, end, true
}

func (g *generation[V]) refInc() int32 { return g.refs.Add(1) }
func (g *generation[V]) refDec() int32 { return g.refs.Add(-1) }

// release drops one reference on g, destroying it when the count hits
// zero. Destruction releases the reference g held on its next sibling,
// so the cascade frees the chain oldest-first.
func release[V Value](g *generation[V]) {
	for g != nil && g.refDec() == 0 {
		next := g.next
		g.destroy()
		g = next
	}
}

func (g *generation[V]) destroy() {
	if g.allocated {
		g.alloc.Free(g.keys.words)
		g.alloc.Free(g.vals)
	}
	g.stats.incDestroyedKeys()
	g.stats.incDestroyedVals()
}

// writeTo serializes the generation: the packed key words followed by
// the counter array as raw little-endian V-bit lanes, size*sizeof(V)
// bytes.
func (g *generation[V]) writeTo(w io.Writer) (int64, error) {
	n, err := g.keys.WriteTo(w)
	if err != nil {
		return n, err
	}
	m, err := writeWordsLE(w, g.vals, int64(g.size*valBytes[V]()))
	return n + m, err
}
