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

// Package counter implements a concurrent packed counting hash table
// for a single workload: many threads each inserting fixed-width
// integer keys and incrementing their saturating counters, with no
// deletions and no concurrent readers while writers are active. The
// canonical use is k-mer counting, where tens to hundreds of workers
// stream billions of keys and the table must absorb them with minimal
// synchronisation and minimal memory.
//
// # Layout
//
// Keys live in a bit-packed array of cells, each one presence bit plus
// KeyBits-1 payload bits, packed whole into 64-bit words so that a key
// install is a single compare-and-swap from zero. Counters are
// unsigned lanes of the table's value type packed into 64-bit words
// next to the keys; an increment is a read-modify-CAS that clamps at
// the all-ones saturated state instead of wrapping. Collisions are
// handled by open addressing with an arithmetic-sum reprobe sequence
// (idx, idx+1, idx+3, idx+6, ...): because the table size is a power
// of two and the step grows linearly, the sequence visits every slot.
// See https://en.wikipedia.org/wiki/Quadratic_probing.
//
// # Generations and resize
//
// A table is a chain of generations, each a sized table of its own.
// When a worker exhausts its reprobe budget it allocates a generation
// of double the size under the resize mutex and publishes it as the
// new head. Workers notice the new head on their next insert, meet at
// a barrier sized to the worker count, and then collaboratively copy
// the old generation over, claiming chunks from a shared cursor so the
// work spreads evenly. The barrier guarantees no worker is still
// writing the old generation when copying begins. Generation lifetime
// is reference counted: the head reference, one reference per worker
// handle or iterator, and one reference held by each generation on its
// newer sibling. Release cascades oldest-first.
//
// # Hashing
//
// The default hash is MurmurHash64A with a fixed seed over the raw
// little-endian key bytes, so dump files are reproducible across
// processes. WithHasher substitutes any other well-mixed 64-bit hash;
// XXH3Hasher is provided as a wired alternative.
//
// Each inserting worker owns a Handle; the Table itself is the
// process-wide anchor. Iteration, Print and WriteTo are valid only
// after writers have quiesced.
package counter

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const defaultMaxReprobe = 64

var (
	// ErrBadSize is returned when restoring from a serialized buffer
	// whose declared size is not a power of two. The import path
	// performs no rounding.
	ErrBadSize = errors.New("counter: size must be a power of 2")

	// ErrShortBuffer is returned when a serialized buffer cannot hold
	// the declared key and counter layout.
	ErrShortBuffer = errors.New("counter: buffer too short for declared size")
)

// Table is the process-wide anchor of a counting hash table: it holds
// the current generation, the resize mutex and barrier, and the stats
// block, and acts as the factory for worker handles.
//
// A Table must not be copied after first use.
type Table[V Value] struct {
	keyBits    uint32
	maxReprobe uint32
	hasher     Hasher
	allocator  Allocator
	current    atomic.Pointer[generation[V]]

	_        cpu.CacheLinePad
	resizeMu sync.Mutex
	bar      *barrier
	stats    Stats
}

// New constructs a table with keyBits-wide key cells (one presence bit
// plus keyBits-1 payload bits), at least size slots (rounded up to a
// power of two), and a copy barrier sized to workers. Exactly workers
// handles are expected to insert; create them with NewHandle before
// inserting begins and close each when its worker is done.
func New[V Value](keyBits uint32, size uint64, workers int, options ...option[V]) *Table[V] {
	if keyBits < 2 || keyBits > 64 {
		panic(fmt.Sprintf("counter: key bits %d out of range [2,64]", keyBits))
	}
	if workers < 1 {
		workers = 1
	}
	t := &Table[V]{
		keyBits:    keyBits,
		maxReprobe: defaultMaxReprobe,
		hasher:     defaultHasher,
		allocator:  defaultAllocator{},
	}
	for _, op := range options {
		op.apply(t)
	}
	g := newGeneration[V](keyBits, size, nil, t.allocator, &t.stats)
	g.refInc() // head reference
	t.current.Store(g)
	t.bar = newBarrier(workers)
	return t
}

// FromBytes restores a read-only table from a buffer produced by
// WriteTo: the packed key words followed by the raw counter lanes.
// size must be the exact slot count of the dumped generation and must
// be a power of two; otherwise FromBytes fails with ErrBadSize.
// Inserting into the restored table is invalid.
func FromBytes[V Value](keyBits uint32, size uint64, data []byte, options ...option[V]) (*Table[V], error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, ErrBadSize
	}
	if keyBits < 2 || keyBits > 64 {
		return nil, fmt.Errorf("counter: key bits %d out of range [2,64]", keyBits)
	}
	t := &Table[V]{
		keyBits:    keyBits,
		maxReprobe: defaultMaxReprobe,
		hasher:     defaultHasher,
		allocator:  defaultAllocator{},
	}
	for _, op := range options {
		op.apply(t)
	}
	need := packedWordCount(keyBits, size)*8 + size*valBytes[V]()
	if uint64(len(data)) < need {
		return nil, ErrShortBuffer
	}
	g := newMappedGeneration[V](keyBits, size, data, &t.stats)
	g.refInc() // head reference
	t.current.Store(g)
	t.bar = newBarrier(1)
	return t, nil
}

// Close releases the table's head reference. When every handle and
// iterator has been closed this frees the whole generation chain
// through the configured allocator. It is invalid to use the table
// after Close, though Close itself is idempotent.
func (t *Table[V]) Close() {
	if g := t.current.Swap(nil); g != nil {
		release(g)
	}
}

// NewHandle constructs a worker handle bound to this table. Handles
// must be created before inserting begins.
func (t *Table[V]) NewHandle() *Handle[V] {
	g := t.current.Load()
	g.refInc()
	return &Handle[V]{
		t:          t,
		gen:        g,
		maxReprobe: t.maxReprobe,
	}
}

// Size returns the slot count of the current generation.
func (t *Table[V]) Size() uint64 {
	return t.current.Load().size
}

// KeyBits returns the configured cell width.
func (t *Table[V]) KeyBits() uint32 { return t.keyBits }

// MaxKey returns the largest storable key payload.
func (t *Table[V]) MaxKey() uint64 {
	return t.current.Load().keys.MaxKey()
}

// Stats returns a snapshot of the global counters. The snapshot is all
// zeros unless the build has the counterstats tag.
func (t *Table[V]) Stats() StatsSnapshot {
	return t.stats.snapshot()
}

// PrintStats writes one line per statistic to w.
func (t *Table[V]) PrintStats(w io.Writer) error {
	return t.stats.print(w)
}

// resize doubles the table. cur is the generation the caller believes
// is current; if another worker already resized past it, resize is a
// successful no-op. With block=false the resize mutex is only tried,
// and false is returned immediately when it is contended.
func (t *Table[V]) resize(cur *generation[V], block bool) bool {
	if block {
		t.resizeMu.Lock()
	} else if !t.resizeMu.TryLock() {
		return false
	}
	if t.current.Load() != cur {
		// Another worker already resized.
		t.resizeMu.Unlock()
		return true
	}
	ng := newGeneration[V](t.keyBits, cur.size<<1, cur, t.allocator, &t.stats)
	ng.refInc() // new head reference
	cur.refDec() // not the head anymore; callers still hold their own references
	t.current.Store(ng)
	t.resizeMu.Unlock()
	t.stats.incResizedArys()
	return true
}

// All calls yield for every occupied slot of the current generation,
// in unspecified order, stopping early if yield returns false. Valid
// only when no writers are active.
func (t *Table[V]) All(yield func(key uint64, value V) bool) {
	g := t.current.Load()
	for i := uint64(0); i < g.size; i++ {
		if k, v, ok := g.get(i); ok {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Iterator walks the occupied slots of one generation, keeping the
// generation alive with a reference until Close.
type Iterator[V Value] struct {
	g   *generation[V]
	pos uint64

	// Key and Val hold the pair most recently produced by Next.
	Key uint64
	Val V
}

// Iter returns an iterator over the current generation. Valid only
// when no writers are active. A fresh iterator restarts the walk.
func (t *Table[V]) Iter() *Iterator[V] {
	g := t.current.Load()
	g.refInc()
	return &Iterator[V]{g: g}
}

// Next advances to the next occupied slot, filling Key and Val. It
// returns false when the generation is exhausted.
func (it *Iterator[V]) Next() bool {
	for it.pos < it.g.size {
		i := it.pos
		it.pos++
		if k, v, ok := it.g.get(i); ok {
			it.Key, it.Val = k, v
			return true
		}
	}
	return false
}

// Rewind restarts the iterator from the first slot.
func (it *Iterator[V]) Rewind() { it.pos = 0 }

// Close releases the iterator's reference on its generation.
func (it *Iterator[V]) Close() {
	if it.g != nil {
		release(it.g)
		it.g = nil
	}
}

// WriteTo serializes the current generation: the bit-packed key buffer
// followed by the counter array as raw little-endian lanes. The result
// can be restored with FromBytes. Valid only when no writers are
// active.
func (t *Table[V]) WriteTo(w io.Writer) (int64, error) {
	return t.current.Load().writeTo(w)
}

// Print writes one "<key> <value>" line per occupied slot of the
// current generation. Valid only when no writers are active.
func (t *Table[V]) Print(w io.Writer) error {
	g := t.current.Load()
	for i := uint64(0); i < g.size; i++ {
		if k, v, ok := g.get(i); ok {
			if _, err := fmt.Fprintf(w, "%d %d\n", k, uint64(v)); err != nil {
				return err
			}
		}
	}
	return nil
}
