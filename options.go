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

// option provides an interface to do work on a Table while it is being
// created.
type option[V Value] interface {
	apply(t *Table[V])
}

type hasherOption[V Value] struct {
	hasher Hasher
}

func (op hasherOption[V]) apply(t *Table[V]) {
	t.hasher = op.hasher
}

// WithHasher is an option to replace the default MurmurHash64A hasher.
// Any replacement must be a deterministic, well-mixed 64-bit hash.
func WithHasher[V Value](hasher Hasher) option[V] {
	return hasherOption[V]{hasher}
}

type maxReprobeOption[V Value] struct {
	n uint32
}

func (op maxReprobeOption[V]) apply(t *Table[V]) {
	t.maxReprobe = op.n
}

// WithMaxReprobe is an option to set the reprobe limit beyond which an
// insert triggers a resize. Typical values are 32-256.
func WithMaxReprobe[V Value](n uint32) option[V] {
	return maxReprobeOption[V]{n}
}

// Allocator specifies an interface for allocating and releasing the
// 64-bit word slices backing key and counter storage. The default
// allocator utilizes Go's builtin make() and allows the GC to reclaim
// memory.
//
// If the allocator is manually managing memory then Table.Close must
// be called (after every Handle and Iterator is closed) in order to
// ensure Free is called for every generation.
type Allocator interface {
	// Alloc should return a slice equivalent to make([]uint64, n).
	Alloc(n int) []uint64

	// Free can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// Alloc.
	Free(w []uint64)
}

type defaultAllocator struct{}

func (defaultAllocator) Alloc(n int) []uint64 {
	return make([]uint64, n)
}

func (defaultAllocator) Free(w []uint64) {
}

type allocatorOption[V Value] struct {
	allocator Allocator
}

func (op allocatorOption[V]) apply(t *Table[V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specifying the Allocator to use for a
// Table.
func WithAllocator[V Value](allocator Allocator) option[V] {
	return allocatorOption[V]{allocator}
}
