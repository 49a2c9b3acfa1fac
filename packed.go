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
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
	"unsafe"
)

// PackedArray is a dense, fixed-size array of bit-packed key cells. Each
// cell is bits wide: a presence bit in the low position followed by
// bits-1 payload bits. Cells are packed whole into 64-bit words,
// 64/bits cells per word, leaving the remainder bits of every word
// unused. Packing whole cells means a cell never straddles a word
// boundary, so an install is a single compare-and-swap on the word
// containing the cell, retried when a concurrent install of a
// neighbouring cell changes the word underneath us.
//
// A zero cell means empty. Once a cell is installed its payload never
// changes; there is no clear operation.
type PackedArray struct {
	bits         uint32
	size         uint64
	cellsPerWord uint64
	cellMask     uint64
	words        []uint64
}

// NewPackedArray returns a zeroed array of size cells, each bits wide.
// bits must be in [2, 64]: one presence bit plus at least one payload
// bit.
func NewPackedArray(bits uint32, size uint64) *PackedArray {
	return newPackedArray(bits, size, make([]uint64, packedWordCount(bits, size)))
}

func newPackedArray(bits uint32, size uint64, words []uint64) *PackedArray {
	if bits < 2 || bits > 64 {
		panic(fmt.Sprintf("counter: cell width %d out of range [2,64]", bits))
	}
	return &PackedArray{
		bits:         bits,
		size:         size,
		cellsPerWord: 64 / uint64(bits),
		cellMask:     ^uint64(0) >> (64 - bits),
		words:        words,
	}
}

// packedWordCount returns the number of 64-bit words backing an array
// of size cells of the given width.
func packedWordCount(bits uint32, size uint64) uint64 {
	cpw := 64 / uint64(bits)
	return (size + cpw - 1) / cpw
}

// Len returns the number of cells.
func (a *PackedArray) Len() uint64 { return a.size }

// MaxKey returns the largest storable payload: 1<<(bits-1) - 1.
func (a *PackedArray) MaxKey() uint64 { return a.cellMask >> 1 }

// Set attempts to install the non-zero key k at index i. It returns
// true if the cell was empty and k was installed, or if the cell
// already held exactly k. It returns false if the cell holds a
// different key. Safe under concurrent callers at the same index.
//
// k must be non-zero and at most MaxKey.
func (a *PackedArray) Set(i, k uint64) bool {
	cell := k<<1 | 1
	w := &a.words[i/a.cellsPerWord]
	shift := (i % a.cellsPerWord) * uint64(a.bits)
	for {
		old := atomic.LoadUint64(w)
		switch cur := (old >> shift) & a.cellMask; cur {
		case 0:
			if atomic.CompareAndSwapUint64(w, old, old|cell<<shift) {
				return true
			}
			// A neighbouring cell in the same word was installed
			// between the load and the CAS. Reload and retry.
		case cell:
			return true
		default:
			return false
		}
	}
}

// Get reads cell i, returning the payload and true when the cell is
// occupied. Once a key is installed it is stable, so a true result is
// never retracted.
func (a *PackedArray) Get(i uint64) (uint64, bool) {
	w := atomic.LoadUint64(&a.words[i/a.cellsPerWord])
	cell := (w >> ((i % a.cellsPerWord) * uint64(a.bits))) & a.cellMask
	if cell&1 == 0 {
		return 0, false
	}
	return cell >> 1, true
}

// DataLen returns the total byte footprint of the backing words, for
// external mapping.
func (a *PackedArray) DataLen() uint64 { return uint64(len(a.words)) * 8 }

// WriteTo serializes the raw bit-packed buffer as little-endian words.
func (a *PackedArray) WriteTo(w io.Writer) (int64, error) {
	return writeWordsLE(w, a.words, int64(a.DataLen()))
}

// writeWordsLE writes the first n bytes of words in little-endian
// order.
func writeWordsLE(w io.Writer, words []uint64, n int64) (int64, error) {
	var buf [4096]byte
	var written int64
	for len(words) > 0 && written < n {
		c := 0
		for _, word := range words {
			if c+8 > len(buf) {
				break
			}
			binary.LittleEndian.PutUint64(buf[c:], word)
			c += 8
		}
		words = words[c/8:]
		if int64(c) > n-written {
			c = int(n - written)
		}
		m, err := w.Write(buf[:c])
		written += int64(m)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// wordsView reinterprets data as n little-endian 64-bit words,
// borrowing the buffer when it is word-aligned and holds whole words,
// and copying (with zero padding) otherwise. The borrow relies on a
// little-endian host, which TestLittleEndian asserts.
func wordsView(data []byte, n uint64) []uint64 {
	if uint64(len(data)) >= n*8 &&
		uintptr(unsafe.Pointer(unsafe.SliceData(data)))%8 == 0 {
		return unsafe.Slice((*uint64)(unsafe.Pointer(unsafe.SliceData(data))), n)
	}
	words := make([]uint64, n)
	for i := range words {
		off := i * 8
		if off+8 <= len(data) {
			words[i] = binary.LittleEndian.Uint64(data[off:])
			continue
		}
		var tail [8]byte
		copy(tail[:], data[off:])
		words[i] = binary.LittleEndian.Uint64(tail[:])
	}
	return words
}
