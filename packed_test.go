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
	"bytes"
	"fmt"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestLittleEndian(t *testing.T) {
	// The zero-copy word view over serialized buffers assumes a
	// little endian CPU architecture. Assert that we are running on
	// one.
	b := []uint8{0x1, 0x2, 0x3, 0x4}
	v := *(*uint32)(unsafe.Pointer(&b[0]))
	require.EqualValues(t, 0x04030201, v)
}

func TestPackedArraySetGet(t *testing.T) {
	testCases := []struct {
		bits uint32
		size uint64
	}{
		{2, 16},
		{5, 64},
		{16, 128},
		{33, 100},
		{64, 32},
	}
	for _, c := range testCases {
		t.Run(fmt.Sprintf("bits=%d", c.bits), func(t *testing.T) {
			a := NewPackedArray(c.bits, c.size)
			require.EqualValues(t, c.size, a.Len())

			for i := uint64(0); i < c.size; i++ {
				_, ok := a.Get(i)
				require.False(t, ok)
			}

			// Install a distinct key in every other cell.
			for i := uint64(0); i < c.size; i += 2 {
				k := i%a.MaxKey() + 1
				require.True(t, a.Set(i, k))
			}
			for i := uint64(0); i < c.size; i++ {
				k, ok := a.Get(i)
				if i%2 == 1 {
					require.False(t, ok)
					continue
				}
				require.True(t, ok)
				require.EqualValues(t, i%a.MaxKey()+1, k)
			}

			// Setting the same key again succeeds, a different key
			// does not, and neither disturbs the cell.
			require.True(t, a.Set(0, 1))
			if a.MaxKey() > 1 {
				require.False(t, a.Set(0, 2))
			}
			k, ok := a.Get(0)
			require.True(t, ok)
			require.EqualValues(t, 1, k)
		})
	}
}

func TestPackedArrayMaxKey(t *testing.T) {
	a := NewPackedArray(17, 8)
	require.EqualValues(t, uint64(1)<<16-1, a.MaxKey())
	require.True(t, a.Set(3, a.MaxKey()))
	k, ok := a.Get(3)
	require.True(t, ok)
	require.EqualValues(t, a.MaxKey(), k)
}

func TestPackedArrayWordSharing(t *testing.T) {
	// With 16-bit cells, four cells share each word. Concurrent
	// installs into the same word must all land despite CAS retries on
	// neighbour updates.
	const size = 1024
	a := NewPackedArray(16, size)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g uint64) {
			defer wg.Done()
			for i := g; i < size; i += 4 {
				require.True(t, a.Set(i, i+1))
			}
		}(uint64(g))
	}
	wg.Wait()

	for i := uint64(0); i < size; i++ {
		k, ok := a.Get(i)
		require.True(t, ok)
		require.EqualValues(t, i+1, k)
	}
}

func TestPackedArrayConcurrentSameCell(t *testing.T) {
	// Racing installs of different keys into one cell: exactly one
	// key wins, the install is never retracted, and losers see false.
	const racers = 8
	for iter := 0; iter < 100; iter++ {
		a := NewPackedArray(32, 4)
		var (
			wg   sync.WaitGroup
			wins [racers]bool
		)
		for g := 0; g < racers; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				wins[g] = a.Set(0, uint64(g)+1)
			}(g)
		}
		wg.Wait()

		winner, ok := a.Get(0)
		require.True(t, ok)
		won := 0
		for g := 0; g < racers; g++ {
			if wins[g] {
				won++
				require.EqualValues(t, g+1, winner)
			}
		}
		require.Equal(t, 1, won)
	}
}

func TestPackedArrayWriteTo(t *testing.T) {
	a := NewPackedArray(21, 64)
	for i := uint64(0); i < 64; i += 3 {
		require.True(t, a.Set(i, i*7+1))
	}

	var buf bytes.Buffer
	n, err := a.WriteTo(&buf)
	require.NoError(t, err)
	require.EqualValues(t, a.DataLen(), n)
	require.EqualValues(t, a.DataLen(), buf.Len())

	b := newPackedArray(21, 64, wordsView(buf.Bytes(), packedWordCount(21, 64)))
	for i := uint64(0); i < 64; i++ {
		ak, aok := a.Get(i)
		bk, bok := b.Get(i)
		require.Equal(t, aok, bok)
		require.Equal(t, ak, bk)
	}
}

func TestWordsViewUnaligned(t *testing.T) {
	// Force the copying path by handing wordsView a buffer that does
	// not start on a word boundary.
	raw := make([]byte, 33)
	for i := range raw {
		raw[i] = byte(i)
	}
	var data []byte
	if uintptr(unsafe.Pointer(unsafe.SliceData(raw)))%8 == 0 {
		data = raw[1:]
	} else {
		data = raw[:32]
	}
	words := wordsView(data, 4)
	for i, w := range words {
		var expect uint64
		for j := 7; j >= 0; j-- {
			expect = expect<<8 | uint64(data[i*8+j])
		}
		require.Equal(t, expect, w)
	}
}
