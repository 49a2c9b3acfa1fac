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
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerationRounding(t *testing.T) {
	var stats Stats
	for _, c := range []struct {
		request, size uint64
	}{
		{1, 1},
		{2, 2},
		{3, 4},
		{5, 8},
		{1000, 1024},
		{1024, 1024},
	} {
		g := newGeneration[uint32](64, c.request, nil, defaultAllocator{}, &stats)
		require.EqualValues(t, c.size, g.size)
		require.EqualValues(t, c.size-1, g.modMask)
	}
}

func TestGenerationAdd(t *testing.T) {
	var stats Stats
	g := newGeneration[uint32](64, 8, nil, defaultAllocator{}, &stats)

	require.True(t, g.add(3, 7, 2))
	require.True(t, g.add(3, 7, 5))
	k, v, ok := g.get(3)
	require.True(t, ok)
	require.EqualValues(t, 7, k)
	require.EqualValues(t, 7, v)

	// A different key at the same slot is a conflict.
	require.False(t, g.add(3, 8, 1))

	// Untouched slots stay empty.
	_, _, ok = g.get(4)
	require.False(t, ok)
}

func TestGenerationSaturate(t *testing.T) {
	t.Run("uint8", func(t *testing.T) {
		var stats Stats
		g := newGeneration[uint8](64, 8, nil, defaultAllocator{}, &stats)
		require.True(t, g.add(0, 1, 200))
		require.True(t, g.add(0, 1, 100))
		require.EqualValues(t, 255, g.loadVal(0))
		// Saturated is terminal.
		require.True(t, g.add(0, 1, 1))
		require.EqualValues(t, 255, g.loadVal(0))
	})

	t.Run("uint32", func(t *testing.T) {
		var stats Stats
		g := newGeneration[uint32](64, 8, nil, defaultAllocator{}, &stats)
		require.True(t, g.add(0, 1, math.MaxUint32-1))
		// One short of all-ones plus two must clamp, never wrap.
		require.True(t, g.add(0, 1, 2))
		require.EqualValues(t, uint32(math.MaxUint32), g.loadVal(0))
	})
}

func TestGenerationValueLanes(t *testing.T) {
	// Eight 8-bit lanes share each word with their neighbours without
	// interference.
	test := func(t *testing.T, g *generation[uint8]) {
		for i := uint64(0); i < g.size; i++ {
			require.True(t, g.add(i, i+1, uint8(i%200)+1))
		}
		for i := uint64(0); i < g.size; i++ {
			k, v, ok := g.get(i)
			require.True(t, ok)
			require.EqualValues(t, i+1, k)
			require.EqualValues(t, uint8(i%200)+1, v)
		}
	}
	var stats Stats
	test(t, newGeneration[uint8](64, 64, nil, defaultAllocator{}, &stats))
}

func TestGenerationChunks(t *testing.T) {
	for _, size := range []uint64{4, 64, 128, 256, 1 << 12} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			var stats Stats
			g := newGeneration[uint32](64, size, nil, defaultAllocator{}, &stats)

			covered := make([]bool, size)
			chunks := 0
			for {
				start, end, ok := g.getChunk()
				if !ok {
					break
				}
				chunks++
				require.Less(t, start, end)
				for i := start; i < end; i++ {
					require.False(t, covered[i])
					covered[i] = true
				}
			}
			require.LessOrEqual(t, chunks, copyChunks)
			for i := range covered {
				require.True(t, covered[i], "slot %d never claimed", i)
			}

			// Exhausted stays exhausted.
			_, _, ok := g.getChunk()
			require.False(t, ok)
		})
	}
}

func TestGenerationChunksConcurrent(t *testing.T) {
	var stats Stats
	g := newGeneration[uint32](64, 1<<14, nil, defaultAllocator{}, &stats)

	var (
		mu      sync.Mutex
		claimed [][2]uint64
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				start, end, ok := g.getChunk()
				if !ok {
					return
				}
				mu.Lock()
				claimed = append(claimed, [2]uint64{start, end})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	covered := make([]bool, g.size)
	for _, c := range claimed {
		for i := c[0]; i < c[1]; i++ {
			require.False(t, covered[i])
			covered[i] = true
		}
	}
	for i := range covered {
		require.True(t, covered[i])
	}
}

func TestGenerationRefCascade(t *testing.T) {
	a := &countingAllocator{}
	var stats Stats

	g0 := newGeneration[uint32](64, 8, nil, a, &stats)
	g0.refInc() // head reference
	g0.refInc() // a handle caches g0

	g1 := newGeneration[uint32](64, 16, g0, a, &stats)
	g1.refInc() // new head reference
	g0.refDec() // not the head anymore

	require.Same(t, g1, g0.next)
	require.EqualValues(t, 4, a.allocs())
	require.EqualValues(t, 0, a.frees())

	// The handle moves on: g0 is destroyed and its link reference on
	// g1 released, but g1 survives as the head.
	release(g0)
	require.EqualValues(t, 2, a.frees())
	require.Equal(t, []int{8, 4}, a.freedSizes())

	// Dropping the head reference frees the rest of the chain.
	release(g1)
	require.EqualValues(t, 4, a.frees())
	require.Equal(t, []int{8, 4, 16, 8}, a.freedSizes())
}
