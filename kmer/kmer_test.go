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

package kmer

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func revComp(s string) string {
	comp := map[byte]byte{'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A'}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b[len(s)-1-i] = comp[s[i]]
	}
	return string(b)
}

func TestEncodeDecode(t *testing.T) {
	words := []string{
		"A", "T",
		"AAA", "TTT", "ACGT", "GATTACA",
		strings.Repeat("A", MaxK),
		strings.Repeat("T", MaxK),
	}
	for _, w := range words {
		key, err := Encode([]byte(w))
		require.NoError(t, err)
		require.NotZero(t, key, "zero keys are reserved for empty slots")
		require.Equal(t, w, Decode(key, len(w)))
	}

	// Lower case encodes identically.
	a, err := Encode([]byte("gattaca"))
	require.NoError(t, err)
	b, err := Encode([]byte("GATTACA"))
	require.NoError(t, err)
	require.Equal(t, b, a)

	_, err = Encode([]byte("ACGN"))
	require.Error(t, err)
	_, err = Encode([]byte(strings.Repeat("A", MaxK+1)))
	require.Error(t, err)
}

func TestKeyBits(t *testing.T) {
	// Every encodable k-mer must fit the advertised cell width: the
	// payload is 2k+1 bits and the largest key is the all-T word.
	for _, k := range []int{1, 3, MaxK} {
		key, err := Encode([]byte(strings.Repeat("T", k)))
		require.NoError(t, err)
		payload := uint64(KeyBits(k)) - 1
		require.Less(t, key, uint64(1)<<payload)
		require.LessOrEqual(t, KeyBits(k), uint32(64))
	}
}

func TestScanner(t *testing.T) {
	s := NewScanner(3, false)
	s.Reset([]byte("ACGTA"))

	var got []uint64
	for {
		key, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, key)
	}

	var want []uint64
	for _, w := range []string{"ACG", "CGT", "GTA"} {
		key, err := Encode([]byte(w))
		require.NoError(t, err)
		want = append(want, key)
	}
	require.Equal(t, want, got)
}

func TestScannerInvalidBases(t *testing.T) {
	// An N breaks the word: no k-mer may span it.
	s := NewScanner(3, false)
	s.Reset([]byte("ACGNTGCA"))

	var got []string
	for {
		key, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, Decode(key, 3))
	}
	require.Equal(t, []string{"ACG", "TGC", "GCA"}, got)

	// A sequence shorter than k yields nothing.
	s.Reset([]byte("AC"))
	_, ok := s.Next()
	require.False(t, ok)
}

func TestScannerCanonical(t *testing.T) {
	const k = 5
	rng := rand.New(rand.NewSource(7))
	seq := make([]byte, 200)
	for i := range seq {
		seq[i] = "ACGT"[rng.Intn(4)]
	}

	s := NewScanner(k, true)
	s.Reset(seq)
	for i := 0; i+k <= len(seq); i++ {
		key, ok := s.Next()
		require.True(t, ok)

		word := string(seq[i : i+k])
		rc := revComp(word)
		if rc < word {
			word = rc
		}
		expect, err := Encode([]byte(word))
		require.NoError(t, err)
		require.Equal(t, expect, key, "position %d", i)
	}
	_, ok := s.Next()
	require.False(t, ok)

	// A k-mer and its reverse complement produce the same key.
	s.Reset([]byte("ACGTC"))
	a, ok := s.Next()
	require.True(t, ok)
	s.Reset([]byte(revComp("ACGTC")))
	b, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, a, b)
}
