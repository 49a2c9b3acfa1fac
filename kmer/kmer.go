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

// Package kmer packs fixed-length DNA words into the non-zero integer
// keys the counter table stores. Bases are 2-bit coded (A=0, C=1, G=2,
// T=3) and the packed code is offset by one so that the all-A word is
// representable: a k-mer key occupies 2k+1 payload bits, so a table
// holding k-mers needs KeyBits(k) wide cells. k is limited to 31.
package kmer

import "fmt"

// MaxK is the longest representable k-mer: 2k+1 payload bits plus the
// table's presence bit must fit a 64-bit cell.
const MaxK = 31

var codes = func() (t [256]int8) {
	for i := range t {
		t[i] = -1
	}
	t['A'], t['a'] = 0, 0
	t['C'], t['c'] = 1, 1
	t['G'], t['g'] = 2, 2
	t['T'], t['t'] = 3, 3
	return t
}()

const bases = "ACGT"

// KeyBits returns the table cell width needed for k-mer keys.
func KeyBits(k int) uint32 {
	return uint32(2*k + 2)
}

// Encode packs word, which must be exactly k valid bases long, into a
// key.
func Encode(word []byte) (uint64, error) {
	if len(word) > MaxK {
		return 0, fmt.Errorf("kmer: word length %d exceeds %d", len(word), MaxK)
	}
	var code uint64
	for _, b := range word {
		c := codes[b]
		if c < 0 {
			return 0, fmt.Errorf("kmer: invalid base %q", b)
		}
		code = code<<2 | uint64(c)
	}
	return code + 1, nil
}

// Decode unpacks a key produced by Encode or Scanner back into its
// k-mer string.
func Decode(key uint64, k int) string {
	code := key - 1
	word := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		word[i] = bases[code&3]
		code >>= 2
	}
	return string(word)
}

// Scanner streams the k-mers of a sequence, one key per position. An
// invalid base (N and friends) breaks the word; scanning resumes once
// k valid bases follow it. With Canonical set each k-mer is reported
// as the smaller of itself and its reverse complement, so a count
// accumulated through it is strand-independent.
type Scanner struct {
	K         int
	Canonical bool

	seq   []byte
	pos   int
	valid int
	fwd   uint64
	rev   uint64
	mask  uint64
}

// NewScanner returns a scanner for words of length k.
func NewScanner(k int, canonical bool) *Scanner {
	if k < 1 || k > MaxK {
		panic(fmt.Sprintf("kmer: k %d out of range [1,%d]", k, MaxK))
	}
	return &Scanner{
		K:         k,
		Canonical: canonical,
		mask:      1<<(2*k) - 1,
	}
}

// Reset points the scanner at a new sequence.
func (s *Scanner) Reset(seq []byte) {
	s.seq = seq
	s.pos = 0
	s.valid = 0
	s.fwd = 0
	s.rev = 0
}

// Next returns the key of the next k-mer, or ok=false at the end of
// the sequence.
func (s *Scanner) Next() (key uint64, ok bool) {
	for s.pos < len(s.seq) {
		c := codes[s.seq[s.pos]]
		s.pos++
		if c < 0 {
			s.valid = 0
			continue
		}
		s.fwd = (s.fwd<<2 | uint64(c)) & s.mask
		s.rev = s.rev>>2 | uint64(3-c)<<(2*(s.K-1))
		if s.valid < s.K {
			s.valid++
		}
		if s.valid < s.K {
			continue
		}
		code := s.fwd
		if s.Canonical && s.rev < code {
			code = s.rev
		}
		return code + 1, true
	}
	return 0, false
}
