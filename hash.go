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

	"github.com/zeebo/xxh3"
)

// Hasher maps a key to a 64-bit hash. The hash must be deterministic
// and well-mixed; the table derives slot indices from its low bits.
type Hasher func(key uint64) uint64

// murmurSeed is the fixed seed for the default hasher. Dumps produced
// with the default hasher are position-compatible across processes.
const murmurSeed = 0x818c4070

// defaultHasher hashes the 8 raw little-endian bytes of the key with
// MurmurHash64A.
func defaultHasher(key uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return MurmurHash64A(b[:], murmurSeed)
}

// MurmurHash64A computes Austin Appleby's 64-bit MurmurHash2 of data.
func MurmurHash64A(data []byte, seed uint64) uint64 {
	const (
		m = 0xc6a4a7935bd1e995
		r = 47
	)

	h := seed ^ uint64(len(data))*m

	for ; len(data) >= 8; data = data[8:] {
		k := binary.LittleEndian.Uint64(data)
		k *= m
		k ^= k >> r
		k *= m
		h ^= k
		h *= m
	}

	switch len(data) {
	case 7:
		h ^= uint64(data[6]) << 48
		fallthrough
	case 6:
		h ^= uint64(data[5]) << 40
		fallthrough
	case 5:
		h ^= uint64(data[4]) << 32
		fallthrough
	case 4:
		h ^= uint64(data[3]) << 24
		fallthrough
	case 3:
		h ^= uint64(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint64(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint64(data[0])
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r

	return h
}

// XXH3Hasher returns a Hasher backed by seeded XXH3 over the raw
// little-endian key bytes, for callers that prefer it over the
// default.
func XXH3Hasher(seed uint64) Hasher {
	return func(key uint64) uint64 {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], key)
		return xxh3.HashSeed(b[:], seed)
	}
}
