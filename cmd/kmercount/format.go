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

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/seqtools/counter"
)

// A dump file is a fixed header followed by the table's raw
// serialization (packed key words, then counter lanes).
var dumpMagic = [4]byte{'K', 'M', 'C', 1}

const headerLen = 4 + 4 + 4 + 8

type dumpHeader struct {
	keyBits   uint32
	valueSize uint32
	size      uint64
}

func (h dumpHeader) k() int {
	// The kmer package uses 2k+1 payload bits per key.
	return int(h.keyBits-2) / 2
}

func writeHeader(w io.Writer, h dumpHeader) error {
	var buf [headerLen]byte
	copy(buf[:4], dumpMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], h.keyBits)
	binary.LittleEndian.PutUint32(buf[8:], h.valueSize)
	binary.LittleEndian.PutUint64(buf[12:], h.size)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(data []byte) (dumpHeader, error) {
	if len(data) < headerLen || [4]byte(data[:4]) != dumpMagic {
		return dumpHeader{}, fmt.Errorf("not a kmercount dump")
	}
	h := dumpHeader{
		keyBits:   binary.LittleEndian.Uint32(data[4:]),
		valueSize: binary.LittleEndian.Uint32(data[8:]),
		size:      binary.LittleEndian.Uint64(data[12:]),
	}
	if h.valueSize != 4 {
		return dumpHeader{}, fmt.Errorf("unsupported counter width %d", h.valueSize)
	}
	return h, nil
}

// loadDump reads a dump file back into a read-only table.
func loadDump(path string) (*counter.Table[uint32], dumpHeader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dumpHeader{}, err
	}
	h, err := readHeader(data)
	if err != nil {
		return nil, dumpHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	tb, err := counter.FromBytes[uint32](h.keyBits, h.size, data[headerLen:])
	if err != nil {
		return nil, dumpHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	return tb, h, nil
}
