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
	"io"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Stats is the table's global counter block. Collection is a build-time
// choice: compile with -tags counterstats to enable it; without the tag
// every increment is a dead branch the compiler removes. The counters
// share a cache line between themselves but not with neighbouring
// table state.
type Stats struct {
	_             cpu.CacheLinePad
	keyConflicts  atomic.Uint64
	valConflicts  atomic.Uint64
	destroyedKeys atomic.Uint64
	destroyedVals atomic.Uint64
	maxedOutVal   atomic.Uint64
	maxedReprobe  atomic.Uint64
	resizedArys   atomic.Uint64
	_             cpu.CacheLinePad
}

// StatsSnapshot is a plain copy of the counters, taken with Table.Stats.
type StatsSnapshot struct {
	KeyConflicts  uint64 `json:"key_conflicts"`
	ValConflicts  uint64 `json:"val_conflicts"`
	DestroyedKeys uint64 `json:"destroyed_key"`
	DestroyedVals uint64 `json:"destroyed_val"`
	MaxedOutVal   uint64 `json:"maxed_out_val"`
	MaxedReprobe  uint64 `json:"maxed_reprobe"`
	ResizedArys   uint64 `json:"resized_arys"`
}

// StatsEnabled reports whether this build collects statistics.
func StatsEnabled() bool { return statsEnabled }

func (s *Stats) incKeyConflicts() {
	if statsEnabled {
		s.keyConflicts.Add(1)
	}
}

func (s *Stats) incValConflicts() {
	if statsEnabled {
		s.valConflicts.Add(1)
	}
}

func (s *Stats) incDestroyedKeys() {
	if statsEnabled {
		s.destroyedKeys.Add(1)
	}
}

func (s *Stats) incDestroyedVals() {
	if statsEnabled {
		s.destroyedVals.Add(1)
	}
}

func (s *Stats) incMaxedOutVal() {
	if statsEnabled {
		s.maxedOutVal.Add(1)
	}
}

func (s *Stats) incMaxedReprobe() {
	if statsEnabled {
		s.maxedReprobe.Add(1)
	}
}

func (s *Stats) incResizedArys() {
	if statsEnabled {
		s.resizedArys.Add(1)
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		KeyConflicts:  s.keyConflicts.Load(),
		ValConflicts:  s.valConflicts.Load(),
		DestroyedKeys: s.destroyedKeys.Load(),
		DestroyedVals: s.destroyedVals.Load(),
		MaxedOutVal:   s.maxedOutVal.Load(),
		MaxedReprobe:  s.maxedReprobe.Load(),
		ResizedArys:   s.resizedArys.Load(),
	}
}

// print writes one "name: value" line per counter, "-" for every
// counter when the build has stats compiled out.
func (s *Stats) print(w io.Writer) error {
	snap := s.snapshot()
	for _, c := range []struct {
		name string
		val  uint64
	}{
		{"key_conflicts", snap.KeyConflicts},
		{"val_conflicts", snap.ValConflicts},
		{"destroyed_key", snap.DestroyedKeys},
		{"destroyed_val", snap.DestroyedVals},
		{"maxed_out_val", snap.MaxedOutVal},
		{"maxed_reprobe", snap.MaxedReprobe},
		{"resized_arys", snap.ResizedArys},
	} {
		var err error
		if statsEnabled {
			_, err = fmt.Fprintf(w, "%s: %d\n", c.name, c.val)
		} else {
			_, err = fmt.Fprintf(w, "%s: -\n", c.name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
