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

import "sync"

// barrier is a cyclic counting barrier sized to the declared worker
// count. Workers wait on it once per resize event, before claiming
// copy chunks. No worker copies a slot of the old generation until
// every registered worker has arrived, which guarantees no worker is
// still writing the old generation when copying starts, and
// establishes the happens-before edge between head publication and the
// first copy.
//
// drop deregisters a departing worker, completing any round that was
// waiting only on workers that have since closed their handles.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	arrived int
	round   uint64
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until parties workers (registered at the time the round
// completes) have arrived.
func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrived++
	if b.arrived >= b.parties {
		b.trip()
		return
	}
	r := b.round
	for r == b.round {
		b.cond.Wait()
	}
}

// drop removes one party. If a round was waiting only on the departed
// party it completes now.
func (b *barrier) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parties--
	if b.arrived > 0 && b.arrived >= b.parties {
		b.trip()
	}
}

func (b *barrier) trip() {
	b.arrived = 0
	b.round++
	b.cond.Broadcast()
}
