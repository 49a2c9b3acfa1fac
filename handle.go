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

// Handle is a worker's private view of the table: a cached generation
// pointer (one reference held) plus the reprobe budget. A Handle is
// owned by exactly one goroutine; all inserts from that goroutine go
// through it. Close the handle when the worker is done, even if it
// exits early, so resize rounds do not wait for it.
type Handle[V Value] struct {
	t          *Table[V]
	gen        *generation[V]
	maxReprobe uint32
}

// Inc is Add(key, 1).
func (h *Handle[V]) Inc(key uint64) { h.Add(key, 1) }

// Add inserts key with counter value, or adds value to its existing
// counter, saturating at all-ones. key must be non-zero and at most
// the table's MaxKey.
//
// If the head generation moved since the last call, Add first helps
// copy the old generation over. If the reprobe budget is exhausted it
// triggers a resize: first a try-lock attempt, then one escalation of
// the budget to 4x when another worker holds the lock, and finally a
// blocking resize. After any resize Add re-reads the head before
// probing again.
func (h *Handle[V]) Add(key uint64, value V) {
	var reprobe uint32
	emax := h.maxReprobe
	hash := h.t.hasher(key)

	for {
		cur := h.t.current.Load()
		if cur != h.gen {
			// The table was resized. Move to the new head, help with
			// copying over, and release the old generation.
			old := h.gen
			cur.refInc()
			h.gen = cur
			h.copyOver(old)
			release(old)
			reprobe = 0
			continue
		}

		idx := hash & cur.modMask
		for {
			if cur.add(idx, key, value) {
				return
			}
			h.t.stats.incKeyConflicts()

			reprobe++
			if reprobe > emax {
				h.t.stats.incMaxedReprobe()
				if h.t.resize(cur, false) {
					break
				}
				if emax > h.maxReprobe {
					// The budget already escalated once and another
					// worker still holds the resize lock: block until
					// a resize has happened, then re-read the head.
					h.t.resize(cur, true)
					break
				}
				emax = 4 * h.maxReprobe
			}

			idx = (idx + uint64(reprobe)) & cur.modMask
		}
	}
}

// copyOver migrates the old generation into the current one. The
// barrier makes every worker enter the copy together, so none is still
// writing old when the first slot is read. Workers then claim chunks
// from old's shared cursor and re-insert every occupied slot through
// Add; the saturating merge makes racing copiers and live inserts on
// the same destination compose correctly. Add may itself observe a
// further resize and recurse, bounded by the number of resizes this
// worker missed.
func (h *Handle[V]) copyOver(old *generation[V]) {
	h.t.bar.wait()
	for {
		start, end, ok := old.getChunk()
		if !ok {
			return
		}
		for i := start; i < end; i++ {
			if k, v, ok := old.get(i); ok {
				h.Add(k, v)
			}
		}
	}
}

// Close retires the worker: it helps finish any copy-over the worker
// has not yet contributed to, releases the generation reference, and
// deregisters from the copy barrier so later rounds do not wait for
// this worker. The handle must not be used afterward.
func (h *Handle[V]) Close() {
	if h.gen == nil {
		return
	}
	for {
		cur := h.t.current.Load()
		if cur == h.gen {
			break
		}
		old := h.gen
		cur.refInc()
		h.gen = cur
		h.copyOver(old)
		release(old)
	}
	release(h.gen)
	h.gen = nil
	h.t.bar.drop()
}
