package orderbook

import "github.com/google/uuid"

// DefaultTombstoneCap bounds tombstone memory at roughly 16 MiB of ids.
const DefaultTombstoneCap = 1 << 20

// Tombstones records order ids known to have left the book, so a cancel
// can distinguish "already gone" from "never seen".
//
// Membership is monotone while an id is retained. Memory is bounded by
// evicting the oldest entries once cap is reached; an evicted id degrades
// to "unknown" on cancel, which the cancel contract permits.
type Tombstones struct {
	ids  map[uuid.UUID]struct{}
	ring []uuid.UUID
	next int
	full bool
}

// NewTombstones creates a tombstone set retaining at most limit ids.
// limit <= 0 selects DefaultTombstoneCap.
func NewTombstones(limit int) *Tombstones {
	if limit <= 0 {
		limit = DefaultTombstoneCap
	}
	return &Tombstones{
		ids:  make(map[uuid.UUID]struct{}),
		ring: make([]uuid.UUID, limit),
	}
}

// Add records id as departed, evicting the oldest entry when at capacity.
func (t *Tombstones) Add(id uuid.UUID) {
	if _, ok := t.ids[id]; ok {
		return
	}
	if t.full {
		delete(t.ids, t.ring[t.next])
	}
	t.ids[id] = struct{}{}
	t.ring[t.next] = id
	t.next++
	if t.next == len(t.ring) {
		t.next = 0
		t.full = true
	}
}

// Contains reports whether id is a retained tombstone.
func (t *Tombstones) Contains(id uuid.UUID) bool {
	_, ok := t.ids[id]
	return ok
}

// Len returns the number of retained tombstones.
func (t *Tombstones) Len() int {
	return len(t.ids)
}
