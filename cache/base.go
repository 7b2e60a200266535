package cache

import (
	"container/list"
	"sync"

	"github.com/joeycumines/go-reactor/result"
)

// entry is the value type shared by every policy's bookkeeping structures.
// Not every field is meaningful for every policy: used is read by Clock and
// CART; longterm, dead, and owner are CART-only (dead marks a ghost entry,
// one that has been evicted from T1/T2 but is still remembered in B1/B2 so
// that a near-term re-Put can detect the reuse pattern and adapt; owner
// records which of CART's four lists currently holds this entry's element,
// since a container/list.Element does not expose its own list).
type entry struct {
	key      string
	value    string
	size     int
	used     bool
	longterm bool
	dead     bool
	owner    *list.List
}

func itemSize(key, value string) int { return len(key) + len(value) }

// kill demotes a live entry to a ghost: the key is remembered but the
// value's storage is released.
func (e *entry) kill() {
	e.dead = true
	e.used = false
	e.value = ""
}

// evictor is the set of policy-specific extension points that base
// delegates to. base holds a reference to the concrete policy (self) and
// calls through it; every policy embeds base and supplies self at
// construction.
type evictor interface {
	clear()
	evictOne(e *entry)
	evictAny()
	place(e *entry)
	replace(e *entry)
	touch(e *entry)
	visualize() string
}

// base implements the Cache contract's bookkeeping (key/size accounting,
// capacity enforcement) shared by Clock, LRU, and CART, leaving eviction
// order and ghost-list behavior to the embedding policy via evictor.
type base struct {
	mu       sync.Mutex
	items    map[string]*entry
	maxItems int
	maxBytes int
	numItems int
	numBytes int
	self     evictor
}

func (b *base) init(o Options, self evictor) {
	if o.MaxItems <= 0 && o.MaxBytes <= 0 {
		panic("cache: at least one of MaxItems, MaxBytes must be positive")
	}
	b.items = make(map[string]*entry)
	b.maxItems = o.MaxItems
	b.maxBytes = o.MaxBytes
	b.self = self
}

func (b *base) Get(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.items[key]
	if !ok || e.dead {
		return "", false
	}
	b.self.touch(e)
	return e.value, true
}

// Put rejects oversized items outright, makes room by item count before
// the insert, then trims by byte count after.
func (b *base) Put(key, value string) result.Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := itemSize(key, value)
	if b.maxBytes > 0 && size > b.maxBytes {
		return result.New(result.OutOfRange, "item too large")
	}

	if e, ok := b.items[key]; ok {
		if e.dead {
			// Making room can trim the ghost lists; re-index the entry in
			// case the ghost being resurrected was itself trimmed.
			b.evictItemsUntilRoom()
			b.items[key] = e
			b.self.replace(e)
			b.numItems++
		} else {
			b.numBytes -= e.size
		}
		e.value = value
		e.size = size
		b.numBytes += size
	} else {
		e := &entry{key: key, value: value, size: size}
		b.evictItemsUntilRoom()
		b.items[key] = e
		b.numItems++
		b.numBytes += size
		b.self.place(e)
	}

	for b.maxBytes > 0 && b.numBytes > b.maxBytes {
		b.self.evictAny()
	}
	return result.Ok()
}

func (b *base) evictItemsUntilRoom() {
	for b.maxItems > 0 && b.numItems >= b.maxItems {
		b.self.evictAny()
	}
}

func (b *base) Remove(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.items[key]
	if !ok || e.dead {
		return false
	}
	b.self.evictOne(e)
	return true
}

func (b *base) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]*entry)
	b.numItems = 0
	b.numBytes = 0
	b.self.clear()
}

func (b *base) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{NumItems: b.numItems, NumBytes: b.numBytes}
}

func (b *base) Visualize() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.self.visualize()
}

// forget removes e from the shared key index entirely, as opposed to
// marking it dead.
func (b *base) forget(e *entry) { delete(b.items, e.key) }

// markEvicted removes an item from the live item/byte accounting,
// independent of whether it is forgotten outright (Clock, LRU) or demoted
// to a ghost (CART).
func (b *base) markEvicted(e *entry) {
	b.numItems--
	b.numBytes -= e.size
}
