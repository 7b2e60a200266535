package cache

import (
	"container/list"
	"fmt"
	"strings"

	"github.com/joeycumines/go-reactor/internal/clamp"
	"github.com/joeycumines/go-reactor/internal/corelog"
)

// cart implements CART (Clock with Adaptive Replacement and Temporal
// filtering), after Bansal & Modha's "CAR: Clock with Adaptive
// Replacement" (FAST '04), Figure 3.
//
// Each region is its own container/list: moving an entry to the tail of
// T2 is a Remove+PushBack between two independent lists, so the region
// boundary is a property of which list holds an entry's element. The
// algorithm itself is the clock-style used-bit aging of T1 and T2, the
// ns/nl counters (non-longterm T1 occupancy and combined T1+T2 longterm
// occupancy), and the p/q adaptive targets that grow or shrink in
// response to ghost-list hits.
type cart struct {
	base

	t1, t2 *list.List // live entries; T2 entries are always longterm
	b1, b2 *list.List // ghost entries (dead == true)
	idx    map[string]*list.Element

	p, q   int // T1 target size; B1 target size
	ns, nl int // T1 non-longterm count; T1+T2 longterm count
}

func newCART(o Options) *cart {
	if o.MaxItems <= 0 {
		panic("cache: CART requires Options.MaxItems > 0")
	}
	c := &cart{
		t1:  list.New(),
		t2:  list.New(),
		b1:  list.New(),
		b2:  list.New(),
		idx: make(map[string]*list.Element),
	}
	c.init(o, c)
	return c
}

// nn is the number of free slots, derived rather than tracked: the
// invariant nn + ns + nl == maxItems holds throughout.
func (c *cart) nn() int { return c.maxItems - c.ns - c.nl }

func (c *cart) clear() {
	c.t1, c.t2, c.b1, c.b2 = list.New(), list.New(), list.New(), list.New()
	c.idx = make(map[string]*list.Element)
	c.p, c.q, c.ns, c.nl = 0, 0, 0, 0
}

func (c *cart) growP() {
	x := 1
	if n := c.b1.Len(); n > 0 {
		x = clamp.Max(x, c.ns/n)
	}
	c.p = clamp.Min(c.p+x, c.maxItems)
}

func (c *cart) shrinkP() {
	x := 1
	if n := c.b2.Len(); n > 0 {
		x = clamp.Max(x, c.nl/n)
	}
	c.p = clamp.Max(c.p-x, 0)
}

func (c *cart) growQ() {
	limit := 2*c.maxItems - c.t1.Len()
	c.q = clamp.Min(c.q+1, limit)
}

func (c *cart) shrinkQ() {
	x := c.maxItems - c.t1.Len()
	if c.q > x+1 {
		c.q--
	} else {
		c.q = x
	}
}

// t1Advance rotates T1's clock hand past its current head: the element
// itself is unchanged, it simply moves to the list's tail so the next
// sweep examines what follows.
func (c *cart) t1Advance() {
	if el := c.t1.Front(); el != nil {
		c.t1.MoveToBack(el)
	}
}

func (c *cart) moveT1HeadToT2Tail() {
	el := c.t1.Front()
	e := el.Value.(*entry)
	c.t1.Remove(el)
	e.owner = c.t2
	c.idx[e.key] = c.t2.PushBack(e)
}

func (c *cart) moveT2HeadToT1Tail() {
	el := c.t2.Front()
	e := el.Value.(*entry)
	c.t2.Remove(el)
	e.owner = c.t1
	c.idx[e.key] = c.t1.PushBack(e)
}

// place inserts a brand-new entry (Bansal Fig. 3 lines 12-13). It always
// lands in T1, unmarked.
func (c *cart) place(e *entry) {
	e.owner = c.t1
	c.idx[e.key] = c.t1.PushBack(e)
	c.ns++
}

// replace resurrects a ghost entry found in B1 or B2 back into T1
// (Bansal Fig. 3 lines 15-20). A B1 hit means
// the entry was evicted too eagerly and earns longterm status on arrival; a
// B2 hit means it was already longterm and simply returns to T1, where the
// aging loop will relocate it back to T2 on its first pass.
func (c *cart) replace(e *entry) {
	el, ok := c.idx[e.key]
	if !ok {
		// The ghost was trimmed while making room; treat it as a fresh
		// placement instead.
		e.dead = false
		e.longterm = false
		e.used = false
		c.place(e)
		return
	}
	if e.longterm {
		c.shrinkP()
		c.b2.Remove(el)
		e.dead = false
		e.owner = c.t1
		c.idx[e.key] = c.t1.PushBack(e)
		c.nl++
		if c.b2.Len() >= c.nn()+c.ns {
			c.growQ()
		}
		return
	}
	c.growP()
	c.b1.Remove(el)
	e.dead = false
	e.longterm = true
	e.owner = c.t1
	c.idx[e.key] = c.t1.PushBack(e)
	c.nl++
}

func (c *cart) touch(e *entry) { e.used = true }

// evictOne removes a specific live entry outright (no ghost is created).
// base.Remove never calls this for an already-dead entry, so e is always
// live here.
func (c *cart) evictOne(e *entry) {
	el, ok := c.idx[e.key]
	if !ok {
		return
	}
	e.owner.Remove(el)
	delete(c.idx, e.key)
	c.markEvicted(e)
	c.forget(e)
	if e.longterm {
		c.nl--
	} else {
		c.ns--
	}
}

// evictAny picks and demotes a victim to a ghost list (Bansal Fig. 3
// lines 6-10, 23-40).
func (c *cart) evictAny() {
	if c.nn() <= 0 {
		// Lines 23-26: give every currently-used T2 entry one more
		// lap before it can be considered long-term-stable.
		for c.t2.Len() > 0 {
			e := c.t2.Front().Value.(*entry)
			if !e.used {
				break
			}
			e.used = false
			c.moveT2HeadToT1Tail()
			if c.b2.Len() >= c.nn()+c.ns {
				c.growQ()
			}
		}

		// Lines 27-35: age T1, promoting entries that have proven
		// themselves used since being placed, and relocating entries
		// already promoted to T2.
		for c.t1.Len() > 0 {
			e := c.t1.Front().Value.(*entry)
			if e.used {
				e.used = false
				c.t1Advance()
				limit := clamp.Min(c.p+1, c.b1.Len())
				if !e.longterm && c.t1.Len() >= limit {
					e.longterm = true
					c.nl++
					c.ns--
				}
			} else if e.longterm {
				c.moveT1HeadToT2Tail()
				c.shrinkQ()
			} else {
				break
			}
		}
	}

	// Lines 36-40: pick the actual victim. Byte-bound evictions can run
	// with T2 empty (the aging sweep above is skipped while nn > 0), so
	// an empty T2 always sends the hand to T1.
	p := clamp.Max(c.p, 1)
	if c.t1.Len() >= p || c.t2.Len() == 0 {
		el := c.t1.Front()
		e := el.Value.(*entry)
		c.t1.Remove(el)
		c.markEvicted(e)
		c.demoteToGhost(e)
		corelog.Get().Debug().Str("key", e.key).Str("region", "t1").Log("cache: cart evicted entry")
	} else {
		el := c.t2.Front()
		e := el.Value.(*entry)
		c.t2.Remove(el)
		c.markEvicted(e)
		c.demoteToGhost(e)
		corelog.Get().Debug().Str("key", e.key).Str("region", "t2").Log("cache: cart evicted entry")
	}

	// Lines 6-10: bound the combined size of the ghost lists so they
	// cannot grow without bound.
	if c.nn() == 1 && c.b1.Len()+c.b2.Len() > c.maxItems {
		victims := c.b2
		if c.b1.Len() > c.q || c.b2.Len() == 0 {
			victims = c.b1
		}
		c.forgetGhostTail(victims)
	}
	if c.t2.Len()+c.b2.Len() > c.maxItems {
		c.forgetGhostTail(c.b2)
	}
}

// demoteToGhost kills e's value and files its key on the ghost list
// matching its longterm flag (B1 holds short-term evictees, B2 long-term
// ones), keeping the region invariants intact no matter which clock the
// victim came off of.
func (c *cart) demoteToGhost(e *entry) {
	e.kill()
	if e.longterm {
		e.owner = c.b2
		c.idx[e.key] = c.b2.PushFront(e)
		c.nl--
	} else {
		e.owner = c.b1
		c.idx[e.key] = c.b1.PushFront(e)
		c.ns--
	}
}

func (c *cart) forgetGhostTail(ghosts *list.List) {
	el := ghosts.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	ghosts.Remove(el)
	delete(c.idx, e.key)
	c.forget(e)
}

func (c *cart) visualize() string {
	var sb strings.Builder
	writeRegion := func(name string, l *list.List) {
		sb.WriteString(name)
		sb.WriteString("[")
		for el := l.Front(); el != nil; el = el.Next() {
			fmt.Fprintf(&sb, "%s ", el.Value.(*entry).key)
		}
		sb.WriteString("] ")
	}
	writeRegion("T1", c.t1)
	writeRegion("T2", c.t2)
	writeRegion("B1", c.b1)
	writeRegion("B2", c.b2)
	fmt.Fprintf(&sb, "p=%d q=%d nn=%d ns=%d nl=%d", c.p, c.q, c.nn(), c.ns, c.nl)
	return sb.String()
}
