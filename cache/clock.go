package cache

import (
	"container/list"
	"fmt"
	"strings"
)

// clockCache is the Clock page-replacement policy: entries sit on a ring,
// a hand sweeps the ring looking for an unused entry to evict, clearing
// the used bit of everything it passes over. The ring is a container/list
// whose hand wraps back to the front after the last element.
type clockCache struct {
	base
	ring  *list.List
	hand  *list.Element
	index map[string]*list.Element
}

func newClock(o Options) *clockCache {
	c := &clockCache{ring: list.New(), index: make(map[string]*list.Element)}
	c.init(o, c)
	return c
}

func (c *clockCache) clear() {
	c.ring = list.New()
	c.hand = nil
	c.index = make(map[string]*list.Element)
}

func (c *clockCache) place(e *entry) {
	var el *list.Element
	if c.hand != nil {
		el = c.ring.InsertBefore(e, c.hand)
	} else {
		el = c.ring.PushBack(e)
		c.hand = el
	}
	c.index[e.key] = el
}

func (c *clockCache) replace(e *entry) {}

func (c *clockCache) touch(e *entry) { e.used = true }

func (c *clockCache) evictOne(e *entry) {
	el, ok := c.index[e.key]
	if !ok {
		return
	}
	if c.hand == el {
		c.advanceHand()
		if c.hand == el {
			// The hand wrapped back onto the victim: it was the ring's
			// only element.
			c.hand = nil
		}
	}
	c.ring.Remove(el)
	delete(c.index, e.key)
	c.markEvicted(e)
	c.forget(e)
}

func (c *clockCache) evictAny() {
	for {
		if c.ring.Len() == 0 {
			return
		}
		if c.hand == nil {
			c.hand = c.ring.Front()
		}
		e := c.hand.Value.(*entry)
		if !e.used {
			victim := c.hand
			c.advanceHand()
			if c.hand == victim {
				c.hand = nil
			}
			c.ring.Remove(victim)
			delete(c.index, e.key)
			c.markEvicted(e)
			c.forget(e)
			return
		}
		e.used = false
		c.advanceHand()
	}
}

func (c *clockCache) advanceHand() {
	if c.hand == nil {
		return
	}
	next := c.hand.Next()
	if next == nil {
		next = c.ring.Front()
	}
	c.hand = next
}

func (c *clockCache) visualize() string {
	var sb strings.Builder
	sb.WriteString("Clock[")
	for el := c.ring.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		mark := ""
		if el == c.hand {
			mark = "*"
		}
		used := "-"
		if e.used {
			used = "u"
		}
		fmt.Fprintf(&sb, "%s%s(%s) ", mark, e.key, used)
	}
	sb.WriteString("]")
	return sb.String()
}
