package cache

import (
	"container/list"
	"fmt"
	"strings"
)

// lruCache is the plain least-recently-used policy, a move-to-front
// queue over container/list: Front is most-recently-used, Back is the
// next eviction victim.
type lruCache struct {
	base
	q     *list.List
	index map[string]*list.Element
}

func newLRU(o Options) *lruCache {
	c := &lruCache{q: list.New(), index: make(map[string]*list.Element)}
	c.init(o, c)
	return c
}

func (c *lruCache) clear() {
	c.q = list.New()
	c.index = make(map[string]*list.Element)
}

func (c *lruCache) place(e *entry) {
	c.index[e.key] = c.q.PushFront(e)
}

func (c *lruCache) replace(e *entry) {}

func (c *lruCache) touch(e *entry) {
	el, ok := c.index[e.key]
	if !ok {
		return
	}
	c.q.MoveToFront(el)
}

func (c *lruCache) evictOne(e *entry) {
	el, ok := c.index[e.key]
	if !ok {
		return
	}
	c.q.Remove(el)
	delete(c.index, e.key)
	c.markEvicted(e)
	c.forget(e)
}

func (c *lruCache) evictAny() {
	el := c.q.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.q.Remove(el)
	delete(c.index, e.key)
	c.markEvicted(e)
	c.forget(e)
}

func (c *lruCache) visualize() string {
	var sb strings.Builder
	sb.WriteString("LRU[")
	for el := c.q.Front(); el != nil; el = el.Next() {
		fmt.Fprintf(&sb, "%s ", el.Value.(*entry).key)
	}
	sb.WriteString("]")
	return sb.String()
}
