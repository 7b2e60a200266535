package reactor

import (
	"container/heap"
	"time"

	"github.com/joeycumines/go-reactor/task"
)

// timerEntry is one pending SetTimeout/SetDeadline registration: a
// deadline plus the Task to expire when it arrives.
type timerEntry struct {
	when      time.Time
	task      *task.Task
	cancelled bool
}

// timerHeap is a min-heap of timerEntry ordered by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerLoop owns the deadline heap: it sleeps until the earliest pending
// deadline (or a timerCh nudge after a new SetDeadline) and expires tasks
// whose time has come. The heap is only ever mutated via heap.Push/Pop
// under timerMu, so it needs no separate initialization.
func (m *Manager) timerLoop() {
	defer m.wg.Done()
	for {
		m.timerMu.Lock()
		for len(m.timers) > 0 && m.timers[0].cancelled {
			heap.Pop(&m.timers)
		}
		if m.shutdown.Load() {
			m.timerMu.Unlock()
			return
		}
		var wait time.Duration
		haveTimer := len(m.timers) > 0
		if haveTimer {
			wait = time.Until(m.timers[0].when)
		}
		m.timerMu.Unlock()

		if !haveTimer {
			select {
			case <-m.timerCh:
				continue
			case <-m.stopCh:
				return
			}
		}
		if wait <= 0 {
			m.timerMu.Lock()
			entry := heap.Pop(&m.timers).(*timerEntry)
			m.timerMu.Unlock()
			if !entry.cancelled {
				entry.task.Expire()
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-m.timerCh:
			timer.Stop()
		case <-m.stopCh:
			timer.Stop()
			return
		}
	}
}
