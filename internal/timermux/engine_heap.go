package timermux

import (
	"container/heap"
	"sync"
	"time"

	"obc-hal-go/x/timex"
)

type dueHeap []*Node

func (h dueHeap) Len() int           { return len(h) }
func (h dueHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h dueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *dueHeap) Push(x any)        { n := x.(*Node); n.index = len(*h); *h = append(*h, n) }
func (h *dueHeap) Pop() any {
	old := *h
	k := len(old)
	n := old[k-1]
	old[k-1] = nil
	n.index = -1
	*h = old[:k-1]
	return n
}
func (h dueHeap) Top() *Node {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// heapEngine schedules deadlines in-process; it needs no OS timer objects.
type heapEngine struct {
	mu     sync.Mutex
	h      dueHeap
	wakeCh chan struct{}
}

func newHeapEngine(*Mux) *heapEngine {
	return &heapEngine{wakeCh: make(chan struct{}, 1)}
}

func (e *heapEngine) arm(n *Node) error {
	e.mu.Lock()
	n.due = time.Now().Add(n.interval).UnixNano()
	heap.Push(&e.h, n)
	e.mu.Unlock()
	return nil
}

func (e *heapEngine) release(n *Node) {
	e.mu.Lock()
	if n.index >= 0 {
		heap.Remove(&e.h, n.index)
	}
	e.mu.Unlock()
}

func (e *heapEngine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

func (e *heapEngine) shutdown() {}

func (e *heapEngine) loop(m *Mux) {
	m.bindPoller()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for !m.quitting() {
		wait := e.nextWait()
		if wait < 0 {
			select {
			case <-m.quit:
				return
			case <-e.wakeCh:
			}
			continue
		}
		if wait == 0 {
			if fire := e.popDue(); fire != nil {
				m.dispatch(fire)
			}
			continue
		}

		timex.ResetTimer(timer, time.Duration(wait))
		select {
		case <-m.quit:
			return
		case <-e.wakeCh:
		case <-timer.C:
		}
	}
}

// popDue takes the earliest node if it is due. Periodic nodes are pushed
// back one interval after their previous deadline; one-shot nodes leave
// the heap but stay registered with the Mux.
func (e *heapEngine) popDue() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	top := e.h.Top()
	if top == nil || top.due > time.Now().UnixNano() {
		return nil
	}
	n := heap.Pop(&e.h).(*Node)
	if n.mode == Periodic {
		n.due += int64(n.interval)
		if now := time.Now().UnixNano(); n.due < now {
			n.due = now // fell behind; coalesce missed expiries
		}
		heap.Push(&e.h, n)
	}
	return n
}

func (e *heapEngine) nextWait() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	top := e.h.Top()
	if top == nil {
		return -1
	}
	now := time.Now().UnixNano()
	if top.due <= now {
		return 0
	}
	return top.due - now
}
