// Package lockgraph tracks which thread waits on which mutex holder and
// reports wait-for cycles, i.e. deadlocks, as soon as the closing edge is
// added.
package lockgraph

import (
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph is a directed wait-for graph over thread ids. An edge a→b means
// thread a is blocked on a mutex held by thread b. A thread waits on at
// most one holder at a time.
type Graph struct {
	mu sync.Mutex
	g  *simple.DirectedGraph
}

func New() *Graph {
	return &Graph{g: simple.NewDirectedGraph()}
}

// Wait records that waiter is blocked on owner. When the edge closes a
// cycle the cycle is returned, starting and ending at waiter; otherwise
// nil.
func (l *Graph) Wait(waiter, owner int64) []int64 {
	if waiter == owner {
		return []int64{waiter, waiter}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clearOut(waiter)
	from, to := l.node(waiter), l.node(owner)
	l.g.SetEdge(l.g.NewEdge(from, to))

	if !topo.PathExistsIn(l.g, to, from) {
		return nil
	}
	for _, c := range topo.DirectedCyclesIn(l.g) {
		if ids := rotate(c, waiter); ids != nil {
			return ids
		}
	}
	return nil
}

// Done removes waiter's wait edge, after it acquired the mutex or gave up.
func (l *Graph) Done(waiter int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearOut(waiter)
}

// Forget drops a thread and every edge touching it.
func (l *Graph) Forget(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.g.Node(id) != nil {
		l.g.RemoveNode(id)
	}
}

// Cycles reports every wait-for cycle currently in the graph.
func (l *Graph) Cycles() [][]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out [][]int64
	for _, c := range topo.DirectedCyclesIn(l.g) {
		out = append(out, ids(c))
	}
	return out
}

// Edges returns the number of waits currently recorded.
func (l *Graph) Edges() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.g.Edges().Len()
}

func (l *Graph) node(id int64) graph.Node {
	if n := l.g.Node(id); n != nil {
		return n
	}
	n := simple.Node(id)
	l.g.AddNode(n)
	return n
}

func (l *Graph) clearOut(id int64) {
	if l.g.Node(id) == nil {
		return
	}
	var to []int64
	for it := l.g.From(id); it.Next(); {
		to = append(to, it.Node().ID())
	}
	for _, t := range to {
		l.g.RemoveEdge(id, t)
	}
	l.prune(id)
	for _, t := range to {
		l.prune(t)
	}
}

// prune removes an isolated node so the graph only holds live waits.
func (l *Graph) prune(id int64) {
	if l.g.Node(id) == nil {
		return
	}
	if l.g.From(id).Len() == 0 && l.g.To(id).Len() == 0 {
		l.g.RemoveNode(id)
	}
}

func ids(c []graph.Node) []int64 {
	out := make([]int64, len(c))
	for i, n := range c {
		out[i] = n.ID()
	}
	return out
}

// rotate returns cycle c (first node repeated last) starting at id, or nil
// when id is not on it.
func rotate(c []graph.Node, id int64) []int64 {
	if len(c) < 2 {
		return nil
	}
	ring := ids(c[:len(c)-1])
	for i, v := range ring {
		if v == id {
			out := append(append([]int64{}, ring[i:]...), ring[:i]...)
			return append(out, id)
		}
	}
	return nil
}
