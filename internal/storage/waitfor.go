package storage

import "sort"

// WaitForGraph tracks which running transaction each blocked
// transaction is waiting on, for deadlock detection (§4.2). Unlike the
// teacher's lock manager this graph is rebuilt from scratch on every
// scheduler admissibility scan rather than maintained incrementally
// under a mutex -- the checker is single-threaded, so there is nothing
// to synchronize.
type WaitForGraph struct {
	edges map[TxID]TxID // blocked tx -> the tx it is waiting on
}

// NewWaitForGraph constructs an empty wait-for graph.
func NewWaitForGraph() *WaitForGraph {
	return &WaitForGraph{edges: make(map[TxID]TxID)}
}

// AddEdge records that from is blocked waiting for to's lock. Each
// transaction can be blocked on at most one statement at a time, so at
// most one outgoing edge per transaction is ever recorded.
func (g *WaitForGraph) AddEdge(from, to TxID) {
	g.edges[from] = to
}

// DetectCycle runs DFS cycle detection over the wait-for graph and
// returns the transactions on the cycle, in traversal order, if a
// deadlock exists.
func (g *WaitForGraph) DetectCycle() (bool, []TxID) {
	visited := make(map[TxID]bool)
	onStack := make(map[TxID]bool)

	var ids []TxID
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var path []TxID
	var walk func(TxID) bool
	walk = func(id TxID) bool {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		next, ok := g.edges[id]
		if ok {
			if !visited[next] {
				if walk(next) {
					return true
				}
			} else if onStack[next] {
				for i, member := range path {
					if member == next {
						path = path[i:]
						break
					}
				}
				return true
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	for _, id := range ids {
		if !visited[id] {
			path = nil
			if walk(id) {
				return true, path
			}
		}
	}
	return false, nil
}

// Victim applies the checker's deterministic tie-break for deadlock
// resolution (§4.2): the transaction with the highest id among those on
// the cycle is aborted.
func Victim(cycle []TxID) TxID {
	var max TxID
	for _, id := range cycle {
		if id > max {
			max = id
		}
	}
	return max
}
