package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"entremets/internal/ast"
	"entremets/internal/interp"
	"entremets/internal/storage"
)

// Transition is one admissible micro-step out of a world state: which
// process (or, for a latch rendezvous, which processes) moved, a
// rendered description of what happened, and the resulting state.
type Transition struct {
	Process     string
	Description string
	Next        *WorldState
}

// Node is one discovered world state in the explored graph: its
// content, where it was reached from, and whether it is a dead end --
// either every process finished (an ordinary terminal state) or every
// live process is lock-stalled with no cycle to break (a deadlock leaf,
// §4.4).
type Node struct {
	State       *WorldState
	Fingerprint string
	Parent      string
	Via         *Transition
	Deadlock    bool
	HasChildren bool
}

// Terminal reports whether this node has no outgoing transition, the
// condition §4.5's eventually operator is evaluated against.
func (n *Node) Terminal() bool { return !n.HasChildren }

// Graph is the explorer's output: every discovered state, keyed by
// fingerprint, plus root and BFS discovery order (which, since BFS
// visits states in nondecreasing distance from the root, also gives
// the shortest path to any node via its Parent chain).
type Graph struct {
	Nodes map[string]*Node
	Root  string
	Order []string
}

// Path returns the root-to-fp sequence of nodes, inclusive of both
// ends, by walking Parent pointers backward and reversing.
func (g *Graph) Path(fp string) []*Node {
	var rev []*Node
	for cur := fp; cur != ""; {
		n := g.Nodes[cur]
		rev = append(rev, n)
		cur = n.Parent
	}
	path := make([]*Node, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}

// Explore runs the breadth-first search of §4.4 from spec's init state.
// cap, if positive, bounds the number of discovered states; exceeding
// it is reported as an ExploreError rather than allowed to run forever
// against a non-terminating specification.
func Explore(spec *ast.Spec, cap int) (*Graph, error) {
	root, err := InitialState(spec)
	if err != nil {
		return nil, err
	}
	rootFp := root.Fingerprint()
	g := &Graph{Nodes: map[string]*Node{rootFp: {State: root, Fingerprint: rootFp}}, Root: rootFp, Order: []string{rootFp}}
	queue := []string{rootFp}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := g.Nodes[cur]

		transitions, deadlockLeaf, err := successors(node.State)
		if err != nil {
			return nil, err
		}
		if deadlockLeaf {
			node.Deadlock = true
			continue
		}
		node.HasChildren = len(transitions) > 0
		for _, tr := range transitions {
			fp := tr.Next.Fingerprint()
			if _, seen := g.Nodes[fp]; seen {
				continue
			}
			if cap > 0 && len(g.Nodes) >= cap {
				return nil, &ExploreError{Message: fmt.Sprintf("state cap of %d exceeded", cap)}
			}
			trCopy := tr
			g.Nodes[fp] = &Node{State: tr.Next, Fingerprint: fp, Parent: cur, Via: &trCopy}
			g.Order = append(g.Order, fp)
			queue = append(queue, fp)
		}
	}
	return g, nil
}

type stalledTx struct {
	waiting storage.TxID
	holder  storage.TxID
}

// successors enumerates every admissible transition out of state:
// individual process steps, plus a joint latch-rendezvous transition
// when every live process is parked at a latch. If none is admissible
// and at least one process is alive, it attempts deadlock resolution;
// an unresolvable stall (no cycle) is reported via deadlockLeaf.
func successors(state *WorldState) ([]Transition, bool, error) {
	var transitions []Transition
	var stalls []stalledTx
	latchParked := map[int]int{} // process index -> latch level

	for i, p := range state.Processes {
		if p.Finished {
			continue
		}
		if p.AtLatch() {
			latchParked[i] = p.LatchLevel()
			continue
		}
		clone := state.Clone()
		desc := clone.Processes[i].NextDescription()
		res, err := interp.Step(clone.Processes[i], clone.Engine, clone.Status())
		if err != nil {
			return nil, false, err
		}
		switch res.Outcome {
		case interp.Completed:
			clone.adoptNewTransactions(clone.Processes[i].Name)
			transitions = append(transitions, Transition{Process: p.Name, Description: desc, Next: clone})
		case interp.Blocked:
			if p.ActiveTx != 0 {
				stalls = append(stalls, stalledTx{waiting: p.ActiveTx, holder: res.BlockedBy})
			}
		}
	}

	if aliveAndLatched := len(latchParked); aliveAndLatched > 0 && aliveAndLatched == state.AliveCount() {
		if tr, ok := latchRendezvous(state, latchParked); ok {
			transitions = append(transitions, tr)
		}
	}

	if len(transitions) > 0 {
		return transitions, false, nil
	}
	if state.AliveCount() == 0 {
		return nil, false, nil
	}

	tr, resolved, err := resolveDeadlock(state, stalls)
	if err != nil {
		return nil, false, err
	}
	if !resolved {
		return nil, true, nil
	}
	return []Transition{tr}, false, nil
}

// latchRendezvous releases every process parked at the lowest latch
// level among the currently latch-parked set, as one joint transition
// (§4.4: processes parked further ahead do not yet qualify, since their
// own crossing rule requires every other live process at or past their
// level, and the lower-level group has not crossed yet).
func latchRendezvous(state *WorldState, latchParked map[int]int) (Transition, bool) {
	minLevel := -1
	for _, lvl := range latchParked {
		if minLevel == -1 || lvl < minLevel {
			minLevel = lvl
		}
	}
	clone := state.Clone()
	var names []string
	indices := make([]int, 0, len(latchParked))
	for i, lvl := range latchParked {
		if lvl == minLevel {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)
	for _, i := range indices {
		names = append(names, clone.Processes[i].Name)
		interp.AdvancePastLatch(clone.Processes[i])
	}
	desc := fmt.Sprintf("latch %d release: %s", minLevel, strings.Join(names, ", "))
	return Transition{Process: strings.Join(names, "+"), Description: desc, Next: clone}, true
}

// resolveDeadlock builds the wait-for graph (§4.1) over every process
// stalled on a lock inside an open transaction and, if it contains a
// cycle, aborts the deterministic victim (highest transaction id in the
// cycle) as the sole admissible transition. resolved is false when
// every live process is stalled but no cycle exists -- a genuine
// deadlock leaf.
func resolveDeadlock(state *WorldState, stalls []stalledTx) (Transition, bool, error) {
	if len(stalls) == 0 {
		return Transition{}, false, nil
	}
	wf := storage.NewWaitForGraph()
	for _, s := range stalls {
		wf.AddEdge(s.waiting, s.holder)
	}
	hasCycle, cycle := wf.DetectCycle()
	if !hasCycle {
		return Transition{}, false, nil
	}
	victim := storage.Victim(cycle)

	clone := state.Clone()
	var victimProc *interp.ProcessState
	for _, p := range clone.Processes {
		if p.ActiveTx == victim {
			victimProc = p
			break
		}
	}
	if victimProc == nil {
		return Transition{}, false, &ExploreError{Message: "deadlock victim transaction has no owning process"}
	}
	if err := interp.ForceAbort(victimProc, clone.Engine); err != nil {
		return Transition{}, false, err
	}
	label := clone.labelFunc()
	desc := fmt.Sprintf("deadlock detected; aborting %s (%s)", victimProc.Name, label(victim))
	return Transition{Process: victimProc.Name, Description: desc, Next: clone}, true, nil
}
