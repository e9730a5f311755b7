// Package scheduler builds the reachable state graph of §4.4 by
// breadth-first search: from the init state, it enumerates every
// admissible micro-step across all processes, applies latch rendezvous
// and deadlock-victim resolution, and stops at a visited-set of
// canonical fingerprints.
package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"entremets/internal/ast"
	"entremets/internal/interp"
	"entremets/internal/sqlexec"
	"entremets/internal/storage"
	"entremets/internal/value"
)

// WorldState is one point in the reachable state graph: the storage
// engine's full content plus every process's reified control state.
type WorldState struct {
	Engine    *storage.Engine
	Processes []*interp.ProcessState
	txOwner   map[storage.TxID]txLabel
}

type txLabel struct {
	process string
	ordinal int
}

// InitialState runs the init block to completion outside any transaction
// (its seed rows are committed directly, see sqlexec.RunInit) and returns
// the root world state, one fresh ProcessState per declared process.
func InitialState(spec *ast.Spec) (*WorldState, error) {
	engine := storage.NewEngine()
	if err := sqlexec.RunInit(spec.Init, engine); err != nil {
		return nil, err
	}
	procs := make([]*interp.ProcessState, len(spec.Processes))
	for i, p := range spec.Processes {
		procs[i] = interp.New(p)
	}
	return &WorldState{Engine: engine, Processes: procs, txOwner: map[storage.TxID]txLabel{}}, nil
}

// Clone returns an independent deep copy: the unit of structural
// sharing the explorer needs when branching one state into its
// successors.
func (ws *WorldState) Clone() *WorldState {
	procs := make([]*interp.ProcessState, len(ws.Processes))
	for i, p := range ws.Processes {
		procs[i] = p.Clone()
	}
	owner := make(map[storage.TxID]txLabel, len(ws.txOwner))
	for k, v := range ws.txOwner {
		owner[k] = v
	}
	return &WorldState{Engine: ws.Engine.Clone(), Processes: procs, txOwner: owner}
}

// adoptNewTransactions labels every transaction id in the engine not
// already known to this state's lineage as belonging to owner (the
// process that just stepped), in begin order. At most one such id
// normally appears per step, but the loop handles the general case.
func (ws *WorldState) adoptNewTransactions(owner string) {
	var fresh []int
	for id := range ws.Engine.Transactions {
		if _, ok := ws.txOwner[id]; !ok {
			fresh = append(fresh, int(id))
		}
	}
	sort.Ints(fresh)
	ordinal := 0
	for _, l := range ws.txOwner {
		if l.process == owner {
			ordinal++
		}
	}
	for _, idInt := range fresh {
		ordinal++
		ws.txOwner[storage.TxID(idInt)] = txLabel{process: owner, ordinal: ordinal}
	}
}

// labelFunc renders a TxID as a schedule-independent label: the owning
// process's name plus that process's transaction ordinal. This is what
// lets two states reached by starting transactions in a different
// relative order still fingerprint identically (§4.4).
func (ws *WorldState) labelFunc() storage.TxLabel {
	return func(id storage.TxID) string {
		if id == 0 {
			return "none"
		}
		if l, ok := ws.txOwner[id]; ok {
			return fmt.Sprintf("%s#%d", l.process, l.ordinal)
		}
		return fmt.Sprintf("unlabeled#%d", id)
	}
}

// Status answers tx.committed / tx.aborted lookups against this
// state's processes, for sqlexec's ProcessFieldRef evaluation.
func (ws *WorldState) Status() sqlexec.ProcessStatus {
	return func(name string) (committed, aborted bool, err error) {
		for _, p := range ws.Processes {
			if p.Name == name {
				return p.LastCommitted, p.LastAborted, nil
			}
		}
		return false, false, &ExploreError{Message: "property references unknown process " + name}
	}
}

// MergedVars merges every process's current let bindings into one
// Row, for property expressions to read bare $name references against.
// Specs are expected to use distinct binding names across processes;
// on a collision the last process in declaration order wins.
func (ws *WorldState) MergedVars() value.Row {
	merged := make(value.Row)
	for _, p := range ws.Processes {
		for k, v := range p.Vars {
			merged[k] = v
		}
	}
	return merged
}

// Fingerprint renders the canonical string two WorldStates produce
// identically iff they are indistinguishable for visited-set purposes:
// the engine's content (RowId-order-independent) plus every process's
// control state (program-counter path, not pointer identity), all
// transaction references rewritten through labelFunc.
func (ws *WorldState) Fingerprint() string {
	label := ws.labelFunc()
	var b strings.Builder
	b.WriteString(storage.Fingerprint(ws.Engine, label))
	procFps := make([]string, len(ws.Processes))
	for i, p := range ws.Processes {
		procFps[i] = p.Fingerprint(label)
	}
	sort.Strings(procFps)
	for _, pf := range procFps {
		b.WriteString("process ")
		b.WriteString(pf)
		b.WriteByte('\n')
	}
	return b.String()
}

// AliveCount returns the number of processes that have not finished.
func (ws *WorldState) AliveCount() int {
	n := 0
	for _, p := range ws.Processes {
		if !p.Finished {
			n++
		}
	}
	return n
}
