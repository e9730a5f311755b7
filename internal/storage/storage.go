// Package storage implements the database semantic model of §4.1: tables,
// rows, multi-version visibility under read-committed, unique and
// foreign-key constraint enforcement, and row-level locking with
// deadlock detection. The engine is designed to be cloned wholesale on
// every explored micro-step (see Engine.Clone) rather than mutated
// in place by concurrent goroutines -- §5 is explicit that the checker
// itself is single-threaded and that "locks" and "blocking" are pure
// transitions in modeled state, not OS-level synchronization.
package storage

import (
	"sort"

	"entremets/internal/value"
)

// TxID is a dense, small transaction identifier assigned in begin order.
type TxID uint64

// TxState is the transaction state machine of §3.
type TxState int

const (
	Running TxState = iota
	Committed
	Aborted
)

func (s TxState) String() string {
	switch s {
	case Running:
		return "running"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Isolation identifies a transaction's isolation level. Only
// ReadCommitted is within scope per §1's Non-goals.
type Isolation int

const (
	ReadCommitted Isolation = iota
)

func (i Isolation) String() string {
	switch i {
	case ReadCommitted:
		return "read_committed"
	default:
		return "unknown"
	}
}

// Transaction is the per-transaction bookkeeping of §3: id, isolation,
// the set of rows it holds locks on (split into write locks and the
// read-intent locks acquired by "for update", which are equivalent for
// conflict purposes but kept separate for bookkeeping fidelity), and
// terminal state.
type Transaction struct {
	ID             TxID
	State          TxState
	Isolation      Isolation
	WriteLocks     map[rowRef]struct{}
	ForUpdateLocks map[rowRef]struct{}
}

func newTransaction(id TxID, iso Isolation) *Transaction {
	return &Transaction{
		ID:             id,
		State:          Running,
		Isolation:      iso,
		WriteLocks:     make(map[rowRef]struct{}),
		ForUpdateLocks: make(map[rowRef]struct{}),
	}
}

func (t *Transaction) locksRow(r rowRef) bool {
	if _, ok := t.WriteLocks[r]; ok {
		return true
	}
	_, ok := t.ForUpdateLocks[r]
	return ok
}

// rowRef names a row within a specific table, used as a lock key.
type rowRef struct {
	Table string
	Row   value.RowID
}

// versionedRow is the per-row version history of §3: a committed value
// (or tombstone) and at most one pending value belonging to the current
// lock holder.
type versionedRow struct {
	hasCommitted    bool
	committed       value.Row
	committedTomb   bool
	committedBy     TxID
	hasPending      bool
	pending         value.Row
	pendingTomb     bool
	pendingOwner    TxID
	lockHolder      TxID // 0 means unlocked
}

func (r *versionedRow) locked() bool { return r.lockHolder != 0 }

// ForeignKey declares that Columns of the owning table must match
// ForeignColumns of RefTable for every live, non-nil row.
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
}

// inboundForeignKey records, from the referenced table's side, which
// child table and foreign key point at it -- the reverse of ForeignKey,
// used at commit time to reject tombstoning a row a live child still
// references (spec.md:64, §8 invariant 5).
type inboundForeignKey struct {
	ChildTable string
	FK         ForeignKey
}

// Table is a named collection of versioned rows plus its declared
// constraints.
type Table struct {
	Name          string
	Columns       []string
	rows          map[value.RowID]*versionedRow
	nextRowID     value.RowID
	UniqueIndexes [][]string
	ForeignKeys   []ForeignKey
}

func newTable(name string, columns []string) *Table {
	return &Table{Name: name, Columns: append([]string(nil), columns...), rows: make(map[value.RowID]*versionedRow)}
}

func (t *Table) clone() *Table {
	cp := &Table{
		Name:      t.Name,
		Columns:   append([]string(nil), t.Columns...),
		rows:      make(map[value.RowID]*versionedRow, len(t.rows)),
		nextRowID: t.nextRowID,
	}
	for id, row := range t.rows {
		rowCopy := *row
		if row.hasCommitted {
			rowCopy.committed = row.committed.Clone()
		}
		if row.hasPending {
			rowCopy.pending = row.pending.Clone()
		}
		cp.rows[id] = &rowCopy
	}
	for _, idx := range t.UniqueIndexes {
		cp.UniqueIndexes = append(cp.UniqueIndexes, append([]string(nil), idx...))
	}
	for _, fk := range t.ForeignKeys {
		cp.ForeignKeys = append(cp.ForeignKeys, ForeignKey{
			Columns:    append([]string(nil), fk.Columns...),
			RefTable:   fk.RefTable,
			RefColumns: append([]string(nil), fk.RefColumns...),
		})
	}
	return cp
}

// sortedRowIDs returns a table's live row ids in a deterministic order,
// used wherever iteration order must not depend on map hash
// randomization (e.g. "for update" lock acquisition order, §4.2).
func (t *Table) sortedRowIDs() []value.RowID {
	ids := make([]value.RowID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Engine is the storage engine of §4.1: a set of tables plus the active
// transaction set.
type Engine struct {
	Tables       map[string]*Table
	Transactions map[TxID]*Transaction
	nextTxID     TxID
	tableOrder   []string
	inbound      map[string][]inboundForeignKey // RefTable -> FKs pointing at it
}

// NewEngine constructs an empty storage engine.
func NewEngine() *Engine {
	return &Engine{
		Tables:       make(map[string]*Table),
		Transactions: make(map[TxID]*Transaction),
		inbound:      make(map[string][]inboundForeignKey),
	}
}

// rebuildInbound recomputes the RefTable -> child-FK index from the
// current tables' own ForeignKeys, the single source of truth.
func (e *Engine) rebuildInbound() {
	e.inbound = make(map[string][]inboundForeignKey)
	for _, t := range e.Tables {
		for _, fk := range t.ForeignKeys {
			e.inbound[fk.RefTable] = append(e.inbound[fk.RefTable], inboundForeignKey{ChildTable: t.Name, FK: fk})
		}
	}
}

// Clone returns a deep, independent copy of the engine, the unit of
// structural sharing the scheduler uses when forming BFS successor
// states (§9 notes structural sharing is an optimization, not a
// correctness requirement, so a straightforward deep copy is used here).
func (e *Engine) Clone() *Engine {
	cp := &Engine{
		Tables:       make(map[string]*Table, len(e.Tables)),
		Transactions: make(map[TxID]*Transaction, len(e.Transactions)),
		nextTxID:     e.nextTxID,
		tableOrder:   append([]string(nil), e.tableOrder...),
	}
	for name, tbl := range e.Tables {
		cp.Tables[name] = tbl.clone()
	}
	for id, tx := range e.Transactions {
		txCopy := &Transaction{
			ID:             tx.ID,
			State:          tx.State,
			Isolation:      tx.Isolation,
			WriteLocks:     make(map[rowRef]struct{}, len(tx.WriteLocks)),
			ForUpdateLocks: make(map[rowRef]struct{}, len(tx.ForUpdateLocks)),
		}
		for r := range tx.WriteLocks {
			txCopy.WriteLocks[r] = struct{}{}
		}
		for r := range tx.ForUpdateLocks {
			txCopy.ForUpdateLocks[r] = struct{}{}
		}
		cp.Transactions[id] = txCopy
	}
	cp.rebuildInbound()
	return cp
}

// CreateTable declares a new table. Init-block DDL only.
func (e *Engine) CreateTable(name string, columns []string) error {
	if _, exists := e.Tables[name]; exists {
		return &DDLError{Op: "create table", Message: "table " + name + " already exists"}
	}
	e.Tables[name] = newTable(name, columns)
	e.tableOrder = append(e.tableOrder, name)
	return nil
}

// CreateUniqueIndex declares a unique index over a column tuple.
func (e *Engine) CreateUniqueIndex(table string, columns []string) error {
	t, ok := e.Tables[table]
	if !ok {
		return &DDLError{Op: "create unique index", Message: "unknown table " + table}
	}
	t.UniqueIndexes = append(t.UniqueIndexes, append([]string(nil), columns...))
	return nil
}

// AddForeignKey declares a foreign key from table.columns to
// refTable.refColumns, validated at commit time.
func (e *Engine) AddForeignKey(table string, columns []string, refTable string, refColumns []string) error {
	t, ok := e.Tables[table]
	if !ok {
		return &DDLError{Op: "add foreign key", Message: "unknown table " + table}
	}
	if _, ok := e.Tables[refTable]; !ok {
		return &DDLError{Op: "add foreign key", Message: "unknown referenced table " + refTable}
	}
	t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
		Columns:    append([]string(nil), columns...),
		RefTable:   refTable,
		RefColumns: append([]string(nil), refColumns...),
	})
	e.rebuildInbound()
	return nil
}

// TableNames returns the declared tables in declaration order.
func (e *Engine) TableNames() []string {
	return append([]string(nil), e.tableOrder...)
}
