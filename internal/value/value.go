// Package value implements the scalar value and row model of the
// database semantic model: tagged SQL values, unordered rows, and the
// equality/ordering rules the storage engine and scheduler rely on for
// deterministic state fingerprinting.
package value

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindNil Kind = iota
	KindInteger
	KindBool
	KindTuple
	KindSet
	KindTxHandle
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "NIL"
	case KindInteger:
		return "INTEGER"
	case KindBool:
		return "BOOL"
	case KindTuple:
		return "TUPLE"
	case KindSet:
		return "SET"
	case KindTxHandle:
		return "TX"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged variant over the scalar types the DSL and the SQL
// subset can produce: integers, booleans, SQL null, ordered tuples,
// unordered (multi)sets, and opaque transaction handles.
type Value struct {
	kind    Kind
	integer int64
	boolean bool
	tuple   []Value
	set     []Value
	tx      uint64
}

// Nil is the SQL null value.
var Nil = Value{kind: KindNil}

// Int constructs an Integer value.
func Int(n int64) Value { return Value{kind: KindInteger, integer: n} }

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Tuple constructs an ordered Tuple value.
func Tuple(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindTuple, tuple: cp}
}

// Set constructs an unordered Set value. Duplicates are permitted and
// kept; Equal compares two sets as multisets, so duplicate counts matter.
func Set(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSet, set: cp}
}

// TxHandle constructs an opaque reference to a transaction id.
func TxHandle(id uint64) Value { return Value{kind: KindTxHandle, tx: id} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsInt returns the wrapped integer. Callers must check Kind() first.
func (v Value) AsInt() int64 { return v.integer }

// AsBool returns the wrapped boolean. Callers must check Kind() first.
func (v Value) AsBool() bool { return v.boolean }

// AsTuple returns the wrapped tuple elements. Callers must check Kind() first.
func (v Value) AsTuple() []Value { return v.tuple }

// AsSet returns the wrapped set elements. Callers must check Kind() first.
func (v Value) AsSet() []Value { return v.set }

// AsTxHandle returns the wrapped transaction id. Callers must check Kind() first.
func (v Value) AsTxHandle() uint64 { return v.tx }

// Truthy evaluates a Value in boolean context. Only Bool values are
// truthy/falsy; anything else is a type error the caller should have
// already rejected during type checking.
func (v Value) Truthy() bool {
	return v.kind == KindBool && v.boolean
}

// Equal reports whether two values are equal under SQL-ish equality:
// Nil is never equal to anything including another Nil (matches SQL
// tri-valued comparison collapsed to a boolean for the model checker's
// purposes -- see Compare for ordering, which does treat Nil as
// comparable for canonicalization).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return false
	case KindInteger:
		return v.integer == other.integer
	case KindBool:
		return v.boolean == other.boolean
	case KindTxHandle:
		return v.tx == other.tx
	case KindTuple:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if !v.tuple[i].Equal(other.tuple[i]) {
				return false
			}
		}
		return true
	case KindSet:
		return equalAsMultiset(v.set, other.set)
	default:
		return false
	}
}

func equalAsMultiset(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for i, bv := range b {
			if used[i] {
				continue
			}
			if av.Equal(bv) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Compare imposes a total, deterministic order over values of the same
// kind, used only for canonicalizing Set/Tuple contents before hashing a
// world state. Nil sorts before everything; cross-kind comparisons order
// by Kind.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNil:
		return 0
	case KindInteger:
		switch {
		case a.integer < b.integer:
			return -1
		case a.integer > b.integer:
			return 1
		default:
			return 0
		}
	case KindBool:
		if a.boolean == b.boolean {
			return 0
		}
		if !a.boolean {
			return -1
		}
		return 1
	case KindTxHandle:
		switch {
		case a.tx < b.tx:
			return -1
		case a.tx > b.tx:
			return 1
		default:
			return 0
		}
	case KindTuple, KindSet:
		av, bv := a.tuple, a.set
		if a.kind == KindSet {
			av = sortedCopy(a.set)
			bv = sortedCopy(b.set)
		} else {
			bv = b.tuple
		}
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return len(av) - len(bv)
	default:
		return 0
	}
}

func sortedCopy(vs []Value) []Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	sort.Slice(cp, func(i, j int) bool { return Compare(cp[i], cp[j]) < 0 })
	return cp
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInteger:
		return fmt.Sprintf("%d", v.integer)
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindTxHandle:
		return fmt.Sprintf("tx#%d", v.tx)
	case KindTuple:
		parts := make([]string, len(v.tuple))
		for i, e := range v.tuple {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindSet:
		sorted := sortedCopy(v.set)
		parts := make([]string, len(sorted))
		for i, e := range sorted {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<invalid>"
	}
}
