package ast

import "strings"

// IntLit is an integer literal.
type IntLit struct{ Value int64 }

func (e *IntLit) exprNode()        {}
func (e *IntLit) rhsNode()         {}
func (e *IntLit) NodeType() string { return "IntLit" }
func (e *IntLit) String() string   { return itoa(e.Value) }

// BoolLit is a boolean literal.
type BoolLit struct{ Value bool }

func (e *BoolLit) exprNode()        {}
func (e *BoolLit) rhsNode()         {}
func (e *BoolLit) NodeType() string { return "BoolLit" }
func (e *BoolLit) String() string {
	if e.Value {
		return "true"
	}
	return "false"
}

// NilLit is the SQL null literal.
type NilLit struct{}

func (e *NilLit) exprNode()        {}
func (e *NilLit) rhsNode()         {}
func (e *NilLit) NodeType() string { return "NilLit" }
func (e *NilLit) String() string   { return "nil" }

// VarRef references a process-local variable bound by a let statement,
// written "$name" in the DSL.
type VarRef struct{ Name string }

func (e *VarRef) exprNode()        {}
func (e *VarRef) rhsNode()         {}
func (e *VarRef) NodeType() string { return "VarRef" }
func (e *VarRef) String() string   { return "$" + e.Name }

// ColumnRef references a column of the row currently under evaluation
// (inside a WHERE/SET predicate) or a bare identifier inside a property
// expression.
type ColumnRef struct{ Name string }

func (e *ColumnRef) exprNode()        {}
func (e *ColumnRef) rhsNode()         {}
func (e *ColumnRef) NodeType() string { return "ColumnRef" }
func (e *ColumnRef) String() string   { return e.Name }

// ProcessFieldRef reads whether a process's most recent transaction
// committed or aborted, as seen by a property expression:
// "process.committed" or "process.aborted". No other field is accepted;
// process-local variables are read through VarRef instead.
type ProcessFieldRef struct {
	Process string
	Field   string
}

func (e *ProcessFieldRef) exprNode()        {}
func (e *ProcessFieldRef) rhsNode()         {}
func (e *ProcessFieldRef) NodeType() string { return "ProcessFieldRef" }
func (e *ProcessFieldRef) String() string   { return e.Process + "." + e.Field }

// MemberExpr accesses tx.committed / tx.aborted on an arbitrary
// expression that evaluates to a TxHandle.
type MemberExpr struct {
	Object Expr
	Member string
}

func (e *MemberExpr) exprNode()        {}
func (e *MemberExpr) rhsNode()         {}
func (e *MemberExpr) NodeType() string { return "MemberExpr" }
func (e *MemberExpr) String() string   { return e.Object.String() + "." + e.Member }

// BinaryExpr is an arithmetic, comparison, or logical binary operator.
type BinaryExpr struct {
	Op    string // + - * / % = <> < <= > >= and or
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) exprNode()        {}
func (e *BinaryExpr) rhsNode()         {}
func (e *BinaryExpr) NodeType() string { return "BinaryExpr" }
func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

// UnaryExpr is a prefix unary operator: "not" (boolean negation) or
// unary "-" (integer negation).
type UnaryExpr struct {
	Op      string
	Operand Expr
}

func (e *UnaryExpr) exprNode()        {}
func (e *UnaryExpr) rhsNode()         {}
func (e *UnaryExpr) NodeType() string { return "UnaryExpr" }
func (e *UnaryExpr) String() string   { return e.Op + " " + e.Operand.String() }

// TupleLit is an ordered tuple literal.
type TupleLit struct{ Items []Expr }

func (e *TupleLit) exprNode()        {}
func (e *TupleLit) rhsNode()         {}
func (e *TupleLit) NodeType() string { return "TupleLit" }
func (e *TupleLit) String() string {
	parts := make([]string, len(e.Items))
	for i, it := range e.Items {
		parts[i] = it.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// SetLit is an unordered set literal.
type SetLit struct{ Items []Expr }

func (e *SetLit) exprNode()        {}
func (e *SetLit) rhsNode()         {}
func (e *SetLit) NodeType() string { return "SetLit" }
func (e *SetLit) String() string {
	parts := make([]string, len(e.Items))
	for i, it := range e.Items {
		parts[i] = it.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// InExpr tests membership of Item within Collection (a SetLit, TupleLit,
// or any expression evaluating to one).
type InExpr struct {
	Item       Expr
	Collection Expr
}

func (e *InExpr) exprNode()        {}
func (e *InExpr) rhsNode()         {}
func (e *InExpr) NodeType() string { return "InExpr" }
func (e *InExpr) String() string   { return e.Item.String() + " in " + e.Collection.String() }

// CountExpr is count(*) or count(col) over a select's result set.
type CountExpr struct {
	Column string // "*" for count(*)
	Source *SelectStmt
}

func (e *CountExpr) exprNode()        {}
func (e *CountExpr) rhsNode()         {}
func (e *CountExpr) NodeType() string { return "CountExpr" }
func (e *CountExpr) String() string   { return "count(" + e.Column + ") " + e.Source.String() }

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
