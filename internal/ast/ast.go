// Package ast defines the specification AST ingested from the parser, as
// described in §6 of the specification: a Spec is { init, processes,
// properties }, a Block is an ordered list of statements, and a
// PropertyExpr wraps a boolean expression in exactly one temporal
// operator. internal/lexer and internal/parser are this module's own
// implementation of the "external" parser the core specification treats
// as a collaborator; internal/storage, internal/sqlexec, internal/interp,
// internal/scheduler and internal/checker consume only this package.
package ast

import "strings"

// Node is the base interface every AST node implements.
type Node interface {
	String() string
	NodeType() string
}

// Stmt is a statement that can appear in a Block.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is a scalar expression.
type Expr interface {
	Node
	exprNode()
}

// Block is an ordered list of statements executed in source order.
type Block []Stmt

func (b Block) String() string {
	parts := make([]string, len(b))
	for i, s := range b {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n")
}

// Spec is the top-level specification: an init block, one or more named
// processes, and one or more named properties.
type Spec struct {
	Init       Block
	Processes  []*ProcessDecl
	Properties []*PropertyDecl
}

func (s *Spec) NodeType() string { return "Spec" }
func (s *Spec) String() string {
	var b strings.Builder
	b.WriteString("init {\n")
	b.WriteString(s.Init.String())
	b.WriteString("\n}\n")
	for _, p := range s.Processes {
		b.WriteString(p.String())
		b.WriteString("\n")
	}
	for _, p := range s.Properties {
		b.WriteString(p.String())
		b.WriteString("\n")
	}
	return b.String()
}

// ProcessDecl names a process and its body.
type ProcessDecl struct {
	Name string
	Body Block
}

func (p *ProcessDecl) NodeType() string { return "ProcessDecl" }
func (p *ProcessDecl) String() string {
	return "process \"" + p.Name + "\" {\n" + p.Body.String() + "\n}"
}

// TemporalOp identifies which temporal operator roots a PropertyDecl.
type TemporalOp int

const (
	Always TemporalOp = iota
	Never
	Eventually
)

func (t TemporalOp) String() string {
	switch t {
	case Always:
		return "always"
	case Never:
		return "never"
	case Eventually:
		return "eventually"
	default:
		return "unknown"
	}
}

// PropertyDecl is a named temporal assertion.
type PropertyDecl struct {
	Name string
	Op   TemporalOp
	Expr Expr
}

func (p *PropertyDecl) NodeType() string { return "PropertyDecl" }
func (p *PropertyDecl) String() string {
	return "property \"" + p.Name + "\" = " + p.Op.String() + "(" + p.Expr.String() + ")"
}
