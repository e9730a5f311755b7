// Package checker evaluates a temporal property (§4.5: always, never,
// eventually) over the state graph an explorer has already discovered,
// reducing each to a question about individual world states or about
// root-to-terminal paths through the graph.
package checker

import (
	"entremets/internal/ast"
	"entremets/internal/scheduler"
	"entremets/internal/sqlexec"
	"entremets/internal/value"
)

// Result reports the outcome of checking one property against a graph.
// Path is the counter-example, root-first, when Violated is true; nil
// otherwise.
type Result struct {
	Property string
	Op       ast.TemporalOp
	Violated bool
	Path     []*scheduler.Node
}

// Check evaluates prop against every state g discovered.
//
// always(e) is violated by the first discovered state where e does not
// hold. never(e) is violated by the first discovered state where e
// holds. eventually(e) is violated by a terminal state none of whose
// ancestors, including itself, satisfy e -- one complete execution along
// which e never became true.
func Check(g *scheduler.Graph, prop *ast.PropertyDecl) (*Result, error) {
	switch prop.Op {
	case ast.Always:
		return checkInvariant(g, prop, true)
	case ast.Never:
		return checkInvariant(g, prop, false)
	case ast.Eventually:
		return checkEventually(g, prop)
	default:
		return nil, &CheckError{Property: prop.Name, Message: "unrecognized temporal operator"}
	}
}

func checkInvariant(g *scheduler.Graph, prop *ast.PropertyDecl, wantHolds bool) (*Result, error) {
	for _, fp := range g.Order {
		node := g.Nodes[fp]
		holds, err := evalAt(node, prop)
		if err != nil {
			return nil, err
		}
		if holds != wantHolds {
			return &Result{Property: prop.Name, Op: prop.Op, Violated: true, Path: g.Path(fp)}, nil
		}
	}
	return &Result{Property: prop.Name, Op: prop.Op}, nil
}

func checkEventually(g *scheduler.Graph, prop *ast.PropertyDecl) (*Result, error) {
	for _, fp := range g.Order {
		node := g.Nodes[fp]
		if !node.Terminal() {
			continue
		}
		path := g.Path(fp)
		satisfied := false
		for _, ancestor := range path {
			holds, err := evalAt(ancestor, prop)
			if err != nil {
				return nil, err
			}
			if holds {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return &Result{Property: prop.Name, Op: prop.Op, Violated: true, Path: path}, nil
		}
	}
	return &Result{Property: prop.Name, Op: prop.Op}, nil
}

func evalAt(node *scheduler.Node, prop *ast.PropertyDecl) (bool, error) {
	ctx := &sqlexec.Ctx{
		Env:    &sqlexec.Env{Vars: node.State.MergedVars()},
		Engine: node.State.Engine,
		Tx:     0,
		Status: node.State.Status(),
	}
	v, err := sqlexec.Eval(prop.Expr, nil, ctx)
	if err != nil {
		return false, err
	}
	if v.Kind() != value.KindBool {
		return false, &CheckError{Property: prop.Name, Message: "expression does not evaluate to a boolean"}
	}
	return v.AsBool(), nil
}
