// Package entremets is the embeddable entry point to the model checker:
// parse a specification, explore its reachable state graph, and check
// every declared property against it.
package entremets

import (
	"fmt"

	"entremets/internal/ast"
	"entremets/internal/checker"
	"entremets/internal/config"
	"entremets/internal/parser"
	"entremets/internal/scheduler"
	"entremets/internal/typecheck"
)

// Result is the outcome of running a specification's full property suite.
type Result struct {
	StatesExplored int
	Graph          *scheduler.Graph
	Properties     []*checker.Result
}

// Violated reports the first violated property, if any.
func (r *Result) Violated() *checker.Result {
	for _, p := range r.Properties {
		if p.Violated {
			return p
		}
	}
	return nil
}

// Load parses and type-checks a specification from source text.
func Load(source string) (*ast.Spec, error) {
	spec, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	if err := typecheck.Check(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// Run explores spec's reachable state graph and checks every property
// it declares, stopping at the first violation (§6: "the first violated
// property name"). cfg's StateCap bounds the exploration.
func Run(spec *ast.Spec, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(spec.Properties) == 0 {
		return nil, fmt.Errorf("entremets: specification declares no properties")
	}

	g, err := scheduler.Explore(spec, cfg.StateCap)
	if err != nil {
		return nil, err
	}

	result := &Result{StatesExplored: len(g.Nodes), Graph: g}
	for _, prop := range spec.Properties {
		propResult, err := checker.Check(g, prop)
		if err != nil {
			return nil, err
		}
		result.Properties = append(result.Properties, propResult)
		if propResult.Violated {
			break
		}
	}
	return result, nil
}
