package grouping

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// Selector compiles and evaluates a group-selector expression, the same CEL
// "doc" environment rules.RankProgram evaluates rank expressions against,
// reused here for grouping's per-level key extraction.
type Selector struct {
	expr string
	prg  cel.Program
}

func selectorEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Declarations(decls.NewVar("doc", decls.NewMapType(decls.String, decls.Dyn))),
	)
}

// NewSelector compiles expression once; callers keep the result for
// repeated Key calls across a level's document stream.
func NewSelector(expression string) (*Selector, error) {
	env, err := selectorEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("group selector %q: %w", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("group selector %q: %w", expression, err)
	}
	return &Selector{expr: expression, prg: prg}, nil
}

// Key evaluates the selector against doc's field values, returning the
// group key this document routes to at this level.
func (s *Selector) Key(doc map[string]any) (any, error) {
	out, _, err := s.prg.Eval(map[string]any{"doc": doc})
	if err != nil {
		return nil, fmt.Errorf("group selector eval: %w", err)
	}
	return out.Value(), nil
}
