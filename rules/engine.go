package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// SelectionEngine compiles and evaluates CEL document-selection predicates.
// A selection expression sees two variables: "doc" (the document's field
// values) and "now" (current time, Unix seconds). It is the predicate
// behind selection-based removal (the RemoveLocation feed operation).
type SelectionEngine struct {
	env      *cel.Env
	prgCache sync.Map // map[string]cel.Program
}

// NewSelectionEngine creates a SelectionEngine with the standard
// environment.
func NewSelectionEngine() (*SelectionEngine, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("doc", decls.NewMapType(decls.String, decls.Dyn)),
			decls.NewVar("now", decls.Int),
		),
	)
	if err != nil {
		return nil, err
	}

	return &SelectionEngine{
		env: env,
	}, nil
}

// Evaluate evaluates a selection expression against one document. An empty
// expression selects nothing; the literals "true" and "false" short-circuit
// without compilation.
func (se *SelectionEngine) Evaluate(expression string, doc map[string]interface{}, now int64) (bool, error) {
	if expression == "" {
		return false, nil
	}
	if expression == "true" {
		return true, nil
	}
	if expression == "false" {
		return false, nil
	}

	prg, err := se.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{"doc": doc, "now": now})
	if err != nil {
		return false, fmt.Errorf("eval error: %s", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("selection must return boolean")
	}

	return result, nil
}

// program returns the compiled program for expression, compiling at most
// once per distinct expression string.
func (se *SelectionEngine) program(expression string) (cel.Program, error) {
	if val, ok := se.prgCache.Load(expression); ok {
		return val.(cel.Program), nil
	}

	ast, issues := se.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %s", issues.Err())
	}

	prg, err := se.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program construction error: %s", err)
	}
	se.prgCache.Store(expression, prg)
	return prg, nil
}
