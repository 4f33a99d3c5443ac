package rules

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/kartikbazzad/bunbase/searchcore/internal/feed"
)

// ResourceState is the subset of node resource usage a write-admission
// expression may inspect.
type ResourceState struct {
	DiskUsageRatio   float64
	MemoryUsageRatio float64
	AttributeLimit   bool // true once an attribute has hit a hard size limit
}

func (s ResourceState) toCELInput() map[string]any {
	return map[string]any{
		"disk_usage_ratio":   s.DiskUsageRatio,
		"memory_usage_ratio": s.MemoryUsageRatio,
		"attribute_limit":    s.AttributeLimit,
	}
}

// CELWriteFilter implements feed.WriteFilter by evaluating a boolean CEL
// expression against the node's current resource state; Admit reports true
// when the write should proceed.
type CELWriteFilter struct {
	prg   cel.Program
	state func() ResourceState
}

// NewCELWriteFilter compiles expression (e.g. "disk_usage_ratio < 0.95 &&
// !attribute_limit") and binds it to a live resource-state accessor,
// following the same compile-once, eval-many shape as SelectionEngine.
func NewCELWriteFilter(expression string, state func() ResourceState) (*CELWriteFilter, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("disk_usage_ratio", decls.Double),
			decls.NewVar("memory_usage_ratio", decls.Double),
			decls.NewVar("attribute_limit", decls.Bool),
		),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &CELWriteFilter{prg: prg, state: state}, nil
}

// Admit evaluates the compiled expression against the current resource
// state. Any evaluation error is treated as a rejection, never a silent
// admit: an admission filter that fails closed cannot be exploited by a
// malformed or stale expression to waive resource checks.
func (f *CELWriteFilter) Admit(op feed.Operation) bool {
	out, _, err := f.prg.Eval(f.state().toCELInput())
	if err != nil {
		return false
	}
	ok, _ := out.Value().(bool)
	return ok
}
