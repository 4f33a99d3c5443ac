package rules

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// RankProgram compiles and evaluates a rank expression over a document's
// attribute values, the same CEL environment/program-cache shape
// SelectionEngine uses for document selections, applied here to scoring.
//
// Expressions see two variables: "doc" (the document's attribute values,
// field name -> value) and "rawscore" (the first-phase score, available
// only to second-phase programs; zero otherwise).
type RankProgram struct {
	prg cel.Program
}

func rankEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Declarations(
			decls.NewVar("doc", decls.NewMapType(decls.String, decls.Dyn)),
			decls.NewVar("rawscore", decls.Double),
		),
	)
}

// NewRankProgram compiles expression once; callers keep the result for
// repeated Eval calls across the matching loop's hit stream.
func NewRankProgram(expression string) (*RankProgram, error) {
	env, err := rankEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rank expression %q: %w", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rank expression %q: %w", expression, err)
	}
	return &RankProgram{prg: prg}, nil
}

// Eval runs the program against doc's field values and the first-phase
// rawscore (ignored by first-phase programs). Non-finite results are
// folded to -Inf, matching the "convert NaN/+-Inf to -Inf" rule applied to
// every hit before it enters the collector.
func (p *RankProgram) Eval(doc map[string]any, rawscore float64) (float64, error) {
	out, _, err := p.prg.Eval(map[string]any{"doc": doc, "rawscore": rawscore})
	if err != nil {
		return math.Inf(-1), fmt.Errorf("rank eval error: %w", err)
	}
	v, ok := out.Value().(float64)
	if !ok {
		if i, ok := out.Value().(int64); ok {
			v = float64(i)
		} else {
			return math.Inf(-1), fmt.Errorf("rank expression must return a number, got %T", out.Value())
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.Inf(-1), nil
	}
	return v, nil
}

// programCache compiles rank expressions once per distinct expression
// string, shared across queries using the same ranking profile.
type programCache struct {
	mu    sync.Mutex
	cache map[string]*RankProgram
}

func newProgramCache() *programCache { return &programCache{cache: make(map[string]*RankProgram)} }

func (c *programCache) get(expression string) (*RankProgram, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[expression]; ok {
		return p, nil
	}
	p, err := NewRankProgram(expression)
	if err != nil {
		return nil, err
	}
	c.cache[expression] = p
	return p, nil
}

// RankProfile names a compiled first-phase and optional second-phase rank
// program plus the drop limit matching hits below first-phase score must
// clear to enter the hit collector.
type RankProfile struct {
	Name          string
	FirstPhase    *RankProgram
	SecondPhase   *RankProgram // nil if this profile has no second phase
	RankDropLimit float64
}

// ProfileRegistry holds named rank profiles, compiled once via a shared
// program cache so identical expressions across profiles share one
// cel.Program.
type ProfileRegistry struct {
	cache    *programCache
	mu       sync.RWMutex
	profiles map[string]*RankProfile
}

func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{cache: newProgramCache(), profiles: make(map[string]*RankProfile)}
}

// Register compiles and stores a rank profile under name. secondPhase may
// be empty to indicate the profile has no second phase.
func (r *ProfileRegistry) Register(name, firstPhase, secondPhase string, rankDropLimit float64) error {
	first, err := r.cache.get(firstPhase)
	if err != nil {
		return fmt.Errorf("profile %s: first phase: %w", name, err)
	}
	var second *RankProgram
	if secondPhase != "" {
		second, err = r.cache.get(secondPhase)
		if err != nil {
			return fmt.Errorf("profile %s: second phase: %w", name, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[name] = &RankProfile{Name: name, FirstPhase: first, SecondPhase: second, RankDropLimit: rankDropLimit}
	return nil
}

func (r *ProfileRegistry) Get(name string) (*RankProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}
