package vectorstore

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// filterCache compiles and caches expr-lang programs by their source
// expression, the same compile-once-evaluate-many shape the teacher's
// engine.ConditionCache uses for node conditions. Unlike the teacher's LRU
// variant, filters here are a handful of fixed equality checks
// ("level1/2/3" or "was_correct") supplied per search call, so an unbounded
// map is simpler and never grows large enough to need eviction.
type filterCache struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newFilterCache() *filterCache {
	return &filterCache{cache: make(map[string]*vm.Program)}
}

func (c *filterCache) compile(expression string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.cache[expression]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("vectorstore: compiling filter %q: %w", expression, err)
	}

	c.mu.Lock()
	c.cache[expression] = program
	c.mu.Unlock()
	return program, nil
}

// matchEnv is the evaluation environment for a filter expression: equality
// on level1/2/3 or was_correct, per spec.md §4.2.
type matchEnv struct {
	Level1     string `expr:"level1"`
	Level2     string `expr:"level2"`
	Level3     string `expr:"level3"`
	WasCorrect bool   `expr:"was_correct"`
}

// evaluateFilter reports whether m satisfies the compiled filter
// expression. An empty expression always passes.
func (c *filterCache) evaluateFilter(expression string, m Match) (bool, error) {
	if expression == "" {
		return true, nil
	}
	program, err := c.compile(expression)
	if err != nil {
		return false, err
	}
	env := matchEnv{Level1: m.Path.L1, Level2: m.Path.L2, Level3: m.Path.L3, WasCorrect: m.WasCorrect}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("vectorstore: evaluating filter %q: %w", expression, err)
	}
	passed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("vectorstore: filter %q must return bool, got %T", expression, result)
	}
	return passed, nil
}
