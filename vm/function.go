package vm

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luahost/errors"
)

// Function is a resolved global callable owned by a FunctionCache.
type Function struct {
	fn       *lua.LFunction
	name     string
	disposed bool
}

// Name returns the name the function was resolved under.
func (f *Function) Name() string {
	return f.name
}

// LFunction returns the underlying VM function, nil once disposed.
func (f *Function) LFunction() *lua.LFunction {
	if f.disposed {
		return nil
	}
	return f.fn
}

// Disposed reports whether the cache has released the function.
func (f *Function) Disposed() bool {
	return f.disposed
}

func (f *Function) dispose() {
	f.disposed = true
	f.fn = nil
}

// FunctionCache memoizes global callables by requested name.
type FunctionCache struct {
	state   *State
	log     *zap.Logger
	entries map[string]*Function
}

// NewFunctionCache creates a cache resolving against the state's global environment.
func NewFunctionCache(s *State, log *zap.Logger) *FunctionCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &FunctionCache{
		state:   s,
		log:     log,
		entries: make(map[string]*Function),
	}
}

// Resolve returns the cached callable for name, looking it up in the global
// environment on first use. With pathLookup, "a.b.c" walks nested tables.
// The cache is keyed by name alone.
func (c *FunctionCache) Resolve(name string, pathLookup bool) (*Function, error) {
	if f, ok := c.entries[name]; ok {
		return f, nil
	}
	if c.state.closed {
		return nil, errors.NotInitialized(errors.PhaseCall, "vm")
	}

	v := c.state.Lookup(c.state.global.table, name, pathLookup)
	fn, ok := v.(*lua.LFunction)
	if !ok {
		c.log.Error("global function not found",
			zap.String("name", name),
			zap.String("expected", lua.LTFunction.String()),
			zap.String("got", v.Type().String()),
		)
		return nil, errors.NotFound(errors.PhaseCall, "function", name)
	}

	f := &Function{fn: fn, name: name}
	c.entries[name] = f
	return f, nil
}

// Call resolves name and invokes it with args.
func (c *FunctionCache) Call(name string, pathLookup bool, args ...lua.LValue) ([]lua.LValue, error) {
	f, err := c.Resolve(name, pathLookup)
	if err != nil {
		return nil, err
	}
	results, err := c.state.Call(f.fn, args...)
	if err != nil {
		c.log.Error("global function failed", zap.String("name", name), zap.Error(err))
		return nil, errors.Script(errors.PhaseCall, name, err)
	}
	return results, nil
}

// InvalidateAll disposes every cached entry and returns how many were dropped.
func (c *FunctionCache) InvalidateAll() int {
	n := len(c.entries)
	for name, f := range c.entries {
		f.dispose()
		delete(c.entries, name)
	}
	return n
}

// Len returns the number of cached entries.
func (c *FunctionCache) Len() int {
	return len(c.entries)
}
