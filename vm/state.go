package vm

import (
	"bytes"
	"fmt"
	goruntime "runtime"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luahost/errors"
)

// DefaultStepBudget is the number of released tables wiped per incremental step.
const DefaultStepBudget = 64

// Options configures a State.
type Options struct {
	Logger *zap.Logger
	// StepBudget bounds the work done by one Step call. Zero uses DefaultStepBudget.
	StepBudget int
}

// Stats reports collector activity.
type Stats struct {
	Steps    int
	FullGCs  int
	Pending  int
	Released int
}

// State owns one Lua VM.
type State struct {
	L        *lua.LState
	log      *zap.Logger
	global   *Environment
	released []*lua.LTable
	budget   int
	stats    Stats
	closed   bool
}

// Searcher resolves a module name for require. It returns the module source and
// the chunk name used in error messages.
type Searcher func(name string) (src []byte, chunkName string, err error)

// NewState creates a VM with the standard libraries opened.
func NewState(opts Options) *State {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	budget := opts.StepBudget
	if budget <= 0 {
		budget = DefaultStepBudget
	}

	s := &State{
		L:      lua.NewState(),
		log:    log,
		budget: budget,
	}
	s.global = &Environment{state: s, table: s.L.G.Global}
	return s
}

// Global returns the shared global environment.
func (s *State) Global() *Environment {
	return s.global
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	return s.closed
}

// SetSearcher installs fn as the only file-level module searcher. The preload
// searcher stays first so modules registered with PreloadModule still win.
func (s *State) SetSearcher(fn Searcher) error {
	if s.closed {
		return errors.NotInitialized(errors.PhaseLoad, "vm")
	}
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return errors.NotInitialized(errors.PhaseLoad, "package library")
	}
	loaders, ok := s.L.GetField(pkg, "loaders").(*lua.LTable)
	if !ok {
		return errors.NotInitialized(errors.PhaseLoad, "package.loaders")
	}

	for i := loaders.Len(); i >= 2; i-- {
		loaders.Remove(i)
	}
	loaders.Append(s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		src, chunk, err := fn(name)
		if err != nil {
			L.Push(lua.LString(fmt.Sprintf("\n\tno host module '%s' (%v)", name, err)))
			return 1
		}
		f, err := L.Load(bytes.NewReader(src), chunk)
		if err != nil {
			L.RaiseError("error loading module '%s': %s", name, err.Error())
			return 0
		}
		L.Push(f)
		return 1
	}))
	return nil
}

// Load compiles src without running it. When env is non-nil the chunk resolves
// its globals through env instead of the global table.
func (s *State) Load(src []byte, chunkName string, env *Environment) (*lua.LFunction, error) {
	if s.closed {
		return nil, errors.NotInitialized(errors.PhaseLoad, "vm")
	}
	fn, err := s.L.Load(bytes.NewReader(src), chunkName)
	if err != nil {
		return nil, errors.Script(errors.PhaseLoad, chunkName, err)
	}
	if env != nil {
		if env.Disposed() {
			return nil, errors.InvalidInput(errors.PhaseEnv, "environment already disposed")
		}
		fn.Env = env.table
	}
	return fn, nil
}

// Exec compiles and runs src, returning every value the chunk returns.
func (s *State) Exec(src []byte, chunkName string, env *Environment) ([]lua.LValue, error) {
	fn, err := s.Load(src, chunkName, env)
	if err != nil {
		return nil, err
	}
	results, err := s.Call(fn)
	if err != nil {
		return nil, errors.Script(errors.PhaseCall, chunkName, err)
	}
	return results, nil
}

// Call runs fn in protected mode and collects all of its results.
func (s *State) Call(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	if s.closed {
		return nil, errors.NotInitialized(errors.PhaseCall, "vm")
	}
	base := s.L.GetTop()
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, args...)
	if err != nil {
		s.L.SetTop(base)
		return nil, err
	}

	top := s.L.GetTop()
	results := make([]lua.LValue, 0, top-base)
	for i := base + 1; i <= top; i++ {
		results = append(results, s.L.Get(i))
	}
	s.L.SetTop(base)
	return results, nil
}

// Lookup resolves name under root. With path set, "a.b.c" walks nested tables
// and stops at the first non-table.
func (s *State) Lookup(root lua.LValue, name string, path bool) lua.LValue {
	if s.closed || root == nil || root == lua.LNil {
		return lua.LNil
	}
	if !path {
		if _, ok := root.(*lua.LTable); !ok {
			return lua.LNil
		}
		return s.L.GetField(root, name)
	}

	cur := root
	for _, part := range strings.Split(name, ".") {
		if _, ok := cur.(*lua.LTable); !ok {
			return lua.LNil
		}
		cur = s.L.GetField(cur, part)
	}
	return cur
}

// NewTable creates an empty table.
func (s *State) NewTable() *lua.LTable {
	return s.L.NewTable()
}

// Release queues an owned table to be wiped by the collector.
func (s *State) Release(t *lua.LTable) {
	if s.closed || t == nil {
		return
	}
	s.released = append(s.released, t)
}

// Step wipes up to the step budget of released tables.
func (s *State) Step() {
	if s.closed {
		return
	}
	n := s.drain(s.budget)
	s.stats.Steps++
	if n > 0 {
		s.log.Debug("vm step", zap.Int("released", n), zap.Int("pending", len(s.released)))
	}
}

// FullGC wipes every released table and runs the Go collector.
func (s *State) FullGC() {
	if s.closed {
		return
	}
	n := s.drain(len(s.released))
	s.stats.FullGCs++
	goruntime.GC()
	s.log.Debug("vm full gc", zap.Int("released", n))
}

// Stats returns collector counters.
func (s *State) Stats() Stats {
	st := s.stats
	st.Pending = len(s.released)
	return st
}

// Close releases the VM. Further calls are no-ops.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.released = nil
	s.global.disposed = true
	s.L.Close()
	s.closed = true
}

func (s *State) drain(limit int) int {
	if limit > len(s.released) {
		limit = len(s.released)
	}
	for i, t := range s.released[:limit] {
		wipe(s.L, t)
		s.released[i] = nil
	}
	s.released = s.released[limit:]
	s.stats.Released += limit
	return limit
}

func wipe(L *lua.LState, t *lua.LTable) {
	var keys []lua.LValue
	t.ForEach(func(k, _ lua.LValue) {
		keys = append(keys, k)
	})
	for _, k := range keys {
		t.RawSet(k, lua.LNil)
	}
	L.SetMetatable(t, lua.LNil)
}
