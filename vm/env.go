package vm

import (
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luahost/errors"
)

// Environment is a namespace scope inside the VM.
type Environment struct {
	state     *State
	table     *lua.LTable
	parent    *Environment
	onDispose []func()
	disposed  bool
}

// NewEnvironment creates a child of parent and applies bindings directly on it.
// Bindings are applied in key order.
func NewEnvironment(s *State, parent *Environment, bindings map[string]any) (*Environment, error) {
	if s == nil || s.closed {
		return nil, errors.NotInitialized(errors.PhaseEnv, "vm")
	}
	if parent == nil {
		return nil, errors.InvalidInput(errors.PhaseEnv, "nil parent environment")
	}
	if parent.disposed {
		return nil, errors.InvalidInput(errors.PhaseEnv, "parent environment already disposed")
	}

	t := s.L.NewTable()
	meta := s.L.NewTable()
	meta.RawSetString("__index", parent.table)
	s.L.SetMetatable(t, meta)

	env := &Environment{state: s, table: t, parent: parent}

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env.Set(name, bindings[name])
	}
	return env, nil
}

// Table returns the backing table.
func (e *Environment) Table() *lua.LTable {
	return e.table
}

// Parent returns the lookup parent, nil for the global environment.
func (e *Environment) Parent() *Environment {
	return e.parent
}

// Disposed reports whether Dispose has run.
func (e *Environment) Disposed() bool {
	return e.disposed
}

// Get reads name, falling through to the parent chain on a miss.
func (e *Environment) Get(name string) lua.LValue {
	if e.disposed {
		return lua.LNil
	}
	return e.state.L.GetField(e.table, name)
}

// RawGet reads name from this environment only.
func (e *Environment) RawGet(name string) lua.LValue {
	if e.disposed {
		return lua.LNil
	}
	return e.table.RawGetString(name)
}

// Set binds name in this environment. The parent is never written.
func (e *Environment) Set(name string, value any) {
	if e.disposed {
		return
	}
	e.table.RawSetString(name, ToLValue(e.state.L, value))
}

// OnDispose registers fn to run once when the environment is disposed.
func (e *Environment) OnDispose(fn func()) {
	e.onDispose = append(e.onDispose, fn)
}

// Drop disposes the environment when a live-owner table lets go of it.
func (e *Environment) Drop() {
	e.Dispose()
}

// Dispose releases the environment. Only the first call has an effect.
func (e *Environment) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true

	hooks := e.onDispose
	e.onDispose = nil
	for _, fn := range hooks {
		fn()
	}

	// The global table belongs to the VM and goes away with State.Close.
	if e.parent != nil {
		e.state.Release(e.table)
	}
}
