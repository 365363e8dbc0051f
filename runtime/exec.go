package runtime

import (
	stderrors "errors"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/resource"
	"github.com/wippyai/luahost/vm"
)

const defaultChunkName = "chunk"

func (r *Runtime) checkOpen(phase errors.Phase) error {
	if r.closed {
		return errors.NotInitialized(phase, "runtime")
	}
	return nil
}

func (r *Runtime) toValues(args []any) []lua.LValue {
	values := make([]lua.LValue, len(args))
	for i, a := range args {
		values[i] = vm.ToLValue(r.state.L, a)
	}
	return values
}

// Require loads a module through the VM's require, so it is resolved by the
// loader chain once and then served from package.loaded.
func (r *Runtime) Require(name string) (lua.LValue, error) {
	if err := r.checkOpen(errors.PhaseLoad); err != nil {
		return lua.LNil, err
	}

	r.lastMiss = ""
	results, err := r.state.Call(r.state.L.GetGlobal("require"), lua.LString(name))
	if err != nil {
		if r.lastMiss == name {
			r.log.Error("module not found", zap.String("module", name))
			return lua.LNil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Name(name).
				Detail("module not found").
				Cause(err).
				Build()
		}
		r.log.Error("require failed", zap.String("module", name), zap.Error(err))
		return lua.LNil, errors.Script(errors.PhaseLoad, name, err)
	}
	if len(results) == 0 {
		return lua.LNil, nil
	}
	return results[0], nil
}

// DoFile runs a script file from disk in the global environment.
func (r *Runtime) DoFile(path string) ([]lua.LValue, error) {
	if err := r.checkOpen(errors.PhaseLoad); err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			r.log.Error("script file not found", zap.String("path", path))
			return nil, errors.NotFound(errors.PhaseLoad, "file", path)
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Name(path).
			Detail("cannot read script").
			Cause(err).
			Build()
	}
	return r.DoBytes(src, nil, path)
}

// DoString runs src in the global environment.
func (r *Runtime) DoString(src string) ([]lua.LValue, error) {
	return r.DoBytes([]byte(src), nil, defaultChunkName)
}

// DoBytes runs src in env, or in the global environment when env is nil.
func (r *Runtime) DoBytes(src []byte, env *vm.Environment, chunkName string) ([]lua.LValue, error) {
	if err := r.checkOpen(errors.PhaseCall); err != nil {
		return nil, err
	}
	if chunkName == "" {
		chunkName = defaultChunkName
	}
	if env == nil {
		env = r.state.Global()
	}
	results, err := r.state.Exec(src, chunkName, env)
	if err != nil {
		r.log.Error("script failed", zap.String("chunk", chunkName), zap.Error(err))
		return nil, err
	}
	return results, nil
}

// DoModule resolves name through the loader chain and runs it in env. Unlike
// Require the result is not cached, so every call runs a fresh copy.
func (r *Runtime) DoModule(name string, env *vm.Environment, chunkName string) ([]lua.LValue, error) {
	if err := r.checkOpen(errors.PhaseLoad); err != nil {
		return nil, err
	}
	m, err := r.loader.Load(name)
	if err != nil {
		r.log.Error("module not found", zap.String("module", name), zap.Error(err))
		return nil, err
	}
	if chunkName == "" {
		chunkName = m.Path
	}
	return r.DoBytes(m.Source, env, chunkName)
}

// CallGlobalFunction calls a global function through the function cache.
// With pathLookup, "a.b.c" walks nested tables.
func (r *Runtime) CallGlobalFunction(name string, pathLookup bool, args ...any) ([]lua.LValue, error) {
	if err := r.checkOpen(errors.PhaseCall); err != nil {
		return nil, err
	}
	return r.cache.Call(name, pathLookup, r.toValues(args)...)
}

// CallTableFunction calls tableName[funcName] with the table as the first argument.
func (r *Runtime) CallTableFunction(tableName, funcName string, pathLookup bool, args ...any) ([]lua.LValue, error) {
	t, err := r.GetTable(tableName, pathLookup)
	if err != nil {
		return nil, err
	}
	return r.CallTableRef(t, funcName, args...)
}

// CallTableRef calls t[funcName] with t as the first argument. Functions
// resolved this way are not cached.
func (r *Runtime) CallTableRef(t *lua.LTable, funcName string, args ...any) ([]lua.LValue, error) {
	if err := r.checkOpen(errors.PhaseCall); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "nil table")
	}

	v := r.state.Lookup(t, funcName, false)
	fn, ok := v.(*lua.LFunction)
	if !ok {
		r.log.Error("table function not found",
			zap.String("name", funcName),
			zap.String("expected", lua.LTFunction.String()),
			zap.String("got", v.Type().String()),
		)
		return nil, errors.NotFound(errors.PhaseCall, "function", funcName)
	}

	callArgs := make([]lua.LValue, 0, len(args)+1)
	callArgs = append(callArgs, t)
	callArgs = append(callArgs, r.toValues(args)...)

	results, err := r.state.Call(fn, callArgs...)
	if err != nil {
		r.log.Error("table function failed", zap.String("name", funcName), zap.Error(err))
		return nil, errors.Script(errors.PhaseCall, funcName, err)
	}
	return results, nil
}

// GetTable returns the global table called name.
func (r *Runtime) GetTable(name string, pathLookup bool) (*lua.LTable, error) {
	if err := r.checkOpen(errors.PhaseCall); err != nil {
		return nil, err
	}
	v := r.Get(name, pathLookup)
	t, ok := v.(*lua.LTable)
	if !ok {
		r.log.Error("table not found",
			zap.String("name", name),
			zap.String("expected", lua.LTTable.String()),
			zap.String("got", v.Type().String()),
		)
		return nil, errors.NotFound(errors.PhaseCall, "table", name)
	}
	return t, nil
}

// Get reads a global value, LNil when absent.
func (r *Runtime) Get(name string, pathLookup bool) lua.LValue {
	if r.closed {
		return lua.LNil
	}
	return r.state.Lookup(r.state.Global().Table(), name, pathLookup)
}

// NewTable creates an empty table.
func (r *Runtime) NewTable() *lua.LTable {
	return r.state.NewTable()
}

// TableFromSlice builds a sequence table from values.
func (r *Runtime) TableFromSlice(values []any) *lua.LTable {
	t := r.state.L.CreateTable(len(values), 0)
	for i, v := range values {
		t.RawSetInt(i+1, vm.ToLValue(r.state.L, v))
	}
	return t
}

// TableFromMap builds a table keyed by the map's keys.
func (r *Runtime) TableFromMap(values map[string]any) *lua.LTable {
	t := r.state.L.CreateTable(0, len(values))
	for k, v := range values {
		t.RawSetString(k, vm.ToLValue(r.state.L, v))
	}
	return t
}

// CreateEnvironment creates a child of the global environment with bindings
// applied. The environment is tracked until it is disposed; Close disposes
// whatever is still alive.
func (r *Runtime) CreateEnvironment(bindings map[string]any) (*vm.Environment, error) {
	if err := r.checkOpen(errors.PhaseEnv); err != nil {
		return nil, err
	}
	env, err := vm.NewEnvironment(r.state, r.state.Global(), bindings)
	if err != nil {
		return nil, err
	}
	h := r.owners.Insert(resource.KindEnvironment, env)
	env.OnDispose(func() {
		r.owners.Forget(h)
	})
	return env, nil
}

// Track registers a live owner that Close must drop before the VM goes away.
func (r *Runtime) Track(kind resource.Kind, owner resource.Dropper) resource.Handle {
	if r.closed || owner == nil {
		return 0
	}
	return r.owners.Insert(kind, owner)
}

// Untrack forgets an owner without dropping it. Owners call this from their
// own teardown.
func (r *Runtime) Untrack(h resource.Handle) {
	if h == 0 {
		return
	}
	r.owners.Forget(h)
}
