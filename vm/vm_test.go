package vm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luahost/errors"
)

func newState(t *testing.T) *State {
	t.Helper()
	s := NewState(Options{StepBudget: 2})
	t.Cleanup(s.Close)
	return s
}

func TestEnvironment_Isolation(t *testing.T) {
	s := newState(t)
	g := s.Global()
	g.Set("shared", "from-global")

	child, err := NewEnvironment(s, g, map[string]any{"local": 7})
	require.NoError(t, err)

	// Reads fall through to the parent.
	assert.Equal(t, lua.LString("from-global"), child.Get("shared"))
	assert.Equal(t, lua.LNil, child.RawGet("shared"))

	// Child bindings do not leak upward.
	assert.Equal(t, lua.LNumber(7), child.Get("local"))
	assert.Equal(t, lua.LNil, g.Get("local"))

	// Writes from script code land in the child.
	_, err = s.Exec([]byte(`shared = "shadowed"; created = true`), "iso", child)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("shadowed"), child.Get("shared"))
	assert.Equal(t, lua.LString("from-global"), g.Get("shared"))
	assert.Equal(t, lua.LNil, g.Get("created"))
}

func TestEnvironment_Siblings(t *testing.T) {
	s := newState(t)
	a, err := NewEnvironment(s, s.Global(), map[string]any{"name": "a"})
	require.NoError(t, err)
	b, err := NewEnvironment(s, s.Global(), map[string]any{"name": "b"})
	require.NoError(t, err)

	_, err = s.Exec([]byte(`counter = 1`), "a", a)
	require.NoError(t, err)

	assert.Equal(t, lua.LNumber(1), a.Get("counter"))
	assert.Equal(t, lua.LNil, b.Get("counter"))
	assert.Equal(t, lua.LString("b"), b.Get("name"))
}

func TestEnvironment_DisposeIdempotent(t *testing.T) {
	s := newState(t)
	env, err := NewEnvironment(s, s.Global(), map[string]any{"x": 1})
	require.NoError(t, err)

	calls := 0
	env.OnDispose(func() { calls++ })

	env.Dispose()
	env.Dispose()

	assert.Equal(t, 1, calls)
	assert.True(t, env.Disposed())
	assert.Equal(t, lua.LNil, env.Get("x"))
	assert.Equal(t, 1, s.Stats().Pending)

	env.Set("y", 2)
	assert.Equal(t, lua.LNil, env.Get("y"))

	_, err = s.Load([]byte(`return 1`), "late", env)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestNewEnvironment_Errors(t *testing.T) {
	s := newState(t)

	_, err := NewEnvironment(s, nil, nil)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	parent, err := NewEnvironment(s, s.Global(), nil)
	require.NoError(t, err)
	parent.Dispose()
	_, err = NewEnvironment(s, parent, nil)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestFunctionCache_Identity(t *testing.T) {
	s := newState(t)
	_, err := s.Exec([]byte(`
		function Hello(n) return "hi " .. n end
		util = { math = { double = function(x) return x * 2 end } }
	`), "setup", nil)
	require.NoError(t, err)

	c := NewFunctionCache(s, nil)

	f1, err := c.Resolve("Hello", false)
	require.NoError(t, err)
	f2, err := c.Resolve("Hello", false)
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Equal(t, 1, c.Len())

	results, err := c.Call("util.math.double", true, lua.LNumber(21))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, lua.LNumber(42), results[0])

	assert.Equal(t, 2, c.InvalidateAll())
	assert.Equal(t, 0, c.Len())
	assert.True(t, f1.Disposed())
	assert.Nil(t, f1.LFunction())

	f3, err := c.Resolve("Hello", false)
	require.NoError(t, err)
	assert.NotSame(t, f1, f3)
}

func TestFunctionCache_Miss(t *testing.T) {
	s := newState(t)
	s.Global().Set("notAFunction", 3)
	c := NewFunctionCache(s, nil)

	for _, name := range []string{"Missing", "notAFunction"} {
		f, err := c.Resolve(name, false)
		assert.Nil(t, f)
		assert.True(t, errors.IsNotFound(err), name)
	}

	_, err := c.Resolve("a.b.c", true)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 0, c.Len())
}

func TestState_CallResults(t *testing.T) {
	s := newState(t)
	fn, err := s.Load([]byte(`return 1, "two", true`), "multi", nil)
	require.NoError(t, err)

	top := s.L.GetTop()
	results, err := s.Call(fn)
	require.NoError(t, err)
	assert.Equal(t, []lua.LValue{lua.LNumber(1), lua.LString("two"), lua.LTrue}, results)
	assert.Equal(t, top, s.L.GetTop())

	_, err = s.Exec([]byte(`error("boom")`), "bad", nil)
	assert.ErrorIs(t, err, errors.ErrScript)
	assert.Equal(t, top, s.L.GetTop())

	_, err = s.Load([]byte(`this is not lua`), "syntax", nil)
	assert.ErrorIs(t, err, errors.ErrScript)
}

func TestState_Searcher(t *testing.T) {
	s := newState(t)
	modules := map[string]string{
		"pkg.mod": `return { value = 5 }`,
	}
	require.NoError(t, s.SetSearcher(func(name string) ([]byte, string, error) {
		src, ok := modules[name]
		if !ok {
			return nil, "", fmt.Errorf("no %s", name)
		}
		return []byte(src), name, nil
	}))

	results, err := s.Exec([]byte(`return require("pkg.mod").value`), "req", nil)
	require.NoError(t, err)
	assert.Equal(t, []lua.LValue{lua.LNumber(5)}, results)

	_, err = s.Exec([]byte(`return require("pkg.missing")`), "req2", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pkg.missing")
}

func TestState_Collector(t *testing.T) {
	s := newState(t)
	var envs []*Environment
	for i := 0; i < 5; i++ {
		env, err := NewEnvironment(s, s.Global(), map[string]any{"i": i})
		require.NoError(t, err)
		envs = append(envs, env)
	}
	for _, env := range envs {
		env.Dispose()
	}
	assert.Equal(t, 5, s.Stats().Pending)

	s.Step()
	assert.Equal(t, 3, s.Stats().Pending)
	assert.Equal(t, lua.LNil, envs[0].Table().RawGetString("i"))
	assert.Equal(t, lua.LNil, s.L.GetMetatable(envs[0].Table()))

	s.FullGC()
	st := s.Stats()
	assert.Equal(t, 0, st.Pending)
	assert.Equal(t, 5, st.Released)
	assert.Equal(t, 1, st.Steps)
	assert.Equal(t, 1, st.FullGCs)
}

func TestState_StepDropsDrainedTables(t *testing.T) {
	s := newState(t)
	for i := 0; i < 3; i++ {
		s.Release(s.NewTable())
	}
	queued := s.released

	s.Step()
	require.Len(t, s.released, 1)
	assert.Nil(t, queued[0])
	assert.Nil(t, queued[1])
	assert.NotNil(t, queued[2])
}

func TestState_Closed(t *testing.T) {
	s := NewState(Options{})
	s.Close()
	s.Close()

	assert.True(t, s.Closed())
	assert.True(t, s.Global().Disposed())
	_, err := s.Exec([]byte(`return 1`), "x", nil)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.Equal(t, lua.LNil, s.Lookup(s.Global().Table(), "print", false))
	s.Step()
	s.FullGC()
}

func TestConvert(t *testing.T) {
	s := newState(t)
	v := ToLValue(s.L, map[string]any{
		"name":  "hero",
		"hp":    10,
		"tags":  []string{"a", "b"},
		"alive": true,
	})
	tbl, ok := v.(*lua.LTable)
	require.True(t, ok)

	back := ToGo(tbl)
	assert.Equal(t, map[string]any{
		"name":  "hero",
		"hp":    float64(10),
		"tags":  []any{"a", "b"},
		"alive": true,
	}, back)

	type host struct{ id string }
	h := &host{id: "x"}
	ud, ok := ToLValue(s.L, h).(*lua.LUserData)
	require.True(t, ok)
	assert.Same(t, h, ToGo(ud))

	assert.Equal(t, []string{"alive", "hp", "name", "tags"}, SortedKeys(tbl))
}
