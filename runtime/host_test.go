package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/luahost/errors"
)

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Double", "double"},
		{"GetValue", "get_value"},
		{"GetHTTPURL", "get_httpurl"},
		{"GetHTTPCode", "get_http_code"},
		{"HTTPServer", "http_server"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type mathHost struct{}

func (mathHost) Namespace() string { return "mathx" }

func (mathHost) Double(L *lua.LState) int {
	L.Push(L.CheckNumber(1) * 2)
	return 1
}

func (mathHost) GetHTTPCode(L *lua.LState) int {
	L.Push(lua.LNumber(200))
	return 1
}

// Helper has the wrong signature and is not exposed.
func (mathHost) Helper() int { return 0 }

type explicitHost struct{}

func (explicitHost) Namespace() string { return "explicit" }

func (explicitHost) Register() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"Exact.Name": func(L *lua.LState) int {
			L.Push(lua.LString("exact"))
			return 1
		},
	}
}

type emptyHost struct{}

func (emptyHost) Namespace() string { return "empty" }

func TestRegisterHost(t *testing.T) {
	rt := newScriptRuntime(t, nil)
	require.NoError(t, rt.RegisterHost(mathHost{}))
	require.NoError(t, rt.RegisterHost(explicitHost{}))

	res, err := rt.DoString(`return mathx.double(4), mathx.get_http_code(), mathx.helper, explicit["Exact.Name"]()`)
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(8), res[0])
	assert.Equal(t, lua.LNumber(200), res[1])
	assert.Equal(t, lua.LNil, res[2])
	assert.Equal(t, lua.LString("exact"), res[3])

	assert.Equal(t, []string{"explicit", "log", "mathx"}, rt.Hosts().Namespaces())

	err = rt.RegisterHost(emptyHost{})
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestRegisterFunc(t *testing.T) {
	rt := newScriptRuntime(t, nil)
	_, err := rt.DoString(`game = { version = 3 }`)
	require.NoError(t, err)

	require.NoError(t, rt.RegisterFunc("game", "now", func(L *lua.LState) int {
		L.Push(lua.LNumber(12.5))
		return 1
	}))

	res, err := rt.DoString(`return game.now(), game.version`)
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(12.5), res[0])
	assert.Equal(t, lua.LNumber(3), res[1], "existing table is extended")

	assert.Error(t, rt.RegisterFunc("", "x", func(*lua.LState) int { return 0 }))
	assert.Error(t, rt.RegisterFunc("game", "", func(*lua.LState) int { return 0 }))
	assert.Error(t, rt.RegisterFunc("game", "nil", nil))
}

func TestLogHost(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rt := newRuntime(t, testConfig(t.TempDir()), WithLogger(zap.New(core)))

	_, err := rt.DoString(`
		log.debug("hidden")
		log.info("spawned", "id", 7, "dangling")
		log.warn("low health")
	`)
	require.NoError(t, err)

	spawned := logs.FilterMessage("spawned").All()
	require.Len(t, spawned, 1)
	assert.Equal(t, zapcore.InfoLevel, spawned[0].Level)
	assert.Equal(t, float64(7), spawned[0].ContextMap()["id"])

	assert.Equal(t, 1, logs.FilterMessage("low health").Len())
	assert.Equal(t, 0, logs.FilterMessage("hidden").Len())
}
