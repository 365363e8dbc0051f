package runtime

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/vm"
)

// Host is the interface for struct-based host modules.
// All exported methods with the lua.LGFunction signature are exposed to
// scripts as fields of a global table named by Namespace.
type Host interface {
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact script names when the
// automatic PascalCase-to-snake_case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]lua.LGFunction
}

type HostRegistry struct {
	funcs map[string]map[string]lua.LGFunction
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]lua.LGFunction),
	}
}

var lgFunctionType = reflect.TypeOf(lua.LGFunction(nil))

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseRuntime, "namespace cannot be empty")
	}

	funcs := make(map[string]lua.LGFunction)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, fn := range er.Register() {
			funcs[name] = fn
		}
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || method.Name == "Namespace" {
				continue
			}
			bound := rv.Method(i)
			if !bound.Type().ConvertibleTo(lgFunctionType) {
				continue
			}
			funcs[toSnakeCase(method.Name)] = bound.Convert(lgFunctionType).Interface().(lua.LGFunction)
		}
	}
	if len(funcs) == 0 {
		return errors.InvalidInput(errors.PhaseRuntime, "host "+ns+" exposes no functions")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]lua.LGFunction)
	}
	for name, fn := range funcs {
		r.funcs[ns][name] = fn
	}
	return nil
}

func (r *HostRegistry) RegisterFunc(namespace, name string, fn lua.LGFunction) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseRuntime, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseRuntime, "function name cannot be empty")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseRuntime, "handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]lua.LGFunction)
	}
	r.funcs[namespace][name] = fn
	return nil
}

// Namespaces returns registered namespaces in sorted order.
func (r *HostRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Bind installs the namespace tables into env. Existing tables are extended,
// anything else under the namespace name is replaced.
func (r *HostRegistry) Bind(s *vm.State, env *vm.Environment) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for ns, funcs := range r.funcs {
		t, ok := env.RawGet(ns).(*lua.LTable)
		if !ok {
			t = s.NewTable()
			env.Set(ns, t)
		}
		for name, fn := range funcs {
			t.RawSetString(name, s.L.NewFunction(fn))
		}
	}
}

// RegisterHost exposes h's functions to scripts under h.Namespace().
func (r *Runtime) RegisterHost(h Host) error {
	if err := r.checkOpen(errors.PhaseRuntime); err != nil {
		return err
	}
	if err := r.hosts.RegisterHost(h); err != nil {
		return err
	}
	r.hosts.Bind(r.state, r.state.Global())
	return nil
}

// RegisterFunc exposes one Go function as namespace.name.
func (r *Runtime) RegisterFunc(namespace, name string, fn lua.LGFunction) error {
	if err := r.checkOpen(errors.PhaseRuntime); err != nil {
		return err
	}
	if err := r.hosts.RegisterFunc(namespace, name, fn); err != nil {
		return err
	}
	r.hosts.Bind(r.state, r.state.Global())
	return nil
}

// Hosts returns the host function registry.
func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// LogHost routes script log calls to the runtime logger.
type LogHost struct {
	log *zap.Logger
}

func (h *LogHost) Namespace() string { return "log" }

func (h *LogHost) Debug(L *lua.LState) int { h.write(L, zap.DebugLevel); return 0 }
func (h *LogHost) Info(L *lua.LState) int  { h.write(L, zap.InfoLevel); return 0 }
func (h *LogHost) Warn(L *lua.LState) int  { h.write(L, zap.WarnLevel); return 0 }
func (h *LogHost) Error(L *lua.LState) int { h.write(L, zap.ErrorLevel); return 0 }

// write logs arg 1 as the message and the remaining args as key/value pairs.
func (h *LogHost) write(L *lua.LState, level zapcore.Level) {
	ce := h.log.Check(level, L.OptString(1, ""))
	if ce == nil {
		return
	}
	var fields []zap.Field
	for i := 2; i+1 <= L.GetTop(); i += 2 {
		fields = append(fields, zap.Any(L.Get(i).String(), vm.ToGo(L.Get(i+1))))
	}
	ce.Write(fields...)
}

// toSnakeCase converts PascalCase to snake_case.
// An acronym stays one word: GetHTTPCode -> get_http_code, but adjacent
// acronyms merge: GetHTTPURL -> get_httpurl
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
