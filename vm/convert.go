package vm

import (
	"fmt"
	"reflect"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// ToLValue converts a Go value into a VM value. Maps and slices become tables,
// Go functions with the lua.LGFunction signature become VM functions, and any
// other value is wrapped in userdata.
func ToLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case []byte:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int8:
		return lua.LNumber(x)
	case int16:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint:
		return lua.LNumber(x)
	case uint8:
		return lua.LNumber(x)
	case uint16:
		return lua.LNumber(x)
	case uint32:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case lua.LGFunction:
		return L.NewFunction(x)
	case func(*lua.LState) int:
		return L.NewFunction(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		t := L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, ToLValue(L, rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		t := L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(ToLValue(L, iter.Key().Interface()), ToLValue(L, iter.Value().Interface()))
		}
		return t
	}

	ud := L.NewUserData()
	ud.Value = v
	return ud
}

// ToGo converts a VM value into a Go value. Tables with only a 1..n sequence
// become []any, other tables map[string]any with keys formatted as strings.
// Functions are returned as-is.
func ToGo(v lua.LValue) any {
	return toGo(v, make(map[*lua.LTable]bool))
}

func toGo(v lua.LValue, seen map[*lua.LTable]bool) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LUserData:
		return x.Value
	case *lua.LTable:
		if seen[x] {
			return nil
		}
		seen[x] = true
		defer delete(seen, x)

		if n := x.MaxN(); n > 0 && isSequence(x, n) {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, toGo(x.RawGetInt(i), seen))
			}
			return out
		}
		out := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			out[keyString(k)] = toGo(val, seen)
		})
		return out
	default:
		return v
	}
}

func isSequence(t *lua.LTable, n int) bool {
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })
	return count == n
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok && float64(n) == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return k.String()
}

// SortedKeys returns the string keys of t in order.
func SortedKeys(t *lua.LTable) []string {
	var keys []string
	t.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			keys = append(keys, string(s))
		}
	})
	sort.Strings(keys)
	return keys
}
