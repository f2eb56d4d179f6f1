package expr

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stratum/internal/value"
)

// newState creates a Lua state with only side-effect free libraries.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os, debug and package are never opened. Remove base functions
	// that load code or touch the outside world.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "print", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// bridge converts between normalized values and Lua values.
type bridge struct {
	L *lua.LState
}

func (b bridge) toLua(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := b.L.CreateTable(len(x), 0)
		for _, item := range x {
			t.Append(b.toLua(item))
		}
		return t
	case map[string]any:
		t := b.L.CreateTable(0, len(x))
		for _, k := range value.SortedKeys(x) {
			t.RawSetString(k, b.toLua(x[k]))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

func (b bridge) toGo(lv lua.LValue) any {
	return b.toGoVisited(lv, make(map[*lua.LTable]bool))
}

func (b bridge) toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return b.tableToGo(v, visited)
	default:
		return nil
	}
}

// tableToGo converts a table to []any when its keys are exactly 1..n and to
// map[string]any otherwise.
func (b bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = b.toGoVisited(v, visited)
	})
	return m
}
