package scripting

import (
	"fmt"
	"math"
	"sort"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	lua "github.com/yuin/gopher-lua"
)

const (
	vectorType = "vector3"
	maxDepth   = 32
)

func pushVector(L *lua.LState, v spatial.Vec3) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("x", lua.LNumber(v.X))
	t.RawSetString("y", lua.LNumber(v.Y))
	t.RawSetString("z", lua.LNumber(v.Z))
	L.SetMetatable(t, L.GetTypeMetatable(vectorType))
	return t
}

// tableVector reads {x=, y=, z=}. z defaults to 0.
func tableVector(t *lua.LTable) (spatial.Vec3, bool) {
	x, okx := t.RawGetString("x").(lua.LNumber)
	y, oky := t.RawGetString("y").(lua.LNumber)
	if !okx || !oky {
		return spatial.Vec3{}, false
	}
	var z lua.LNumber
	switch zv := t.RawGetString("z").(type) {
	case lua.LNumber:
		z = zv
	case *lua.LNilType:
	default:
		return spatial.Vec3{}, false
	}
	return spatial.V(float64(x), float64(y), float64(z)), true
}

func isVector(L *lua.LState, t *lua.LTable) bool {
	return L.GetMetatable(t) == L.GetTypeMetatable(vectorType)
}

// toValue converts a Lua value to an entity value. Integral numbers become
// Int, others Float. Tables tagged by vector3() become Vector, sequences
// become List, everything else a Map with string keys.
func toValue(L *lua.LState, lv lua.LValue, depth int) (entity.Value, error) {
	if depth > maxDepth {
		return entity.Value{}, fmt.Errorf("value nested deeper than %d", maxDepth)
	}
	switch v := lv.(type) {
	case *lua.LNilType:
		return entity.Nil(), nil
	case lua.LBool:
		return entity.Bool(bool(v)), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return entity.Int(int64(f)), nil
		}
		return entity.Float(f), nil
	case lua.LString:
		return entity.String(string(v)), nil
	case *lua.LTable:
		if isVector(L, v) {
			vec, ok := tableVector(v)
			if !ok {
				return entity.Value{}, fmt.Errorf("malformed vector3")
			}
			return entity.Vector(vec), nil
		}
		return tableValue(L, v, depth)
	default:
		return entity.Value{}, fmt.Errorf("unsupported lua type %s", lv.Type())
	}
}

func tableValue(L *lua.LState, t *lua.LTable, depth int) (entity.Value, error) {
	n := t.Len()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && n == count {
		items := make([]entity.Value, 0, n)
		for i := 1; i <= n; i++ {
			item, err := toValue(L, t.RawGetInt(i), depth+1)
			if err != nil {
				return entity.Value{}, err
			}
			items = append(items, item)
		}
		return entity.List(items...), nil
	}

	m := make(map[string]entity.Value, count)
	var convErr error
	t.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		ks, ok := k.(lua.LString)
		if !ok {
			convErr = fmt.Errorf("table key %s is not a string", k.String())
			return
		}
		item, err := toValue(L, v, depth+1)
		if err != nil {
			convErr = err
			return
		}
		m[string(ks)] = item
	})
	if convErr != nil {
		return entity.Value{}, convErr
	}
	return entity.Map(m), nil
}

// fromValue converts an entity value for Lua. 64-bit integers beyond 2^53
// lose precision; blobs become strings.
func fromValue(L *lua.LState, v entity.Value) lua.LValue {
	switch v.Kind() {
	case entity.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b)
	case entity.KindInt:
		i, _ := v.AsInt()
		return lua.LNumber(i)
	case entity.KindUint:
		u, _ := v.AsUint()
		return lua.LNumber(u)
	case entity.KindFloat:
		f, _ := v.AsFloat()
		return lua.LNumber(f)
	case entity.KindString:
		s, _ := v.AsString()
		return lua.LString(s)
	case entity.KindVector:
		vec, _ := v.AsVector()
		return pushVector(L, vec)
	case entity.KindBlob:
		b, _ := v.AsBlob()
		return lua.LString(b)
	case entity.KindList:
		items, _ := v.AsList()
		t := L.CreateTable(len(items), 0)
		for _, item := range items {
			t.Append(fromValue(L, item))
		}
		return t
	case entity.KindMap:
		m, _ := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := L.CreateTable(0, len(m))
		for _, k := range keys {
			t.RawSetString(k, fromValue(L, m[k]))
		}
		return t
	default:
		return lua.LNil
	}
}
