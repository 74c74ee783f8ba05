package scripting

import (
	"errors"
	"math"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

func (e *Engine) registerExports() {
	L := e.vm
	L.NewTypeMetatable(vectorType)

	exports := map[string]lua.LGFunction{
		"vector3":                e.luaVector3,
		"createGameEntity":       e.luaCreate,
		"removeGameEntity":       e.luaRemove,
		"doesGameEntityExist":    e.luaExists,
		"setGameEntityPosition":  e.luaSetPosition,
		"getGameEntityPosition":  e.luaGetPosition,
		"getGameEntityRange":     e.luaGetRange,
		"setGameEntityDimension": e.luaSetDimension,
		"getGameEntityDimension": e.luaGetDimension,
		"setGameEntityData":      e.luaSetData,
		"getGameEntityData":      e.luaGetData,
		"resetGameEntityData":    e.luaResetData,
		"getGameEntitySnapshot":  e.luaSnapshot,
	}
	for name, fn := range exports {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// checkKey reads (id, type) from the first two arguments.
func checkKey(L *lua.LState) entity.EntityID {
	return entity.EntityID{
		ID:   checkUint(L, 1),
		Type: checkUint(L, 2),
	}
}

func checkUint(L *lua.LState, n int) uint64 {
	v := float64(L.CheckNumber(n))
	if v < 0 || v != math.Trunc(v) || v >= 1<<64 {
		L.ArgError(n, "non-negative integer expected")
	}
	return uint64(v)
}

func checkInt32(L *lua.LState, n int) int32 {
	v := float64(L.CheckNumber(n))
	if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		L.ArgError(n, "int32 expected")
	}
	return int32(v)
}

// checkVector reads a position given as vector3(x, y, z) or {x=, y=, z=}.
func checkVector(L *lua.LState, n int) spatial.Vec3 {
	t := L.CheckTable(n)
	v, ok := tableVector(t)
	if !ok {
		L.ArgError(n, "position {x, y, z} expected")
	}
	return v
}

// invalid reports a stale handle. The engine already logged it.
func invalid(err error) bool {
	return errors.Is(err, entity.ErrNotFound)
}

// raise turns argument errors into Lua errors and logs the rest.
func (e *Engine) raise(L *lua.LState, fn string, err error) {
	if errors.Is(err, entity.ErrInvalidArgument) {
		L.RaiseError("%s: %s", fn, err.Error())
		return
	}
	e.log.Warn("lua export failed", zap.String("fn", fn), zap.Error(err))
}

// vector3(x, y, z)
func (e *Engine) luaVector3(L *lua.LState) int {
	v := spatial.V(float64(L.CheckNumber(1)), float64(L.CheckNumber(2)), float64(L.OptNumber(3, 0)))
	L.Push(pushVector(L, v))
	return 1
}

// createGameEntity(type, position, dimension, range [, data]) -> id
func (e *Engine) luaCreate(L *lua.LState) int {
	typ := checkUint(L, 1)
	pos := checkVector(L, 2)
	dim := checkInt32(L, 3)
	rng := float64(L.CheckNumber(4))
	if rng != math.Trunc(rng) {
		L.ArgError(4, "integer range expected")
	}

	var data map[string]entity.Value
	if t, ok := L.Get(5).(*lua.LTable); ok {
		v, err := toValue(L, t, 0)
		if err != nil {
			L.ArgError(5, err.Error())
		}
		m, ok := v.AsMap()
		if !ok {
			L.ArgError(5, "data table with string keys expected")
		}
		data = m
	}

	key, err := e.api.Create(typ, pos, dim, int64(rng), data)
	if err != nil {
		e.raise(L, "createGameEntity", err)
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(key.ID))
	return 1
}

// removeGameEntity(id, type)
func (e *Engine) luaRemove(L *lua.LState) int {
	e.api.Remove(checkKey(L))
	return 0
}

// doesGameEntityExist(id, type) -> bool
func (e *Engine) luaExists(L *lua.LState) int {
	L.Push(lua.LBool(e.api.Exists(checkKey(L))))
	return 1
}

// setGameEntityPosition(id, type, position)
func (e *Engine) luaSetPosition(L *lua.LState) int {
	key := checkKey(L)
	if err := e.api.SetPosition(key, checkVector(L, 3)); err != nil && !invalid(err) {
		e.raise(L, "setGameEntityPosition", err)
	}
	return 0
}

// getGameEntityPosition(id, type) -> vector3; origin for stale handles
func (e *Engine) luaGetPosition(L *lua.LState) int {
	pos, _ := e.api.Position(checkKey(L))
	L.Push(pushVector(L, pos))
	return 1
}

// getGameEntityRange(id, type) -> number; 0 for stale handles
func (e *Engine) luaGetRange(L *lua.LState) int {
	rng, _ := e.api.Range(checkKey(L))
	L.Push(lua.LNumber(rng))
	return 1
}

// setGameEntityDimension(id, type, dimension)
func (e *Engine) luaSetDimension(L *lua.LState) int {
	key := checkKey(L)
	if err := e.api.SetDimension(key, checkInt32(L, 3)); err != nil && !invalid(err) {
		e.raise(L, "setGameEntityDimension", err)
	}
	return 0
}

// getGameEntityDimension(id, type) -> number; 0 for stale handles
func (e *Engine) luaGetDimension(L *lua.LState) int {
	dim, _ := e.api.Dimension(checkKey(L))
	L.Push(lua.LNumber(dim))
	return 1
}

// setGameEntityData(id, type, key, value); nil value resets the key
func (e *Engine) luaSetData(L *lua.LState) int {
	key := checkKey(L)
	name := L.CheckString(3)
	lv := L.Get(4)

	var err error
	if lv == lua.LNil {
		err = e.api.ResetData(key, name)
	} else {
		v, convErr := toValue(L, lv, 0)
		if convErr != nil {
			L.ArgError(4, convErr.Error())
		}
		err = e.api.SetData(key, name, &v)
	}
	if err != nil && !invalid(err) {
		e.raise(L, "setGameEntityData", err)
	}
	return 0
}

// getGameEntityData(id, type, key) -> value or nil
func (e *Engine) luaGetData(L *lua.LState) int {
	v, err := e.api.Data(checkKey(L), L.CheckString(3))
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(fromValue(L, v))
	return 1
}

// resetGameEntityData(id, type, key)
func (e *Engine) luaResetData(L *lua.LState) int {
	key := checkKey(L)
	if err := e.api.ResetData(key, L.CheckString(3)); err != nil && !invalid(err) {
		e.raise(L, "resetGameEntityData", err)
	}
	return 0
}

// getGameEntitySnapshot(id, type) -> {id, type, serial, position,
// dimension, range, data} or nil for stale handles
func (e *Engine) luaSnapshot(L *lua.LState) int {
	snap, err := e.api.Snapshot(checkKey(L))
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	t := L.CreateTable(0, 7)
	t.RawSetString("id", lua.LNumber(snap.Key.ID))
	t.RawSetString("type", lua.LNumber(snap.Key.Type))
	t.RawSetString("serial", lua.LNumber(snap.Serial))
	t.RawSetString("position", pushVector(L, snap.Position))
	t.RawSetString("dimension", lua.LNumber(snap.Dimension))
	t.RawSetString("range", lua.LNumber(snap.Range))
	t.RawSetString("data", fromValue(L, entity.Map(snap.Data)))
	L.Push(t)
	return 1
}
