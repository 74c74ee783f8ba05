package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/l1jgo/entitysync/internal/config"
	"github.com/l1jgo/entitysync/internal/engine"
	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T, dir string) (*Engine, *engine.Engine) {
	t.Helper()
	log := zaptest.NewLogger(t)
	sync, err := engine.New(config.Default(), engine.DelivererFunc(func(context.Context, uint64, *engine.Batch) error {
		return nil
	}), log)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if dir == "" {
		dir = t.TempDir()
	}
	e, err := NewEngine(dir, sync, log)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e, sync
}

func global(e *Engine, name string) lua.LValue {
	return e.vm.GetGlobal(name)
}

func TestExportsRoundTrip(t *testing.T) {
	e, sync := newTestEngine(t, "")
	err := e.DoString(`
		id = createGameEntity(3, vector3(10, 20, 5), 1, 50, { name = "crate", tags = { "a", "b" } })
		exists = doesGameEntityExist(id, 3)
		setGameEntityPosition(id, 3, { x = 11, y = 21 })
		pos = getGameEntityPosition(id, 3)
		rng = getGameEntityRange(id, 3)
		setGameEntityDimension(id, 3, -7)
		dim = getGameEntityDimension(id, 3)
		setGameEntityData(id, 3, "hp", 12.5)
		hp = getGameEntityData(id, 3, "hp")
		name = getGameEntityData(id, 3, "name")
		second_tag = getGameEntityData(id, 3, "tags")[2]
		setGameEntityData(id, 3, "where", vector3(1, 2, 3))
	`)
	if err != nil {
		t.Fatalf("script: %v", err)
	}

	id := uint64(lua.LVAsNumber(global(e, "id")))
	key := entity.EntityID{ID: id, Type: 3}
	if !sync.Exists(key) || global(e, "exists") != lua.LTrue {
		t.Fatalf("entity %s not created", key)
	}
	pos := global(e, "pos").(*lua.LTable)
	if lua.LVAsNumber(pos.RawGetString("x")) != 11 || lua.LVAsNumber(pos.RawGetString("z")) != 0 {
		t.Fatalf("pos = %v,%v", pos.RawGetString("x"), pos.RawGetString("z"))
	}
	if lua.LVAsNumber(global(e, "rng")) != 50 || lua.LVAsNumber(global(e, "dim")) != -7 {
		t.Fatalf("rng = %v dim = %v", global(e, "rng"), global(e, "dim"))
	}
	if lua.LVAsNumber(global(e, "hp")) != 12.5 || lua.LVAsString(global(e, "name")) != "crate" {
		t.Fatalf("hp = %v name = %v", global(e, "hp"), global(e, "name"))
	}
	if lua.LVAsString(global(e, "second_tag")) != "b" {
		t.Fatalf("second_tag = %v", global(e, "second_tag"))
	}

	tags, err := sync.Data(key, "tags")
	if err != nil || !tags.Equal(entity.List(entity.String("a"), entity.String("b"))) {
		t.Fatalf("tags = %v, %v", tags, err)
	}
	where, _ := sync.Data(key, "where")
	if v, ok := where.AsVector(); !ok || !v.Equal(spatial.V(1, 2, 3)) {
		t.Fatalf("where = %v", where)
	}
	if got, _ := sync.Position(key); !got.Equal(spatial.V(11, 21, 0)) {
		t.Fatalf("engine position = %v", got)
	}
}

func TestNilDataResets(t *testing.T) {
	e, sync := newTestEngine(t, "")
	err := e.DoString(`
		id = createGameEntity(1, { x = 0, y = 0, z = 0 }, 0, 10)
		setGameEntityData(id, 1, "a", 1)
		setGameEntityData(id, 1, "b", true)
		setGameEntityData(id, 1, "a", nil)
		resetGameEntityData(id, 1, "b")
		resetGameEntityData(id, 1, "never-set")
		a = getGameEntityData(id, 1, "a")
		b = getGameEntityData(id, 1, "b")
	`)
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	if global(e, "a") != lua.LNil || global(e, "b") != lua.LNil {
		t.Fatalf("a = %v b = %v", global(e, "a"), global(e, "b"))
	}
	key := entity.EntityID{ID: uint64(lua.LVAsNumber(global(e, "id"))), Type: 1}
	if _, err := sync.Data(key, "a"); err == nil {
		t.Fatalf("key a survived nil set")
	}
}

func TestStaleHandleDefaults(t *testing.T) {
	e, _ := newTestEngine(t, "")
	err := e.DoString(`
		removeGameEntity(99, 1)
		exists = doesGameEntityExist(99, 1)
		setGameEntityPosition(99, 1, vector3(1, 1, 1))
		setGameEntityDimension(99, 1, 4)
		setGameEntityData(99, 1, "k", "v")
		pos = getGameEntityPosition(99, 1)
		rng = getGameEntityRange(99, 1)
		dim = getGameEntityDimension(99, 1)
		data = getGameEntityData(99, 1, "k")
		snap = getGameEntitySnapshot(99, 1)
	`)
	if err != nil {
		t.Fatalf("stale handle raised: %v", err)
	}
	if global(e, "exists") != lua.LFalse || global(e, "data") != lua.LNil || global(e, "snap") != lua.LNil {
		t.Fatalf("exists = %v data = %v snap = %v", global(e, "exists"), global(e, "data"), global(e, "snap"))
	}
	pos := global(e, "pos").(*lua.LTable)
	if lua.LVAsNumber(pos.RawGetString("x")) != 0 || lua.LVAsNumber(global(e, "rng")) != 0 || lua.LVAsNumber(global(e, "dim")) != 0 {
		t.Fatalf("defaults not zero")
	}
}

func TestSnapshotExport(t *testing.T) {
	e, sync := newTestEngine(t, "")
	err := e.DoString(`
		id = createGameEntity(4, vector3(7, 8, 9), 2, 30, { hp = 10 })
		snap = getGameEntitySnapshot(id, 4)
	`)
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	key := entity.EntityID{ID: uint64(lua.LVAsNumber(global(e, "id"))), Type: 4}
	want, err := sync.Snapshot(key)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap := global(e, "snap").(*lua.LTable)
	if uint64(lua.LVAsNumber(snap.RawGetString("serial"))) != want.Serial {
		t.Fatalf("serial = %v, want %d", snap.RawGetString("serial"), want.Serial)
	}
	if lua.LVAsNumber(snap.RawGetString("range")) != 30 || lua.LVAsNumber(snap.RawGetString("dimension")) != 2 {
		t.Fatalf("range = %v dimension = %v", snap.RawGetString("range"), snap.RawGetString("dimension"))
	}
	pos := snap.RawGetString("position").(*lua.LTable)
	if lua.LVAsNumber(pos.RawGetString("z")) != 9 {
		t.Fatalf("position z = %v", pos.RawGetString("z"))
	}
	data := snap.RawGetString("data").(*lua.LTable)
	if lua.LVAsNumber(data.RawGetString("hp")) != 10 {
		t.Fatalf("data.hp = %v", data.RawGetString("hp"))
	}
}

func TestOversizeDataRaises(t *testing.T) {
	e, _ := newTestEngine(t, "")
	err := e.DoString(`
		id = createGameEntity(1, vector3(0, 0, 0), 0, 10)
		setGameEntityData(id, 1, "dump", string.rep("x", 70000))
	`)
	if err == nil {
		t.Fatalf("data above max_data_bytes accepted")
	}
}

func TestCreateRejectsBadArguments(t *testing.T) {
	e, sync := newTestEngine(t, "")
	tests := []struct {
		name string
		src  string
	}{
		{"negative range", `createGameEntity(1, vector3(0, 0, 0), 0, -5)`},
		{"fractional range", `createGameEntity(1, vector3(0, 0, 0), 0, 1.5)`},
		{"bad position", `createGameEntity(1, { 1, 2, 3 }, 0, 5)`},
		{"mixed keys", `createGameEntity(1, vector3(0, 0, 0), 0, 5, { [1] = "x", y = 2, [true] = 1 })`},
		{"negative type", `createGameEntity(-1, vector3(0, 0, 0), 0, 5)`},
		{"function value", `createGameEntity(1, vector3(0, 0, 0), 0, 5, { f = print })`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.DoString(tt.src); err == nil {
				t.Fatalf("%s accepted", tt.src)
			}
		})
	}
	if sync.Count() != 0 {
		t.Fatalf("rejected creates left %d entities", sync.Count())
	}
}

func TestHooks(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "core"), 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("core/00_base.lua", `order = "core"`)
	write("hooks.lua", `
		order = order .. ",main"
		started = false
		ticks = 0
		last_dt = 0
		joined = {}
		function on_start() started = true end
		function on_tick(dt) ticks = ticks + 1; last_dt = dt end
		function on_viewer_connected(id, name) joined[id] = name end
		function on_viewer_disconnected(id) joined[id] = nil end
	`)
	write("notes.txt", `this is not lua (`)

	e, _ := newTestEngine(t, dir)
	if lua.LVAsString(global(e, "order")) != "core,main" {
		t.Fatalf("load order = %v", global(e, "order"))
	}

	e.OnStart()
	e.OnTick(50 * time.Millisecond)
	e.OnTick(50 * time.Millisecond)
	e.OnViewerConnected(7, "alice")
	e.OnViewerConnected(8, "bob")
	e.OnViewerDisconnected(7)
	e.OnStop() // undefined hook is fine

	if global(e, "started") != lua.LTrue || lua.LVAsNumber(global(e, "ticks")) != 2 || lua.LVAsNumber(global(e, "last_dt")) != 50 {
		t.Fatalf("started = %v ticks = %v dt = %v", global(e, "started"), global(e, "ticks"), global(e, "last_dt"))
	}
	joined := global(e, "joined").(*lua.LTable)
	if joined.RawGetInt(7) != lua.LNil || lua.LVAsString(joined.RawGetInt(8)) != "bob" {
		t.Fatalf("joined = %v / %v", joined.RawGetInt(7), joined.RawGetInt(8))
	}
}

func TestBrokenScriptFailsLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644); err != nil {
		t.Fatal(err)
	}
	sync, _ := engine.New(config.Default(), engine.DelivererFunc(func(context.Context, uint64, *engine.Batch) error { return nil }), zaptest.NewLogger(t))
	if _, err := NewEngine(dir, sync, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("syntax error not reported")
	}
}

func TestHookErrorIsContained(t *testing.T) {
	e, _ := newTestEngine(t, "")
	if err := e.DoString(`function on_tick() error("boom") end`); err != nil {
		t.Fatal(err)
	}
	e.OnTick(time.Millisecond) // logged, no panic
}

func TestShippedScripts(t *testing.T) {
	e, sync := newTestEngine(t, filepath.Join("..", "..", "scripts"))

	e.OnStart()
	if sync.Count() != 1 {
		t.Fatalf("after on_start count = %d", sync.Count())
	}
	e.OnViewerConnected(9, "watcher")
	if sync.Count() != 2 {
		t.Fatalf("after connect count = %d", sync.Count())
	}
	e.OnTick(500 * time.Millisecond)
	e.OnViewerDisconnected(9)
	if sync.Count() != 1 {
		t.Fatalf("after disconnect count = %d", sync.Count())
	}
	e.OnStop()
	if sync.Count() != 0 {
		t.Fatalf("after on_stop count = %d", sync.Count())
	}
}
