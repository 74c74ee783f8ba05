package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EntityAPI is the part of the sync engine exposed to scripts.
type EntityAPI interface {
	Create(typ uint64, pos spatial.Vec3, dim int32, rng int64, data map[string]entity.Value) (entity.EntityID, error)
	Remove(key entity.EntityID) bool
	Exists(key entity.EntityID) bool
	SetPosition(key entity.EntityID, pos spatial.Vec3) error
	Position(key entity.EntityID) (spatial.Vec3, error)
	Range(key entity.EntityID) (uint32, error)
	SetDimension(key entity.EntityID, dim int32) error
	Dimension(key entity.EntityID) (int32, error)
	SetData(key entity.EntityID, name string, v *entity.Value) error
	Data(key entity.EntityID, name string) (entity.Value, error)
	ResetData(key entity.EntityID, name string) error
	Snapshot(key entity.EntityID) (entity.Snapshot, error)
}

// Engine wraps a single gopher-lua VM that scripts entity behavior.
// Single-goroutine access only (host loop).
type Engine struct {
	vm  *lua.LState
	api EntityAPI
	log *zap.Logger
}

// NewEngine creates a Lua engine, registers the entity exports and loads
// every script under scriptsDir. Scripts in scriptsDir/core load first.
func NewEngine(scriptsDir string, api EntityAPI, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, api: api, log: log}
	e.registerExports()

	for _, dir := range []string{filepath.Join(scriptsDir, "core"), scriptsDir} {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// ==================== Hooks ====================

// call invokes a global hook if the scripts define it. Missing hooks are
// not an error.
func (e *Engine) call(name string, args ...lua.LValue) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error", zap.String("hook", name), zap.Error(err))
	}
}

// OnStart calls on_start().
func (e *Engine) OnStart() {
	e.call("on_start")
}

// OnTick calls on_tick(dt_ms).
func (e *Engine) OnTick(dt time.Duration) {
	e.call("on_tick", lua.LNumber(dt.Milliseconds()))
}

// OnViewerConnected calls on_viewer_connected(id, name).
func (e *Engine) OnViewerConnected(viewerID uint64, name string) {
	e.call("on_viewer_connected", lua.LNumber(viewerID), lua.LString(name))
}

// OnViewerDisconnected calls on_viewer_disconnected(id).
func (e *Engine) OnViewerDisconnected(viewerID uint64) {
	e.call("on_viewer_disconnected", lua.LNumber(viewerID))
}

// OnStop calls on_stop().
func (e *Engine) OnStop() {
	e.call("on_stop")
}
