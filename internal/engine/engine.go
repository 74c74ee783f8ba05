package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/l1jgo/entitysync/internal/config"
	"github.com/l1jgo/entitysync/internal/core/ids"
	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine tracks entities and viewers and streams relevance diffs to the
// network layer. All methods are safe for concurrent use.
type Engine struct {
	cfg       config.SyncConfig
	log       *zap.Logger
	out       Deliverer
	ids       *ids.Allocator
	shards    []*shard
	workers   []*worker
	dirtyMode bool

	state         atomic.Int32
	stopCh        chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	waitErr       error
	cancelDeliver context.CancelFunc
}

// New builds an engine from cfg. Entities may be created before Start.
func New(cfg *config.Config, out Deliverer, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("engine: nil deliverer: %w", ErrInvalidArgument)
	}
	if log == nil {
		log = zap.NewNop()
	}
	strategy, err := ids.ParseStrategy(cfg.IDs.Strategy)
	if err != nil {
		return nil, err
	}

	grid := spatial.Config{
		MaxX:     cfg.Grid.MaxX,
		MaxY:     cfg.Grid.MaxY,
		OffsetX:  cfg.Grid.OffsetX,
		OffsetY:  cfg.Grid.OffsetY,
		CellSize: cfg.Grid.CellSize,
		Match:    spatial.NewDimensionMatcher(cfg.Sync.GlobalDimensions),
	}

	n := cfg.Sync.ShardCount
	e := &Engine{
		cfg:       cfg.Sync,
		log:       log,
		out:       out,
		ids:       ids.NewAllocator(strategy, cfg.IDs.Reuse),
		shards:    make([]*shard, n),
		workers:   make([]*worker, n),
		dirtyMode: cfg.Sync.TickMode == config.TickDirty,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		s, err := newShard(grid, cfg.Sync.MaxDataBytes)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		e.shards[i] = s
		e.workers[i] = newWorker(i, e, cfg.Sync.IntervalFor(i))
	}
	return e, nil
}

// Start launches one worker goroutine per shard. Cancelling ctx stops the
// workers and aborts pending deliveries.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("engine start in state %s: %w", e.State(), ErrStopped)
	}
	deliverCtx, cancel := context.WithCancel(ctx)
	e.cancelDeliver = cancel

	var g errgroup.Group
	for _, w := range e.workers {
		w := w
		g.Go(func() error {
			w.run(ctx, e.stopCh, deliverCtx)
			return nil
		})
	}
	go func() {
		e.waitErr = g.Wait()
		cancel()
		close(e.done)
	}()

	cols, rows := e.shards[0].grid.Dims()
	e.log.Info("sync engine started",
		zap.Int("shards", len(e.shards)),
		zap.Int("grid_cols", cols),
		zap.Int("grid_rows", rows),
		zap.String("tick_mode", e.cfg.TickMode),
		zap.Duration("tick_interval", e.cfg.TickInterval))
	return nil
}

// Stop rejects new entities and viewers, lets in-flight ticks finish and
// waits for the workers. When ctx expires first, pending delivery retries
// are cancelled and the context error is returned.
func (e *Engine) Stop(ctx context.Context) error {
	if e.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
		close(e.done)
		return nil
	}
	e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	e.stopOnce.Do(func() { close(e.stopCh) })

	var errs error
	select {
	case <-e.done:
	case <-ctx.Done():
		e.cancelDeliver()
		<-e.done
		errs = multierr.Append(errs, fmt.Errorf("engine stop: %w", ctx.Err()))
	}
	errs = multierr.Append(errs, e.waitErr)
	e.state.Store(int32(StateStopped))
	e.log.Info("sync engine stopped", zap.Int("entities", e.Count()))
	return errs
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) accepting() bool {
	s := e.State()
	return s == StateCreated || s == StateRunning
}

func (e *Engine) shardFor(key entity.EntityID) *shard {
	return e.shards[ShardOf(key, len(e.shards))]
}

func (e *Engine) workerFor(viewerID uint64) *worker {
	return e.workers[ViewerShardOf(viewerID, len(e.workers))]
}

// entityChanged wakes every worker in dirty mode: any of them may own a
// viewer that sees the entity.
func (e *Engine) entityChanged() {
	if !e.dirtyMode {
		return
	}
	for _, w := range e.workers {
		w.poke()
	}
}

func (e *Engine) viewerChanged(w *worker) {
	if e.dirtyMode {
		w.poke()
	}
}

// miss logs lookups of stale handles. Other errors pass through quietly.
func (e *Engine) miss(op string, key entity.EntityID, err error) error {
	if errors.Is(err, ErrNotFound) {
		e.log.Warn("entity lookup failed",
			zap.String("op", op),
			zap.Stringer("entity", key),
			zap.Error(err))
	}
	return err
}

// ==================== Entity operations ====================

// Create allocates an id for a new entity of type typ and inserts it. Nil
// values in data are dropped.
func (e *Engine) Create(typ uint64, pos spatial.Vec3, dim int32, rng int64, data map[string]entity.Value) (entity.EntityID, error) {
	if !e.accepting() {
		return entity.EntityID{}, ErrStopped
	}
	if rng < 0 || rng > math.MaxUint32 {
		return entity.EntityID{}, fmt.Errorf("range %d out of bounds: %w", rng, ErrInvalidArgument)
	}
	if !pos.Finite() {
		return entity.EntityID{}, fmt.Errorf("position %v not finite: %w", pos, ErrInvalidArgument)
	}

	id, serial := e.ids.Allocate(typ)
	key := entity.EntityID{ID: id, Type: typ}
	ent := entity.New(key, serial, pos, dim, uint32(rng), data)

	s := e.shardFor(key)
	s.mu.Lock()
	err := s.store.Insert(ent)
	if err == nil {
		s.grid.Insert(key, pos, dim)
	}
	s.mu.Unlock()
	if err != nil {
		e.ids.Release(typ, id)
		return entity.EntityID{}, err
	}

	e.entityChanged()
	return key, nil
}

// Remove deletes the entity and releases its id. Viewers that saw it get a
// remove event on their next tick.
func (e *Engine) Remove(key entity.EntityID) bool {
	s := e.shardFor(key)
	s.mu.Lock()
	_, ok := s.store.Remove(key)
	if ok {
		s.grid.Remove(key)
	}
	s.mu.Unlock()
	if !ok {
		e.miss("remove", key, fmt.Errorf("entity %s: %w", key, ErrNotFound))
		return false
	}
	e.ids.Release(key.Type, key.ID)
	e.entityChanged()
	return true
}

func (e *Engine) Exists(key entity.EntityID) bool {
	s := e.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Exists(key)
}

func (e *Engine) SetPosition(key entity.EntityID, pos spatial.Vec3) error {
	if !pos.Finite() {
		return fmt.Errorf("position %v not finite: %w", pos, ErrInvalidArgument)
	}
	s := e.shardFor(key)
	s.mu.Lock()
	err := s.store.SetPosition(key, pos)
	if err == nil {
		s.grid.Move(key, pos)
	}
	s.mu.Unlock()
	if err != nil {
		return e.miss("set_position", key, err)
	}
	e.entityChanged()
	return nil
}

func (e *Engine) Position(key entity.EntityID) (spatial.Vec3, error) {
	s := e.shardFor(key)
	s.mu.RLock()
	pos, err := s.store.Position(key)
	s.mu.RUnlock()
	return pos, e.miss("get_position", key, err)
}

func (e *Engine) Range(key entity.EntityID) (uint32, error) {
	s := e.shardFor(key)
	s.mu.RLock()
	rng, err := s.store.Range(key)
	s.mu.RUnlock()
	return rng, e.miss("get_range", key, err)
}

func (e *Engine) SetDimension(key entity.EntityID, dim int32) error {
	s := e.shardFor(key)
	s.mu.Lock()
	err := s.store.SetDimension(key, dim)
	if err == nil {
		s.grid.SetDimension(key, dim)
	}
	s.mu.Unlock()
	if err != nil {
		return e.miss("set_dimension", key, err)
	}
	e.entityChanged()
	return nil
}

func (e *Engine) Dimension(key entity.EntityID) (int32, error) {
	s := e.shardFor(key)
	s.mu.RLock()
	dim, err := s.store.Dimension(key)
	s.mu.RUnlock()
	return dim, e.miss("get_dimension", key, err)
}

// SetData stores v under name. A nil v removes the key.
func (e *Engine) SetData(key entity.EntityID, name string, v *entity.Value) error {
	s := e.shardFor(key)
	s.mu.Lock()
	err := s.store.SetData(key, name, v)
	s.mu.Unlock()
	if err != nil {
		return e.miss("set_data", key, err)
	}
	e.entityChanged()
	return nil
}

func (e *Engine) Data(key entity.EntityID, name string) (entity.Value, error) {
	s := e.shardFor(key)
	s.mu.RLock()
	v, err := s.store.Data(key, name)
	s.mu.RUnlock()
	return v, e.miss("get_data", key, err)
}

func (e *Engine) ResetData(key entity.EntityID, name string) error {
	s := e.shardFor(key)
	s.mu.Lock()
	err := s.store.ResetData(key, name)
	s.mu.Unlock()
	if err != nil {
		return e.miss("reset_data", key, err)
	}
	e.entityChanged()
	return nil
}

// Snapshot copies the full record of an entity.
func (e *Engine) Snapshot(key entity.EntityID) (entity.Snapshot, error) {
	s := e.shardFor(key)
	s.mu.RLock()
	snap, err := s.store.Snapshot(key)
	s.mu.RUnlock()
	return snap, e.miss("snapshot", key, err)
}

// ==================== Viewer events from the network layer ====================

// ViewerConnected registers a viewer. Connecting an id that is already
// registered starts it over with an empty relevance set.
func (e *Engine) ViewerConnected(viewerID uint64, pos spatial.Vec3, dim int32) error {
	if !e.accepting() {
		return ErrStopped
	}
	if !pos.Finite() {
		return fmt.Errorf("viewer %d position %v not finite: %w", viewerID, pos, ErrInvalidArgument)
	}
	w := e.workerFor(viewerID)
	w.connect(viewerID, pos, dim)
	e.viewerChanged(w)
	e.log.Debug("viewer connected", zap.Uint64("viewer", viewerID), zap.Int("worker", w.index))
	return nil
}

// ViewerDisconnected forgets a viewer. Nothing is delivered to it again.
func (e *Engine) ViewerDisconnected(viewerID uint64) {
	w := e.workerFor(viewerID)
	if w.disconnect(viewerID) {
		e.viewerChanged(w)
		e.log.Debug("viewer disconnected", zap.Uint64("viewer", viewerID))
	}
}

func (e *Engine) ViewerMoved(viewerID uint64, pos spatial.Vec3) error {
	if !pos.Finite() {
		return fmt.Errorf("viewer %d position %v not finite: %w", viewerID, pos, ErrInvalidArgument)
	}
	w := e.workerFor(viewerID)
	if !w.move(viewerID, pos) {
		return fmt.Errorf("viewer %d: %w", viewerID, ErrNotFound)
	}
	e.viewerChanged(w)
	return nil
}

func (e *Engine) ViewerDimensionChanged(viewerID uint64, dim int32) error {
	w := e.workerFor(viewerID)
	if !w.setDimension(viewerID, dim) {
		return fmt.Errorf("viewer %d: %w", viewerID, ErrNotFound)
	}
	e.viewerChanged(w)
	return nil
}

// ==================== Introspection ====================

// Count returns the number of live entities.
func (e *Engine) Count() int {
	n := 0
	for _, s := range e.shards {
		s.mu.RLock()
		n += s.store.Len()
		s.mu.RUnlock()
	}
	return n
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Entities int
	Viewers  int
	FreeIDs  int
	Ticks    uint64
	Batches  uint64
	Events   uint64
	Retries  uint64
	Workers  []WorkerState
	State    State
}

func (e *Engine) Stats() Stats {
	st := Stats{
		Entities: e.Count(),
		FreeIDs:  e.ids.Free(),
		Workers:  make([]WorkerState, len(e.workers)),
		State:    e.State(),
	}
	for i, w := range e.workers {
		st.Viewers += w.viewerCount()
		st.Ticks += w.ticks.Load()
		st.Batches += w.delivered.Load()
		st.Events += w.events.Load()
		st.Retries += w.retries.Load()
		st.Workers[i] = w.State()
	}
	return st
}
