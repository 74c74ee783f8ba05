package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// WorkerState is the observable state of a sync worker.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerTicking
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerTicking:
		return "ticking"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// viewer is the connection-reported state of a remote subscriber.
type viewer struct {
	id    uint64
	pos   spatial.Vec3
	dim   int32
	epoch uint64 // changes when the same id connects again
}

// relevance is a viewer's last delivered relevance set.
type relevance struct {
	epoch    uint64
	entities map[entity.EntityID]seen
}

// worker owns the viewers of one shard index. It reads every entity shard
// but keeps relevance sets to itself, so diffing needs no locks.
type worker struct {
	index    int
	eng      *Engine
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex // guards viewers and epochs
	viewers map[uint64]*viewer
	epochs  uint64

	// Touched only by the worker goroutine (or by tests driving tick).
	known  map[uint64]*relevance
	tickNo uint64

	wake       chan struct{}
	retryArmed atomic.Bool
	state      atomic.Int32

	ticks     atomic.Uint64
	delivered atomic.Uint64
	events    atomic.Uint64
	retries   atomic.Uint64
}

func newWorker(index int, eng *Engine, interval time.Duration) *worker {
	return &worker{
		index:    index,
		eng:      eng,
		interval: interval,
		log:      eng.log.With(zap.Int("worker", index)),
		viewers:  make(map[uint64]*viewer),
		known:    make(map[uint64]*relevance),
		wake:     make(chan struct{}, 1),
	}
}

func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// poke schedules a tick in dirty mode. Bursts coalesce into one tick.
func (w *worker) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// retryLater wakes a dirty-mode worker one interval after a failed
// delivery so the diff is recomputed. Fixed mode ticks anyway.
func (w *worker) retryLater() {
	if !w.eng.dirtyMode || !w.retryArmed.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(w.interval, func() {
		w.retryArmed.Store(false)
		w.poke()
	})
}

func (w *worker) connect(id uint64, pos spatial.Vec3, dim int32) {
	w.mu.Lock()
	w.epochs++
	w.viewers[id] = &viewer{id: id, pos: pos, dim: dim, epoch: w.epochs}
	w.mu.Unlock()
}

func (w *worker) disconnect(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.viewers[id]; !ok {
		return false
	}
	delete(w.viewers, id)
	return true
}

func (w *worker) move(id uint64, pos spatial.Vec3) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.viewers[id]
	if ok {
		v.pos = pos
	}
	return ok
}

func (w *worker) setDimension(id uint64, dim int32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.viewers[id]
	if ok {
		v.dim = dim
	}
	return ok
}

func (w *worker) viewerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.viewers)
}

func (w *worker) snapshotViewers() []viewer {
	w.mu.Lock()
	defer w.mu.Unlock()
	views := make([]viewer, 0, len(w.viewers))
	for _, v := range w.viewers {
		views = append(views, *v)
	}
	return views
}

// run drives ticks until stop is closed or ctx is cancelled. A tick that
// has started always finishes.
func (w *worker) run(ctx context.Context, stop <-chan struct{}, deliverCtx context.Context) {
	defer w.state.Store(int32(WorkerStopped))

	var tickC <-chan time.Time
	if !w.eng.dirtyMode {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-tickC:
		case <-w.wake:
		}
		// Both channels may be ready; stopping wins.
		select {
		case <-stop:
			return
		default:
		}
		w.tick(deliverCtx)
	}
}

// tick recomputes every owned viewer's relevance set and delivers diffs.
func (w *worker) tick(ctx context.Context) {
	w.state.Store(int32(WorkerTicking))
	defer w.state.Store(int32(WorkerIdle))
	w.tickNo++
	w.ticks.Add(1)

	views := w.snapshotViewers()
	present := make(map[uint64]struct{}, len(views))
	for _, v := range views {
		present[v.id] = struct{}{}
		if rel := w.known[v.id]; rel == nil || rel.epoch != v.epoch {
			w.known[v.id] = &relevance{epoch: v.epoch, entities: make(map[entity.EntityID]seen)}
		}
	}
	for id := range w.known {
		if _, ok := present[id]; !ok {
			delete(w.known, id)
		}
	}
	if len(views) == 0 {
		return
	}

	cands := make([]map[entity.EntityID]candidate, len(views))
	for _, s := range w.eng.shards {
		s.collect(views, w.known, cands)
	}

	limit := w.eng.cfg.MaxEntitiesPerViewer
	for i, v := range views {
		cand := cands[i]
		if limit > 0 && len(cand) > limit {
			cand = nearest(cand, limit)
		}
		rel := w.known[v.id]
		batch := diff(rel, cand)
		if batch.Empty() {
			continue
		}
		batch.Tick = w.tickNo
		batch.Shard = w.index

		switch err := w.deliver(ctx, v.id, batch); {
		case err == nil:
			next := make(map[entity.EntityID]seen, len(cand))
			for k, c := range cand {
				next[k] = c.seen
			}
			rel.entities = next
			w.delivered.Add(1)
			w.events.Add(uint64(batch.Len()))
		case errors.Is(err, ErrViewerGone):
			// The client state is gone with the connection; start over if
			// the viewer is still registered next tick.
			delete(w.known, v.id)
		default:
			w.log.Warn("batch not delivered",
				zap.Uint64("viewer", v.id),
				zap.Uint64("tick", w.tickNo),
				zap.Error(err))
			w.retryLater()
		}
	}
}

// diff compares the last delivered set against this tick's candidates.
// A changed serial for the same key means the id was reused by a new
// entity: the old one is removed and the new one created.
func diff(rel *relevance, cand map[entity.EntityID]candidate) *Batch {
	b := &Batch{}
	for k, prev := range rel.entities {
		if c, ok := cand[k]; !ok || c.serial != prev.serial {
			b.Removed = append(b.Removed, k)
		}
	}
	for k, c := range cand {
		prev, had := rel.entities[k]
		switch {
		case !had || prev.serial != c.serial:
			b.Created = append(b.Created, *c.summary)
		case prev.ver != c.ver:
			b.Updated = append(b.Updated, *c.summary)
		}
	}
	return b
}

// nearest keeps the limit closest candidates. Ties break on key so the
// chosen set is stable while nothing moves.
func nearest(cand map[entity.EntityID]candidate, limit int) map[entity.EntityID]candidate {
	keys := make([]entity.EntityID, 0, len(cand))
	for k := range cand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := cand[keys[i]], cand[keys[j]]
		if a.distSq != b.distSq {
			return a.distSq < b.distSq
		}
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	out := make(map[entity.EntityID]candidate, limit)
	for _, k := range keys[:limit] {
		out[k] = cand[k]
	}
	return out
}

// deliver hands the batch to the network layer, retrying with capped
// exponential backoff while it reports ErrUnavailable.
func (w *worker) deliver(ctx context.Context, viewerID uint64, b *Batch) error {
	cfg := w.eng.cfg
	backoff := retry.WithCappedDuration(cfg.DeliveryMaxBackoff, retry.NewExponential(cfg.DeliveryBackoff))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.eng.out.Deliver(ctx, viewerID, b)
		if errors.Is(err, ErrUnavailable) {
			attempt++
			w.retries.Add(1)
			if attempt == 1 {
				w.log.Debug("network layer busy, retrying batch",
					zap.Uint64("viewer", viewerID),
					zap.Int("events", b.Len()))
			}
			return retry.RetryableError(err)
		}
		return err
	})
}
