package engine

import (
	"math"
	"sync"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
)

// shard is one disjoint slice of the world: the entities whose id maps to
// it, their records and their grid entries. Callers mutate under the write
// lock so store and grid always change together; ticks read under the read
// lock.
type shard struct {
	mu    sync.RWMutex
	store *entity.Store
	grid  *spatial.Grid[entity.EntityID]
}

// wideCells is how many grid cells a range may span before the entity is
// checked against viewers directly instead of through the grid.
const wideCells = 4

func newShard(cfg spatial.Config, maxDataBytes int) (*shard, error) {
	grid, err := spatial.NewGrid[entity.EntityID](cfg)
	if err != nil {
		return nil, err
	}
	wide := cfg.CellSize * wideCells
	if wide > math.MaxUint32 {
		wide = math.MaxUint32
	}
	return &shard{
		store: entity.NewStore(entity.Limits{
			WideRange:    uint32(wide),
			MaxDataBytes: maxDataBytes,
		}),
		grid: grid,
	}, nil
}

// seen is what a viewer was last told about an entity.
type seen struct {
	serial uint64
	ver    entity.Versions
}

// candidate is an entity found relevant for a viewer during a tick.
// summary is filled only when the viewer needs a create or update.
type candidate struct {
	seen
	distSq  float64
	summary *Summary
}

// collect adds this shard's entities that are relevant to each view into
// out[i]. Summaries are captured under the read lock so the diff that
// follows never looks at live records. The grid is searched with the
// widest non-wide range; wide entities are measured one by one.
func (s *shard) collect(views []viewer, known map[uint64]*relevance, out []map[entity.EntityID]candidate) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store.Len() == 0 {
		return
	}
	radius := float64(s.store.QueryRadius())
	for i := range views {
		v := &views[i]
		rel := known[v.id]
		add := func(e *entity.Entity, distSq float64) {
			r := float64(e.Range())
			if distSq > r*r {
				return
			}
			c := candidate{
				seen:   seen{serial: e.Serial, ver: e.Versions()},
				distSq: distSq,
			}
			prev, had := rel.entities[e.Key]
			switch {
			case !had || prev.serial != e.Serial:
				c.summary = createSummary(e)
			case prev.ver != c.ver:
				c.summary = updateSummary(e, prev.ver)
			}
			if out[i] == nil {
				out[i] = make(map[entity.EntityID]candidate)
			}
			out[i][e.Key] = c
		}

		s.grid.Visit(v.pos, radius, v.dim, func(k entity.EntityID, distSq float64) {
			e, ok := s.store.Get(k)
			if !ok || e.Range() == 0 || s.store.IsWide(e.Range()) {
				return
			}
			add(e, distSq)
		})
		s.store.EachWide(func(e *entity.Entity) {
			if s.grid.Matches(v.dim, e.Dimension()) {
				add(e, e.Position().DistSq(v.pos))
			}
		})
	}
}

func createSummary(e *entity.Entity) *Summary {
	return &Summary{
		Key:       e.Key,
		Position:  e.Position(),
		Dimension: e.Dimension(),
		Range:     e.Range(),
		Data:      e.DataCopy(),
	}
}

func updateSummary(e *entity.Entity, prev entity.Versions) *Summary {
	cur := e.Versions()
	s := &Summary{
		Key:       e.Key,
		Position:  e.Position(),
		Dimension: e.Dimension(),
		Range:     e.Range(),
	}
	if cur.Position != prev.Position {
		s.Changed |= ChangedPosition
	}
	if cur.Dimension != prev.Dimension {
		s.Changed |= ChangedDimension
	}
	if cur.Data != prev.Data {
		s.Changed |= ChangedData
		s.Data = e.DataCopy()
	}
	return s
}
