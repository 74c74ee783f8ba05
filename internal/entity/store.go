package entity

import (
	"fmt"

	"github.com/l1jgo/entitysync/internal/spatial"
)

// Limits bounds what a Store accepts and how it indexes ranges.
type Limits struct {
	// Entities with a range above WideRange are kept in a separate set and
	// left out of QueryRadius. 0 puts every entity in the radius.
	WideRange uint32
	// MaxDataBytes caps the encoded size of one entity's data. 0 = unlimited.
	MaxDataBytes int
}

// Store owns the entity records of one shard.
// Not safe for concurrent use; the owning shard serializes access.
type Store struct {
	lim      Limits
	entities map[EntityID]*Entity
	wide     map[EntityID]*Entity
	ranges   map[uint32]int // live non-wide entities per range
	maxRange uint32
}

func NewStore(lim Limits) *Store {
	return &Store{
		lim:      lim,
		entities: make(map[EntityID]*Entity, 256),
		wide:     make(map[EntityID]*Entity),
		ranges:   make(map[uint32]int),
	}
}

// IsWide reports whether an entity of range rng lives in the wide set.
func (s *Store) IsWide(rng uint32) bool {
	return s.lim.WideRange > 0 && rng > s.lim.WideRange
}

func (s *Store) track(e *Entity) {
	if s.IsWide(e.rng) {
		s.wide[e.Key] = e
		return
	}
	s.ranges[e.rng]++
	if e.rng > s.maxRange {
		s.maxRange = e.rng
	}
}

func (s *Store) untrack(e *Entity) {
	if s.IsWide(e.rng) {
		delete(s.wide, e.Key)
		return
	}
	if s.ranges[e.rng]--; s.ranges[e.rng] > 0 {
		return
	}
	delete(s.ranges, e.rng)
	if e.rng < s.maxRange {
		return
	}
	s.maxRange = 0
	for r := range s.ranges {
		if r > s.maxRange {
			s.maxRange = r
		}
	}
}

func (s *Store) checkDataSize(k EntityID, size int) error {
	if s.lim.MaxDataBytes > 0 && size > s.lim.MaxDataBytes {
		return fmt.Errorf("entity %s data of %d bytes exceeds %d: %w", k, size, s.lim.MaxDataBytes, ErrInvalidArgument)
	}
	return nil
}

func notFound(k EntityID) error {
	return fmt.Errorf("entity %s: %w", k, ErrNotFound)
}

// Insert adds e. The key must not be live.
func (s *Store) Insert(e *Entity) error {
	if _, dup := s.entities[e.Key]; dup {
		return fmt.Errorf("entity %s already exists: %w", e.Key, ErrInvalidArgument)
	}
	if err := s.checkDataSize(e.Key, e.dataSize); err != nil {
		return err
	}
	s.entities[e.Key] = e
	s.track(e)
	return nil
}

// Remove deletes k and returns the removed record.
func (s *Store) Remove(k EntityID) (*Entity, bool) {
	e, ok := s.entities[k]
	if ok {
		delete(s.entities, k)
		s.untrack(e)
	}
	return e, ok
}

func (s *Store) Exists(k EntityID) bool {
	_, ok := s.entities[k]
	return ok
}

// Get returns the live record for k. The pointer must not escape the
// shard lock.
func (s *Store) Get(k EntityID) (*Entity, bool) {
	e, ok := s.entities[k]
	return e, ok
}

// SetPosition stores pos. Setting the current position is not a change.
func (s *Store) SetPosition(k EntityID, pos spatial.Vec3) error {
	e, ok := s.entities[k]
	if !ok {
		return notFound(k)
	}
	if !e.pos.Equal(pos) {
		e.pos = pos
		e.ver.Position++
	}
	return nil
}

func (s *Store) Position(k EntityID) (spatial.Vec3, error) {
	e, ok := s.entities[k]
	if !ok {
		return spatial.Vec3{}, notFound(k)
	}
	return e.pos, nil
}

func (s *Store) SetDimension(k EntityID, dim int32) error {
	e, ok := s.entities[k]
	if !ok {
		return notFound(k)
	}
	if e.dim != dim {
		e.dim = dim
		e.ver.Dimension++
	}
	return nil
}

func (s *Store) Dimension(k EntityID) (int32, error) {
	e, ok := s.entities[k]
	if !ok {
		return 0, notFound(k)
	}
	return e.dim, nil
}

func (s *Store) Range(k EntityID) (uint32, error) {
	e, ok := s.entities[k]
	if !ok {
		return 0, notFound(k)
	}
	return e.rng, nil
}

// SetData stores v under name. A nil pointer or a Nil value removes the
// key, exactly like ResetData. A value that would push the data past
// MaxDataBytes is rejected and nothing changes.
func (s *Store) SetData(k EntityID, name string, v *Value) error {
	if v == nil || v.IsNil() {
		return s.ResetData(k, name)
	}
	e, ok := s.entities[k]
	if !ok {
		return notFound(k)
	}
	size := e.dataSize + entrySize(name, *v)
	if old, had := e.data[name]; had {
		if old.Equal(*v) {
			return nil
		}
		size -= entrySize(name, old)
	}
	if err := s.checkDataSize(k, size); err != nil {
		return err
	}
	e.data[name] = *v
	e.dataSize = size
	e.ver.Data++
	return nil
}

// Data returns the value under name. A missing entity and a missing key
// both report ErrNotFound.
func (s *Store) Data(k EntityID, name string) (Value, error) {
	e, ok := s.entities[k]
	if !ok {
		return Value{}, notFound(k)
	}
	v, ok := e.data[name]
	if !ok {
		return Value{}, fmt.Errorf("entity %s data key %q: %w", k, name, ErrNotFound)
	}
	return v, nil
}

// ResetData removes name. Removing an absent key is a no-op.
func (s *Store) ResetData(k EntityID, name string) error {
	e, ok := s.entities[k]
	if !ok {
		return notFound(k)
	}
	if old, had := e.data[name]; had {
		delete(e.data, name)
		e.dataSize -= entrySize(name, old)
		e.ver.Data++
	}
	return nil
}

// Snapshot copies the record for k.
func (s *Store) Snapshot(k EntityID) (Snapshot, error) {
	e, ok := s.entities[k]
	if !ok {
		return Snapshot{}, notFound(k)
	}
	return e.Snapshot(), nil
}

// QueryRadius is the largest range among live entities outside the wide
// set. It shrinks again when those entities are removed.
func (s *Store) QueryRadius() uint32 {
	return s.maxRange
}

func (s *Store) Len() int {
	return len(s.entities)
}

// EachWide visits the entities whose range is above Limits.WideRange.
func (s *Store) EachWide(fn func(*Entity)) {
	for _, e := range s.wide {
		fn(e)
	}
}

func (s *Store) WideLen() int {
	return len(s.wide)
}
