package entity

import (
	"errors"
	"fmt"

	"github.com/l1jgo/entitysync/internal/spatial"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// EntityID addresses an entity: a numeric id unique within Type.
type EntityID struct {
	ID   uint64 `msgpack:"id"`
	Type uint64 `msgpack:"type"`
}

func (k EntityID) String() string {
	return fmt.Sprintf("%d:%d", k.Type, k.ID)
}

// Versions counts effective mutations per field. A viewer that last saw
// a lower version needs an update.
type Versions struct {
	Position  uint64
	Dimension uint64
	Data      uint64
}

// Entity is a synchronized world object. All access goes through the
// owning Store under its shard lock.
type Entity struct {
	Key    EntityID
	Serial uint64 // unique per creation, survives id reuse

	pos  spatial.Vec3
	dim  int32
	rng  uint32
	data map[string]Value
	ver  Versions

	dataSize int // encoded bytes of data, kept by the Store
}

// New builds an entity. Nil values in data are dropped since nil means
// "no value" for a key.
func New(key EntityID, serial uint64, pos spatial.Vec3, dim int32, rng uint32, data map[string]Value) *Entity {
	e := &Entity{
		Key:    key,
		Serial: serial,
		pos:    pos,
		dim:    dim,
		rng:    rng,
		data:   make(map[string]Value, len(data)),
	}
	for k, v := range data {
		if !v.IsNil() {
			e.data[k] = v
			e.dataSize += entrySize(k, v)
		}
	}
	return e
}

// entrySize approximates the wire size of one data entry.
func entrySize(name string, v Value) int {
	return len(name) + v.EncodedSize()
}

func (e *Entity) Position() spatial.Vec3 { return e.pos }
func (e *Entity) Dimension() int32       { return e.dim }
func (e *Entity) Range() uint32          { return e.rng }
func (e *Entity) Versions() Versions     { return e.ver }
func (e *Entity) DataSize() int          { return e.dataSize }

// DataCopy returns a shallow copy of the data bag. Values are immutable so
// the copy is safe to hand off outside the shard lock.
func (e *Entity) DataCopy() map[string]Value {
	if len(e.data) == 0 {
		return nil
	}
	cp := make(map[string]Value, len(e.data))
	for k, v := range e.data {
		cp[k] = v
	}
	return cp
}

// Snapshot is a point-in-time copy of an entity.
type Snapshot struct {
	Key       EntityID
	Serial    uint64
	Position  spatial.Vec3
	Dimension int32
	Range     uint32
	Data      map[string]Value
	Versions  Versions
}

func (e *Entity) Snapshot() Snapshot {
	return Snapshot{
		Key:       e.Key,
		Serial:    e.Serial,
		Position:  e.pos,
		Dimension: e.dim,
		Range:     e.rng,
		Data:      e.DataCopy(),
		Versions:  e.ver,
	}
}
