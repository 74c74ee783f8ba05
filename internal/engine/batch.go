package engine

import (
	"context"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
)

// ChangeMask flags which fields of an updated entity changed.
type ChangeMask uint8

const (
	ChangedPosition ChangeMask = 1 << iota
	ChangedDimension
	ChangedData
)

func (m ChangeMask) Has(f ChangeMask) bool { return m&f != 0 }

// Summary describes one entity as a viewer should see it. For created
// entities every field is set; for updates Data is present only when
// ChangedData is set, and then holds the complete data bag.
type Summary struct {
	Key       entity.EntityID         `msgpack:"key"`
	Position  spatial.Vec3            `msgpack:"pos"`
	Dimension int32                   `msgpack:"dim"`
	Range     uint32                  `msgpack:"range"`
	Data      map[string]entity.Value `msgpack:"data,omitempty"`
	Changed   ChangeMask              `msgpack:"changed,omitempty"`
}

// Batch is the diff of one viewer's relevance set produced by one tick.
// Entries carry no relative order.
type Batch struct {
	Tick    uint64            `msgpack:"tick"`
	Shard   int               `msgpack:"shard"`
	Created []Summary         `msgpack:"created,omitempty"`
	Updated []Summary         `msgpack:"updated,omitempty"`
	Removed []entity.EntityID `msgpack:"removed,omitempty"`
}

func (b *Batch) Empty() bool {
	return len(b.Created) == 0 && len(b.Updated) == 0 && len(b.Removed) == 0
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int {
	return len(b.Created) + len(b.Updated) + len(b.Removed)
}

// Split divides b into two batches of about half the events each. Removes
// come first, so a reused id is never removed after its new create.
func (b *Batch) Split() (*Batch, *Batch) {
	half := b.Len() / 2
	first := &Batch{Tick: b.Tick, Shard: b.Shard}
	second := &Batch{Tick: b.Tick, Shard: b.Shard}
	n := 0
	for _, k := range b.Removed {
		if n < half {
			first.Removed = append(first.Removed, k)
		} else {
			second.Removed = append(second.Removed, k)
		}
		n++
	}
	for _, sum := range b.Created {
		if n < half {
			first.Created = append(first.Created, sum)
		} else {
			second.Created = append(second.Created, sum)
		}
		n++
	}
	for _, sum := range b.Updated {
		if n < half {
			first.Updated = append(first.Updated, sum)
		} else {
			second.Updated = append(second.Updated, sum)
		}
		n++
	}
	return first, second
}

// Deliverer is the outbound side of the network layer.
//
// Deliver must either accept the whole batch or reject it. Returning
// ErrUnavailable makes the worker retry the same batch; ErrViewerGone
// drops it. Calls for one viewer never overlap.
type Deliverer interface {
	Deliver(ctx context.Context, viewerID uint64, batch *Batch) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, viewerID uint64, batch *Batch) error

func (f DelivererFunc) Deliver(ctx context.Context, viewerID uint64, batch *Batch) error {
	return f(ctx, viewerID, batch)
}
