package ids

import (
	"fmt"
	"sync"
)

// Strategy selects how numeric ids are scoped.
type Strategy int

const (
	Global  Strategy = iota // one counter shared by every entity type
	PerType                 // one counter per entity type
)

// ParseStrategy maps the config spelling to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "global":
		return Global, nil
	case "per_type":
		return PerType, nil
	default:
		return Global, fmt.Errorf("unknown id strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case Global:
		return "global"
	case PerType:
		return "per_type"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// pool is a counter with a LIFO free list. Id 0 is never issued.
type pool struct {
	next     uint64
	freeList []uint64
}

func (p *pool) allocate(reuse bool) uint64 {
	if reuse && len(p.freeList) > 0 {
		id := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return id
	}
	p.next++
	return p.next
}

func (p *pool) release(id uint64) {
	if id == 0 || id > p.next {
		return // never issued by this pool
	}
	p.freeList = append(p.freeList, id)
}

// Allocator issues entity ids. It is the one process-wide shared resource
// of the engine and is safe for use from any goroutine.
type Allocator struct {
	mu       sync.Mutex
	strategy Strategy
	reuse    bool
	global   pool
	perType  map[uint64]*pool
	serial   uint64
}

func NewAllocator(strategy Strategy, reuse bool) *Allocator {
	return &Allocator{
		strategy: strategy,
		reuse:    reuse,
		perType:  make(map[uint64]*pool),
	}
}

func (a *Allocator) poolFor(typ uint64) *pool {
	if a.strategy == Global {
		return &a.global
	}
	p := a.perType[typ]
	if p == nil {
		p = &pool{}
		a.perType[typ] = p
	}
	return p
}

// Allocate returns a fresh id for an entity of the given type together with
// a creation serial that is unique for the lifetime of the allocator, even
// when the id itself is a reused one.
func (a *Allocator) Allocate(typ uint64) (id uint64, serial uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serial++
	return a.poolFor(typ).allocate(a.reuse), a.serial
}

// Release hands an id back. Callers release an id exactly once, after the
// entity holding it has been removed.
func (a *Allocator) Release(typ, id uint64) {
	if !a.reuse {
		return
	}
	a.mu.Lock()
	a.poolFor(typ).release(id)
	a.mu.Unlock()
}

// Free returns the number of ids waiting for reuse.
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.global.freeList)
	for _, p := range a.perType {
		n += len(p.freeList)
	}
	return n
}
