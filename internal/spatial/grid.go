package spatial

import (
	"fmt"
	"math"
)

// Config describes the world extent covered by a Grid. The world spans
// [-OffsetX, MaxX) on X and [-OffsetY, MaxY) on Y.
type Config struct {
	MaxX     float64
	MaxY     float64
	OffsetX  float64
	OffsetY  float64
	CellSize float64
	Match    DimensionMatcher // nil means exact match only
}

type entry struct {
	pos  Vec3
	dim  int32
	cell int
}

// Grid is a bounded uniform grid over the XY plane. Positions outside the
// configured extent are clamped to the nearest edge cell, so an entity is
// never lost; exact 3D distance is checked on query.
// Not safe for concurrent use; the owning shard serializes access.
type Grid[K comparable] struct {
	cfg     Config
	cols    int
	rows    int
	cells   []map[K]struct{} // allocated lazily per cell
	entries map[K]*entry
}

func NewGrid[K comparable](cfg Config) (*Grid[K], error) {
	if cfg.CellSize <= 0 {
		return nil, fmt.Errorf("grid cell size must be positive, got %v", cfg.CellSize)
	}
	width := cfg.MaxX + cfg.OffsetX
	height := cfg.MaxY + cfg.OffsetY
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid extent must be positive, got %vx%v", width, height)
	}
	if cfg.Match == nil {
		cfg.Match = ExactDimension
	}
	cols := int(math.Ceil(width / cfg.CellSize))
	rows := int(math.Ceil(height / cfg.CellSize))
	return &Grid[K]{
		cfg:     cfg,
		cols:    cols,
		rows:    rows,
		cells:   make([]map[K]struct{}, cols*rows),
		entries: make(map[K]*entry, 256),
	}, nil
}

func clampCell(v float64, n int) int {
	// Compare in float space first so huge coordinates cannot overflow int.
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v >= float64(n) {
		return n - 1
	}
	return int(v)
}

func (g *Grid[K]) col(x float64) int {
	return clampCell(math.Floor((x+g.cfg.OffsetX)/g.cfg.CellSize), g.cols)
}

func (g *Grid[K]) row(y float64) int {
	return clampCell(math.Floor((y+g.cfg.OffsetY)/g.cfg.CellSize), g.rows)
}

func (g *Grid[K]) cellOf(p Vec3) int {
	return g.row(p.Y)*g.cols + g.col(p.X)
}

func (g *Grid[K]) addToCell(k K, cell int) {
	c := g.cells[cell]
	if c == nil {
		c = make(map[K]struct{})
		g.cells[cell] = c
	}
	c[k] = struct{}{}
}

func (g *Grid[K]) removeFromCell(k K, cell int) {
	c := g.cells[cell]
	if c == nil {
		return
	}
	delete(c, k)
	if len(c) == 0 {
		g.cells[cell] = nil
	}
}

// Insert places k at pos. Inserting an existing key moves it.
func (g *Grid[K]) Insert(k K, pos Vec3, dim int32) {
	if e, ok := g.entries[k]; ok {
		e.dim = dim
		g.Move(k, pos)
		return
	}
	e := &entry{pos: pos, dim: dim, cell: g.cellOf(pos)}
	g.entries[k] = e
	g.addToCell(k, e.cell)
}

// Remove takes k out of the grid. Unknown keys are ignored.
func (g *Grid[K]) Remove(k K) {
	e, ok := g.entries[k]
	if !ok {
		return
	}
	g.removeFromCell(k, e.cell)
	delete(g.entries, k)
}

// Move updates k's position, rebucketing only when the cell changes.
// Returns false for unknown keys.
func (g *Grid[K]) Move(k K, pos Vec3) bool {
	e, ok := g.entries[k]
	if !ok {
		return false
	}
	e.pos = pos
	cell := g.cellOf(pos)
	if cell == e.cell {
		return true
	}
	g.removeFromCell(k, e.cell)
	e.cell = cell
	g.addToCell(k, cell)
	return true
}

// SetDimension changes k's visibility channel. Returns false for unknown keys.
func (g *Grid[K]) SetDimension(k K, dim int32) bool {
	e, ok := g.entries[k]
	if !ok {
		return false
	}
	e.dim = dim
	return true
}

// Matches reports whether a viewer in dimension viewer sees entities in dim.
func (g *Grid[K]) Matches(viewer, dim int32) bool {
	return g.cfg.Match(viewer, dim)
}

// Visit calls fn for every key within radius of center whose dimension
// matches dim, together with its squared distance to center.
func (g *Grid[K]) Visit(center Vec3, radius float64, dim int32, fn func(k K, distSq float64)) {
	if radius < 0 || len(g.entries) == 0 {
		return
	}
	r2 := radius * radius
	minC, maxC := g.col(center.X-radius), g.col(center.X+radius)
	minR, maxR := g.row(center.Y-radius), g.row(center.Y+radius)
	for r := minR; r <= maxR; r++ {
		base := r * g.cols
		for c := minC; c <= maxC; c++ {
			for k := range g.cells[base+c] {
				e := g.entries[k]
				if !g.cfg.Match(dim, e.dim) {
					continue
				}
				d2 := e.pos.DistSq(center)
				if d2 <= r2 {
					fn(k, d2)
				}
			}
		}
	}
}

// Query returns every key within radius of center whose dimension matches.
func (g *Grid[K]) Query(center Vec3, radius float64, dim int32) []K {
	var result []K
	g.Visit(center, radius, dim, func(k K, _ float64) {
		result = append(result, k)
	})
	return result
}

// Len returns the number of tracked keys.
func (g *Grid[K]) Len() int {
	return len(g.entries)
}

// Dims returns the number of columns and rows.
func (g *Grid[K]) Dims() (cols, rows int) {
	return g.cols, g.rows
}
