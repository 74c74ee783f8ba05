package spatial

import (
	"math"
	"sort"
	"testing"
)

func newTestGrid(t *testing.T, match DimensionMatcher) *Grid[int] {
	t.Helper()
	g, err := NewGrid[int](Config{
		MaxX:     1000,
		MaxY:     1000,
		OffsetX:  1000,
		OffsetY:  1000,
		CellSize: 100,
		Match:    match,
	})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func sorted(ks []int) []int {
	sort.Ints(ks)
	return ks
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewGridRejectsBadConfig(t *testing.T) {
	tests := []Config{
		{MaxX: 10, MaxY: 10, CellSize: 0},
		{MaxX: 10, MaxY: 10, CellSize: -1},
		{MaxX: 0, MaxY: 10, CellSize: 1},
		{MaxX: 10, MaxY: -20, OffsetY: 5, CellSize: 1},
	}
	for i, cfg := range tests {
		if _, err := NewGrid[int](cfg); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, cfg)
		}
	}
}

func TestGridDims(t *testing.T) {
	g := newTestGrid(t, nil)
	cols, rows := g.Dims()
	if cols != 20 || rows != 20 {
		t.Fatalf("Dims() = %d,%d want 20,20", cols, rows)
	}
}

func TestQueryExactDistance(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(0, 0, 0), 0)
	g.Insert(2, V(10, 0, 0), 0)
	g.Insert(3, V(10.0001, 0, 0), 0)
	g.Insert(4, V(0, 0, 10), 0) // height counts toward distance

	got := sorted(g.Query(V(0, 0, 0), 10, 0))
	if want := []int{1, 2, 4}; !equalInts(got, want) {
		t.Fatalf("Query = %v, want %v", got, want)
	}
}

func TestQueryAcrossCells(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(95, 95, 0), 0)
	g.Insert(2, V(105, 105, 0), 0)
	g.Insert(3, V(-105, 95, 0), 0)

	got := sorted(g.Query(V(100, 100, 0), 10, 0))
	if want := []int{1, 2}; !equalInts(got, want) {
		t.Fatalf("Query = %v, want %v", got, want)
	}
}

func TestQueryFiltersDimension(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(0, 0, 0), 0)
	g.Insert(2, V(1, 0, 0), 5)

	if got := g.Query(V(0, 0, 0), 10, 5); !equalInts(got, []int{2}) {
		t.Fatalf("dimension 5 query = %v", got)
	}
	g.SetDimension(1, 5)
	if got := sorted(g.Query(V(0, 0, 0), 10, 5)); !equalInts(got, []int{1, 2}) {
		t.Fatalf("after SetDimension query = %v", got)
	}
}

func TestGlobalDimensionMatches(t *testing.T) {
	g := newTestGrid(t, NewDimensionMatcher([]int32{-1}))
	g.Insert(1, V(0, 0, 0), -1)
	g.Insert(2, V(0, 0, 0), 3)

	if got := sorted(g.Query(V(0, 0, 0), 1, 7)); !equalInts(got, []int{1}) {
		t.Fatalf("viewer in dim 7 sees %v, want [1]", got)
	}
	if got := sorted(g.Query(V(0, 0, 0), 1, -1)); !equalInts(got, []int{1, 2}) {
		t.Fatalf("viewer in global dim sees %v, want [1 2]", got)
	}
}

func TestMoveRebuckets(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(0, 0, 0), 0)
	if !g.Move(1, V(500, 500, 0)) {
		t.Fatalf("Move returned false for tracked key")
	}
	if got := g.Query(V(0, 0, 0), 50, 0); len(got) != 0 {
		t.Fatalf("old location still returns %v", got)
	}
	if got := g.Query(V(500, 500, 0), 1, 0); !equalInts(got, []int{1}) {
		t.Fatalf("new location returns %v", got)
	}
	if g.Move(99, V(0, 0, 0)) {
		t.Fatalf("Move of unknown key returned true")
	}
}

func TestOutOfBoundsIsClampedNotDropped(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(5000, 5000, 0), 0)
	g.Insert(2, V(-9000, -9000, 0), 0)

	if got := g.Query(V(5001, 5000, 0), 5, 0); !equalInts(got, []int{1}) {
		t.Fatalf("far positive entity lost: %v", got)
	}
	if got := g.Query(V(-9000, -8999, 0), 5, 0); !equalInts(got, []int{2}) {
		t.Fatalf("far negative entity lost: %v", got)
	}
	// Clamped into the edge cell but still filtered by real distance.
	if got := g.Query(V(990, 990, 0), 50, 0); len(got) != 0 {
		t.Fatalf("edge query returned distant entity: %v", got)
	}
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
}

func TestRemove(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(0, 0, 0), 0)
	g.Remove(1)
	g.Remove(1)
	if got := g.Query(V(0, 0, 0), 10, 0); len(got) != 0 {
		t.Fatalf("removed key returned: %v", got)
	}
	if g.Len() != 0 {
		t.Fatalf("Len() = %d after remove", g.Len())
	}
}

func TestReinsertUpdatesInPlace(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(0, 0, 0), 0)
	g.Insert(1, V(300, 0, 0), 2)
	if got := g.Query(V(300, 0, 0), 1, 2); len(got) != 1 {
		t.Fatalf("reinserted key not found at new position: %v", got)
	}
	if got := g.Query(V(0, 0, 0), 1, 0); len(got) != 0 {
		t.Fatalf("reinserted key still at old position: %v", got)
	}
	if g.Matches(0, 2) || !g.Matches(2, 2) {
		t.Fatalf("Matches disagrees with exact dimensions")
	}
	if g.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.Len())
	}
}

func TestNegativeRadiusFindsNothing(t *testing.T) {
	g := newTestGrid(t, nil)
	g.Insert(1, V(0, 0, 0), 0)
	if got := g.Query(V(0, 0, 0), -1, 0); len(got) != 0 {
		t.Fatalf("negative radius returned %v", got)
	}
}

func TestVec3Finite(t *testing.T) {
	if !V(1, 2, 3).Finite() {
		t.Fatalf("finite vector reported non-finite")
	}
	if V(math.Inf(1), 0, 0).Finite() {
		t.Fatalf("infinite vector reported finite")
	}
	if V(0, math.NaN(), 0).Finite() {
		t.Fatalf("NaN vector reported finite")
	}
}
