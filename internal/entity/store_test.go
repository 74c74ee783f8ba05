package entity

import (
	"errors"
	"testing"

	"github.com/l1jgo/entitysync/internal/spatial"
)

func newStoreWith(t *testing.T, k EntityID, rng uint32) *Store {
	t.Helper()
	s := NewStore(Limits{})
	if err := s.Insert(New(k, 1, spatial.V(0, 0, 0), 0, rng, nil)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return s
}

func TestInsertDuplicateRejected(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	err := s.Insert(New(k, 2, spatial.V(0, 0, 0), 0, 10, nil))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("duplicate insert err = %v, want ErrInvalidArgument", err)
	}
}

func TestExistsAfterRemove(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	if !s.Exists(k) {
		t.Fatalf("Exists false after insert")
	}
	if _, ok := s.Remove(k); !ok {
		t.Fatalf("Remove reported missing")
	}
	if s.Exists(k) {
		t.Fatalf("Exists true after remove")
	}
	if _, ok := s.Remove(k); ok {
		t.Fatalf("second Remove reported success")
	}
}

func TestSameIdDifferentTypeIsDistinct(t *testing.T) {
	s := newStoreWith(t, EntityID{ID: 1, Type: 1}, 10)
	if s.Exists(EntityID{ID: 1, Type: 2}) {
		t.Fatalf("type is not part of the key")
	}
}

func TestPositionRoundTripAndVersions(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	want := spatial.V(1.5, -2.25, 3)
	if err := s.SetPosition(k, want); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	got, err := s.Position(k)
	if err != nil || !got.Equal(want) {
		t.Fatalf("Position = %v, %v; want %v", got, err, want)
	}
	e, _ := s.Get(k)
	if e.Versions().Position != 1 {
		t.Fatalf("position version = %d, want 1", e.Versions().Position)
	}
	_ = s.SetPosition(k, want)
	if e.Versions().Position != 1 {
		t.Fatalf("setting the same position bumped the version")
	}
}

func TestDimensionAndRange(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 42)
	if err := s.SetDimension(k, -7); err != nil {
		t.Fatalf("SetDimension: %v", err)
	}
	if d, _ := s.Dimension(k); d != -7 {
		t.Fatalf("Dimension = %d", d)
	}
	if r, _ := s.Range(k); r != 42 {
		t.Fatalf("Range = %d", r)
	}
	if s.QueryRadius() != 42 {
		t.Fatalf("QueryRadius = %d", s.QueryRadius())
	}
}

func TestMissingEntityReportsNotFound(t *testing.T) {
	s := NewStore(Limits{})
	k := EntityID{ID: 9, Type: 9}
	v := Int(1)
	checks := map[string]error{
		"SetPosition":  s.SetPosition(k, spatial.V(1, 1, 1)),
		"SetDimension": s.SetDimension(k, 1),
		"SetData":      s.SetData(k, "a", &v),
		"ResetData":    s.ResetData(k, "a"),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s err = %v, want ErrNotFound", name, err)
		}
	}
	if _, err := s.Position(k); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Position err = %v", err)
	}
	if _, err := s.Range(k); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Range err = %v", err)
	}
	if _, err := s.Snapshot(k); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Snapshot err = %v", err)
	}
}

func TestDataSetGetReset(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	health := Int(50)
	if err := s.SetData(k, "health", &health); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	got, err := s.Data(k, "health")
	if err != nil || !got.Equal(health) {
		t.Fatalf("Data = %v, %v", got, err)
	}
	if err := s.ResetData(k, "health"); err != nil {
		t.Fatalf("ResetData: %v", err)
	}
	if _, err := s.Data(k, "health"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Data after reset err = %v, want ErrNotFound", err)
	}
	if err := s.ResetData(k, "health"); err != nil {
		t.Fatalf("ResetData of absent key: %v", err)
	}
}

func TestSetDataNilDeletes(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	v := Int(50)
	_ = s.SetData(k, "health", &v)
	if err := s.SetData(k, "health", nil); err != nil {
		t.Fatalf("SetData(nil): %v", err)
	}
	if _, err := s.Data(k, "health"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Data after nil set err = %v", err)
	}
	_ = s.SetData(k, "health", &v)
	nilValue := Nil()
	_ = s.SetData(k, "health", &nilValue)
	if _, err := s.Data(k, "health"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Data after Nil value err = %v", err)
	}
}

func TestDataVersionOnlyOnChange(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	e, _ := s.Get(k)
	v := String("red")
	_ = s.SetData(k, "color", &v)
	_ = s.SetData(k, "color", &v)
	_ = s.ResetData(k, "missing")
	if got := e.Versions().Data; got != 1 {
		t.Fatalf("data version = %d, want 1", got)
	}
}

func TestNewDropsNilData(t *testing.T) {
	e := New(EntityID{ID: 1}, 1, spatial.V(0, 0, 0), 0, 1, map[string]Value{
		"a": Int(1),
		"b": Nil(),
	})
	data := e.DataCopy()
	if _, ok := data["b"]; ok || len(data) != 1 {
		t.Fatalf("DataCopy = %v", data)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	k := EntityID{ID: 1, Type: 1}
	s := newStoreWith(t, k, 10)
	v := Int(1)
	_ = s.SetData(k, "a", &v)
	snap, err := s.Snapshot(k)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	w := Int(2)
	_ = s.SetData(k, "a", &w)
	if !snap.Data["a"].Equal(Int(1)) {
		t.Fatalf("snapshot changed after mutation: %v", snap.Data["a"])
	}
}

func TestQueryRadiusShrinksOnRemove(t *testing.T) {
	s := NewStore(Limits{WideRange: 400})
	insert := func(id uint64, rng uint32) EntityID {
		k := EntityID{ID: id, Type: 1}
		if err := s.Insert(New(k, id, spatial.V(0, 0, 0), 0, rng, nil)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		return k
	}
	insert(1, 10)
	big := insert(2, 300)
	twin := insert(3, 300)
	huge := insert(4, 1<<32-1)

	if s.QueryRadius() != 300 || s.WideLen() != 1 {
		t.Fatalf("radius = %d wide = %d, want 300 and 1", s.QueryRadius(), s.WideLen())
	}
	s.Remove(big)
	if s.QueryRadius() != 300 {
		t.Fatalf("radius = %d with one 300 left", s.QueryRadius())
	}
	s.Remove(twin)
	if s.QueryRadius() != 10 {
		t.Fatalf("radius = %d after removing the widest narrow entity, want 10", s.QueryRadius())
	}
	s.Remove(huge)
	if s.WideLen() != 0 {
		t.Fatalf("wide set kept a removed entity")
	}
	seen := 0
	s.EachWide(func(*Entity) { seen++ })
	if seen != 0 {
		t.Fatalf("EachWide visited %d entities", seen)
	}
}

func TestDataSizeLimit(t *testing.T) {
	s := NewStore(Limits{MaxDataBytes: 256})
	k := EntityID{ID: 1, Type: 1}

	big := map[string]Value{"blob": Blob(make([]byte, 1024))}
	if err := s.Insert(New(k, 1, spatial.V(0, 0, 0), 0, 10, big)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("oversize Insert err = %v, want ErrInvalidArgument", err)
	}
	if s.Exists(k) {
		t.Fatalf("rejected entity was stored")
	}

	if err := s.Insert(New(k, 1, spatial.V(0, 0, 0), 0, 10, nil)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	e, _ := s.Get(k)
	small := String("ok")
	if err := s.SetData(k, "note", &small); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	blob := Blob(make([]byte, 300))
	if err := s.SetData(k, "blob", &blob); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("oversize SetData err = %v, want ErrInvalidArgument", err)
	}
	if _, err := s.Data(k, "blob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected value was stored")
	}
	if e.Versions().Data != 1 {
		t.Fatalf("rejected SetData bumped the version")
	}

	// Replacing a value frees its old size.
	blob = Blob(make([]byte, 200))
	if err := s.SetData(k, "note", &blob); err != nil {
		t.Fatalf("SetData within limit: %v", err)
	}
	if err := s.ResetData(k, "note"); err != nil {
		t.Fatalf("ResetData: %v", err)
	}
	if e.DataSize() != 0 {
		t.Fatalf("DataSize = %d after reset, want 0", e.DataSize())
	}
}
