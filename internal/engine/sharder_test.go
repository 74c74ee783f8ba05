package engine

import (
	"testing"

	"github.com/l1jgo/entitysync/internal/entity"
)

func TestShardOfIsModulo(t *testing.T) {
	tests := []struct {
		id     uint64
		typ    uint64
		shards int
		want   int
	}{
		{1, 0, 1, 0},
		{7, 3, 4, 3},
		{8, 9, 4, 0},
		{1<<63 + 5, 1, 10, int((1<<63 + 5) % 10)},
	}
	for _, tt := range tests {
		got := ShardOf(entity.EntityID{ID: tt.id, Type: tt.typ}, tt.shards)
		if got != tt.want {
			t.Fatalf("ShardOf(%d, %d) = %d, want %d", tt.id, tt.shards, got, tt.want)
		}
	}
}

func TestShardOfIgnoresType(t *testing.T) {
	a := ShardOf(entity.EntityID{ID: 11, Type: 1}, 4)
	b := ShardOf(entity.EntityID{ID: 11, Type: 2}, 4)
	if a != b {
		t.Fatalf("same id, different type landed on %d and %d", a, b)
	}
}

func TestViewerShardOfStable(t *testing.T) {
	for id := uint64(0); id < 100; id++ {
		if ViewerShardOf(id, 3) != ViewerShardOf(id, 3) {
			t.Fatalf("viewer %d not deterministic", id)
		}
		if s := ViewerShardOf(id, 3); s < 0 || s >= 3 {
			t.Fatalf("viewer %d shard %d out of range", id, s)
		}
	}
}
