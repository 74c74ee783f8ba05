package engine

import "github.com/l1jgo/entitysync/internal/entity"

// ShardOf assigns an entity to a shard. An entity stays on its shard for
// its whole lifetime.
func ShardOf(id entity.EntityID, shardCount int) int {
	return int(id.ID % uint64(shardCount))
}

// ViewerShardOf assigns a viewer to the worker that keeps its sync state.
func ViewerShardOf(viewerID uint64, shardCount int) int {
	return int(viewerID % uint64(shardCount))
}
