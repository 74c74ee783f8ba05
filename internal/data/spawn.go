package data

import (
	"fmt"
	"math"
	"os"

	"github.com/l1jgo/entitysync/internal/entity"
	"github.com/l1jgo/entitysync/internal/spatial"
	"gopkg.in/yaml.v3"
)

// SpawnEntry is one static entity created at startup.
type SpawnEntry struct {
	Type      uint64         `yaml:"type"`
	X         float64        `yaml:"x"`
	Y         float64        `yaml:"y"`
	Z         float64        `yaml:"z"`
	Dimension int32          `yaml:"dimension"`
	Range     int64          `yaml:"range"`
	Data      map[string]any `yaml:"data"`
	Note      string         `yaml:"note"`
}

func (e *SpawnEntry) Position() spatial.Vec3 {
	return spatial.V(e.X, e.Y, e.Z)
}

// Values converts the entry's data bag to entity values.
func (e *SpawnEntry) Values() (map[string]entity.Value, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	out := make(map[string]entity.Value, len(e.Data))
	for k, raw := range e.Data {
		v, err := entity.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("data %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// SpawnList holds the seed entities in file order.
type SpawnList struct {
	entries []SpawnEntry
}

// LoadSpawnList loads entity_spawn.yaml. Entries are checked up front so a
// bad file fails at startup rather than half way through seeding.
func LoadSpawnList(path string) (*SpawnList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn list: %w", err)
	}
	var entries []SpawnEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse spawn list: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		if e.Range < 0 || e.Range > math.MaxUint32 {
			return nil, fmt.Errorf("spawn list entry %d: range %d out of bounds", i, e.Range)
		}
		if !e.Position().Finite() {
			return nil, fmt.Errorf("spawn list entry %d: position not finite", i)
		}
		if _, err := e.Values(); err != nil {
			return nil, fmt.Errorf("spawn list entry %d: %w", i, err)
		}
	}
	return &SpawnList{entries: entries}, nil
}

// Entries returns the loaded entries. Callers must not modify them.
func (l *SpawnList) Entries() []SpawnEntry {
	return l.entries
}

// Count returns the total number of entries loaded.
func (l *SpawnList) Count() int {
	return len(l.entries)
}
