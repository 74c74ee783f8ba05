package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Sync      SyncConfig      `toml:"sync"`
	Grid      GridConfig      `toml:"grid"`
	IDs       IDConfig        `toml:"ids"`
	Network   NetworkConfig   `toml:"network"`
	Scripting ScriptingConfig `toml:"scripting"`
	Data      DataConfig      `toml:"data"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	ID        int    `toml:"id"`
	StartTime int64  // set at boot, not from config
}

const (
	TickFixed = "fixed" // tick every interval regardless of changes
	TickDirty = "dirty" // tick as soon as something relevant changed
)

type SyncConfig struct {
	ShardCount           int             `toml:"shard_count"`
	TickInterval         time.Duration   `toml:"tick_interval"`
	ShardTickIntervals   []time.Duration `toml:"shard_tick_intervals"` // optional per-shard override, by index
	TickMode             string          `toml:"tick_mode"`
	GlobalDimensions     []int32         `toml:"global_dimensions"`       // dimensions visible from every other dimension
	MaxEntitiesPerViewer int             `toml:"max_entities_per_viewer"` // 0 = unlimited
	MaxDataBytes         int             `toml:"max_data_bytes"`          // encoded data per entity, 0 = unlimited
	DeliveryBackoff      time.Duration   `toml:"delivery_backoff"`
	DeliveryMaxBackoff   time.Duration   `toml:"delivery_max_backoff"`
}

// MaxDataCeiling keeps one entity's data well inside a single sync frame.
const MaxDataCeiling = 512 << 10

// IntervalFor returns the tick interval of the given shard.
func (c SyncConfig) IntervalFor(shard int) time.Duration {
	if shard >= 0 && shard < len(c.ShardTickIntervals) && c.ShardTickIntervals[shard] > 0 {
		return c.ShardTickIntervals[shard]
	}
	return c.TickInterval
}

// GridConfig bounds the spatial grid: X spans [-offset_x, max_x), Y spans
// [-offset_y, max_y).
type GridConfig struct {
	MaxX     float64 `toml:"max_x"`
	MaxY     float64 `toml:"max_y"`
	OffsetX  float64 `toml:"offset_x"`
	OffsetY  float64 `toml:"offset_y"`
	CellSize float64 `toml:"cell_size"`
}

type IDConfig struct {
	Strategy string `toml:"strategy"` // "global" or "per_type"
	Reuse    bool   `toml:"reuse"`
}

type NetworkConfig struct {
	BindAddress       string        `toml:"bind_address"` // empty disables TCP
	WSAddress         string        `toml:"ws_address"`   // empty disables WebSocket
	WSPath            string        `toml:"ws_path"`
	HostTickRate      time.Duration `toml:"host_tick_rate"`
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	PacketsPerSecond  int           `toml:"packets_per_second"` // 0 = unlimited
	WriteTimeout      time.Duration `toml:"write_timeout"`
	Charset           string        `toml:"charset"` // client string encoding, WHATWG label
}

type ScriptingConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type DataConfig struct {
	SpawnList string `toml:"spawn_list"` // empty disables seeding
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"

	StatsInterval time.Duration `toml:"stats_interval"` // 0 disables periodic stats
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	s := c.Sync
	if s.ShardCount <= 0 {
		return fmt.Errorf("sync.shard_count must be positive, got %d", s.ShardCount)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("sync.tick_interval must be positive, got %s", s.TickInterval)
	}
	for i, d := range s.ShardTickIntervals {
		if d < 0 {
			return fmt.Errorf("sync.shard_tick_intervals[%d] is negative", i)
		}
	}
	if s.TickMode != TickFixed && s.TickMode != TickDirty {
		return fmt.Errorf("sync.tick_mode must be %q or %q, got %q", TickFixed, TickDirty, s.TickMode)
	}
	if s.MaxEntitiesPerViewer < 0 {
		return fmt.Errorf("sync.max_entities_per_viewer must not be negative")
	}
	if s.MaxDataBytes < 0 || s.MaxDataBytes > MaxDataCeiling {
		return fmt.Errorf("sync.max_data_bytes must be between 0 and %d, got %d", MaxDataCeiling, s.MaxDataBytes)
	}
	if s.DeliveryBackoff <= 0 || s.DeliveryMaxBackoff < s.DeliveryBackoff {
		return fmt.Errorf("sync.delivery_backoff must be positive and not above delivery_max_backoff")
	}

	g := c.Grid
	if g.CellSize <= 0 {
		return fmt.Errorf("grid.cell_size must be positive, got %v", g.CellSize)
	}
	if g.MaxX+g.OffsetX <= 0 || g.MaxY+g.OffsetY <= 0 {
		return fmt.Errorf("grid extent must be positive")
	}

	if c.IDs.Strategy != "global" && c.IDs.Strategy != "per_type" {
		return fmt.Errorf("ids.strategy must be \"global\" or \"per_type\", got %q", c.IDs.Strategy)
	}

	n := c.Network
	if n.InQueueSize <= 0 || n.OutQueueSize <= 0 {
		return fmt.Errorf("network queue sizes must be positive")
	}
	if n.HostTickRate <= 0 {
		return fmt.Errorf("network.host_tick_rate must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "entitysync",
			ID:   1,
		},
		Sync: SyncConfig{
			ShardCount:           1,
			TickInterval:         100 * time.Millisecond,
			TickMode:             TickFixed,
			MaxEntitiesPerViewer: 300,
			MaxDataBytes:         64 << 10,
			DeliveryBackoff:      5 * time.Millisecond,
			DeliveryMaxBackoff:   250 * time.Millisecond,
		},
		Grid: GridConfig{
			MaxX:     50_000,
			MaxY:     50_000,
			OffsetX:  10_000,
			OffsetY:  10_000,
			CellSize: 100,
		},
		IDs: IDConfig{
			Strategy: "global",
			Reuse:    true,
		},
		Network: NetworkConfig{
			BindAddress:       "0.0.0.0:7788",
			WSAddress:         "0.0.0.0:7789",
			WSPath:            "/sync",
			HostTickRate:      50 * time.Millisecond,
			InQueueSize:       128,
			OutQueueSize:      256,
			MaxPacketsPerTick: 32,
			PacketsPerSecond:  120,
			WriteTimeout:      10 * time.Second,
			Charset:           "utf-8",
		},
		Scripting: ScriptingConfig{
			Enabled: true,
			Dir:     "scripts",
		},
		Data: DataConfig{
			SpawnList: "data/yaml/entity_spawn.yaml",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "console",
			StatsInterval: 30 * time.Second,
		},
	}
}
