package system

import (
	"time"

	coresys "github.com/l1jgo/entitysync/internal/core/system"
	"github.com/l1jgo/entitysync/internal/engine"
	"github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"go.uber.org/zap"
)

// StatsSource is implemented by *engine.Engine.
type StatsSource interface {
	Stats() engine.Stats
}

// PacketCounter is implemented by *packet.Registry.
type PacketCounter interface {
	Counts() packet.DispatchCounts
}

// StatsSystem logs engine, session and packet counters every interval.
// Phase 3 (PostUpdate).
type StatsSystem struct {
	src         StatsSource
	store       *net.SessionStore
	packets     PacketCounter
	interval    time.Duration
	elapsed     time.Duration
	last        engine.Stats
	lastPackets packet.DispatchCounts
	log         *zap.Logger
}

func NewStatsSystem(src StatsSource, store *net.SessionStore, packets PacketCounter, interval time.Duration, log *zap.Logger) *StatsSystem {
	return &StatsSystem{src: src, store: store, packets: packets, interval: interval, log: log}
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *StatsSystem) Update(dt time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0

	st := s.src.Stats()
	pk := s.packets.Counts()
	workers := make([]string, len(st.Workers))
	for i, w := range st.Workers {
		workers[i] = w.String()
	}
	// Counters are logged as deltas since the previous report.
	s.log.Info("sync stats",
		zap.Stringer("state", st.State),
		zap.Int("entities", st.Entities),
		zap.Int("viewers", st.Viewers),
		zap.Int("sessions", s.store.Count()),
		zap.Int("free_ids", st.FreeIDs),
		zap.Uint64("ticks", st.Ticks-s.last.Ticks),
		zap.Uint64("batches", st.Batches-s.last.Batches),
		zap.Uint64("events", st.Events-s.last.Events),
		zap.Uint64("retries", st.Retries-s.last.Retries),
		zap.Uint64("packets", pk.Handled-s.lastPackets.Handled),
		zap.Uint64("packets_refused", pk.Refused-s.lastPackets.Refused),
		zap.Uint64("handler_panics", pk.Panics-s.lastPackets.Panics),
		zap.Strings("workers", workers),
	)
	s.last = st
	s.lastPackets = pk
}
