package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/entitysync/internal/config"
	"github.com/l1jgo/entitysync/internal/core/event"
	coresys "github.com/l1jgo/entitysync/internal/core/system"
	"github.com/l1jgo/entitysync/internal/data"
	"github.com/l1jgo/entitysync/internal/engine"
	"github.com/l1jgo/entitysync/internal/handler"
	gonet "github.com/l1jgo/entitysync/internal/net"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"github.com/l1jgo/entitysync/internal/net/ws"
	"github.com/l1jgo/entitysync/internal/scripting"
	"github.com/l1jgo/entitysync/internal/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	shutdownTimeout = 5 * time.Second
	inputPollRate   = 5 * time.Millisecond // PhaseInput only, between full ticks
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             entitysync  v0.1.0            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      entity proximity sync server         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len([]rune(title)) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len([]rune(label)) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("ENTITYSYNC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// One id per process run.
	log = log.With(zap.String("instance", uuid.NewString()))

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Sync engine. The gateway is its outbound network layer.
	printSection("Sync engine")
	gateway := gonet.NewGateway(log)
	eng, err := engine.New(cfg, gateway, log)
	if err != nil {
		return fmt.Errorf("sync engine: %w", err)
	}
	printStat("Shards", cfg.Sync.ShardCount)
	printOK(fmt.Sprintf("Tick mode %s (interval %s)", cfg.Sync.TickMode, cfg.Sync.TickInterval))

	// 4. Seed entities
	printSection("Data")
	if cfg.Data.SpawnList != "" {
		spawns, err := data.LoadSpawnList(cfg.Data.SpawnList)
		if err != nil {
			return fmt.Errorf("load spawn list: %w", err)
		}
		printStat("Seed entities", seedEntities(eng, spawns, log))
	}

	// 5. Lua scripting
	var luaEngine *scripting.Engine
	if cfg.Scripting.Enabled {
		luaEngine, err = scripting.NewEngine(cfg.Scripting.Dir, eng, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer luaEngine.Close()
		printOK("Lua scripts loaded")
	}
	fmt.Println()

	// 6. Create packet handler registry and register handlers
	charset, err := packet.LookupCharset(cfg.Network.Charset)
	if err != nil {
		return fmt.Errorf("network charset: %w", err)
	}
	pktReg := packet.NewRegistry(log)
	pktReg.SetCharset(charset)
	bus := event.NewBus()
	deps := &handler.Deps{
		Config:  cfg,
		Log:     log,
		Viewers: eng,
		Gateway: gateway,
		Bus:     bus,
		Charset: charset,
	}
	handler.RegisterAll(pktReg, deps)

	// 7. Create network server and transports
	netServer := gonet.NewServer(gonet.SessionOptions{
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		PacketsPerSecond: cfg.Network.PacketsPerSecond,
		WriteTimeout:     cfg.Network.WriteTimeout,
	}, log)
	if cfg.Network.BindAddress != "" {
		if err := netServer.Listen(cfg.Network.BindAddress); err != nil {
			return fmt.Errorf("net server: %w", err)
		}
		go netServer.AcceptLoop()
	}
	var wsListener *ws.Listener
	if cfg.Network.WSAddress != "" {
		wsListener = ws.NewListener(cfg.Network.WSAddress, cfg.Network.WSPath, ws.NewHandler(netServer, log), log)
		go func() {
			if err := wsListener.Serve(); err != nil {
				log.Error("websocket listener stopped", zap.Error(err))
			}
		}()
	}

	// 8. Create systems and register with runner
	store := gonet.NewSessionStore()
	runner := coresys.NewRunner()
	runner.ReportSlowTicks(cfg.Network.HostTickRate, log)
	runner.Register(system.NewInputSystem(netServer, pktReg, store, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(system.NewEventSystem(bus))
	if luaEngine != nil {
		runner.Register(system.NewScriptSystem(luaEngine, bus))
	}
	runner.Register(system.NewStatsSystem(eng, store, pktReg, cfg.Logging.StatsInterval, log))
	runner.Register(system.NewOutputSystem(store))
	runner.Register(system.NewCleanupSystem(store, deps))

	// 9. Start sync workers, then the host loop
	if err := eng.Start(context.Background()); err != nil {
		return fmt.Errorf("start sync engine: %w", err)
	}
	if luaEngine != nil {
		luaEngine.OnStart()
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.HostTickRate)
	defer ticker.Stop()
	inputTicker := time.NewTicker(inputPollRate)
	defer inputTicker.Stop()

	// Display server ready section
	printSection("Ready")
	if addr := netServer.Addr(); addr != nil {
		printReady(fmt.Sprintf("TCP listening on %s", addr.String()))
	}
	if wsListener != nil {
		printReady(fmt.Sprintf("WebSocket listening on %s%s", cfg.Network.WSAddress, cfg.Network.WSPath))
	}
	printReady(fmt.Sprintf("Host loop started (tick: %s)", cfg.Network.HostTickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.HostTickRate)
		case <-inputTicker.C:
			runner.TickPhase(coresys.PhaseInput, inputPollRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			if luaEngine != nil {
				luaEngine.OnStop()
			}
			err := shutdown(eng, netServer, wsListener, store)
			if err != nil {
				log.Error("shutdown incomplete", zap.Error(err))
			} else {
				log.Info("server stopped")
			}
			return err
		}
	}
}

// shutdown stops accepting clients, drains the sync workers and closes the
// remaining sessions. Every step runs even if an earlier one failed.
func shutdown(eng *engine.Engine, netServer *gonet.Server, wsListener *ws.Listener, store *gonet.SessionStore) error {
	var err error
	err = multierr.Append(err, netServer.Shutdown())
	if wsListener != nil {
		err = multierr.Append(err, wsListener.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = multierr.Append(err, eng.Stop(ctx))

	store.ForEach(func(sess *gonet.Session) {
		sess.Close()
	})
	return err
}

// seedEntities creates the spawn list entities. Entries the engine rejects
// are logged and skipped.
func seedEntities(eng *engine.Engine, spawns *data.SpawnList, log *zap.Logger) int {
	count := 0
	for i, e := range spawns.Entries() {
		values, err := e.Values()
		if err == nil {
			_, err = eng.Create(e.Type, e.Position(), e.Dimension, e.Range, values)
		}
		if err != nil {
			log.Warn("seed entity skipped", zap.Int("entry", i), zap.String("note", e.Note), zap.Error(err))
			continue
		}
		count++
	}
	return count
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
