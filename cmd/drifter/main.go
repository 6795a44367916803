package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drifter/server/internal/config"
	coresys "github.com/drifter/server/internal/core/system"
	"github.com/drifter/server/internal/data"
	"github.com/drifter/server/internal/persist"
	"github.com/drifter/server/internal/scripting"
	"github.com/drifter/server/internal/stream"
	"github.com/drifter/server/internal/system"
	"github.com/drifter/server/internal/world"
	"github.com/drifter/server/internal/worldgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, seed int64) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              Drifter  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       procedural chunk world server       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(seed: %d)\033[0m\n\n", serverName, seed)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
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
	// 1. Load environment and config
	if err := config.LoadEnv(".env"); err != nil {
		return err
	}
	cfgPath := "config/server.toml"
	if p := os.Getenv("DRIFTER_CONFIG"); p != "" {
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

	printBanner(cfg.Server.Name, cfg.World.Seed)

	// 3. Load world tables
	printSection("world data")

	tables, err := data.LoadTables(data.Paths{
		Biomes:     cfg.Data.Biomes,
		Layers:     cfg.Data.Layers,
		Structures: cfg.Data.Structures,
	})
	if err != nil {
		return fmt.Errorf("load world tables: %w", err)
	}
	printStat("biomes", tables.Biomes.Count())
	printStat("strata", tables.Layers.Count())
	printStat("structures", tables.Structures.Count())
	for b := world.Biome(0); int(b) < world.BiomeCount; b++ {
		def := tables.Biomes.Get(b)
		log.Debug("biome", zap.String("name", def.DisplayName), zap.Float64("amplitude", def.Amplitude), zap.Int("flora", len(def.Flora)))
	}

	// 4. Initialize Lua scripting engine
	luaEngine, err := scripting.NewEngine(cfg.Data.ScriptsDir, cfg.World.Seed, cfg.Data.LuaPool, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printStat("world scripts", len(luaEngine.Scripts()))

	var chance worldgen.ChanceFunc
	if luaEngine.HasStructureChance() {
		chance = luaEngine.StructureChance
		printOK("structure_chance hook active")
	}

	// 5. Build the generation pipeline
	pipeline, err := worldgen.NewPipeline(worldgen.Params{
		Seed:           cfg.World.Seed,
		Width:          cfg.World.ChunkWidth,
		Height:         cfg.World.ChunkHeight,
		SurfaceLevel:   cfg.World.SurfaceLevel,
		DirtDepth:      cfg.World.DirtDepth,
		CaveEdgeMargin: cfg.World.CaveEdgeMargin,
		BedrockMargin:  cfg.World.BedrockMargin,
	}, tables, chance)
	if err != nil {
		return fmt.Errorf("world pipeline: %w", err)
	}
	printOK("generation pipeline ready")
	fmt.Println()

	// 6. Diff storage: PostgreSQL when enabled, memory otherwise
	printSection("storage")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var diffs world.DiffStore
	if cfg.Database.Enabled {
		dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			dbCancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(dbCtx, db.Pool)
		dbCancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printStat("schema version", int(version))

		repo := persist.NewDiffRepo(db, cfg.World.Seed)
		stored, err := repo.StoredChunks(ctx)
		if err != nil {
			return fmt.Errorf("list stored chunks: %w", err)
		}
		printStat("chunks with edits", len(stored))
		diffs = repo
	} else {
		diffs = world.NewMemoryDiffStore()
		printOK("in-memory diff store (edits are lost on exit)")
	}
	fmt.Println()

	// 7. Chunk manager and warm-up around spawn
	printSection("chunks")

	layout := world.Layout{
		Width:     cfg.World.ChunkWidth,
		Height:    cfg.World.ChunkHeight,
		BlockSize: cfg.World.BlockSize,
	}
	manager, err := world.NewManager(world.Options{
		Layout:           layout,
		LoadRadius:       cfg.Streaming.LoadRadius,
		HysteresisMargin: cfg.Streaming.HysteresisMargin,
		Workers:          cfg.Streaming.Workers,
		QueueSize:        cfg.Streaming.QueueSize,
	}, pipeline, diffs, log)
	if err != nil {
		return fmt.Errorf("chunk manager: %w", err)
	}
	defer manager.Close()

	spawnChunk := layout.ChunkAtPosition(cfg.World.SpawnX)
	start := time.Now()
	if err := manager.Pregenerate(ctx, spawnChunk-cfg.Streaming.PregenRadius, spawnChunk+cfg.Streaming.PregenRadius); err != nil {
		return fmt.Errorf("pregenerate: %w", err)
	}
	printStat("pregenerated", len(manager.LoadedIndices()))
	printOK(fmt.Sprintf("spawn chunk %d is %s (%s)", spawnChunk,
		tables.Biomes.Get(manager.GetChunkSync(spawnChunk).Biome()).DisplayName,
		time.Since(start).Round(time.Millisecond)))
	fmt.Println()

	// 8. Stream hub
	hub := stream.NewHub(stream.WorldInfo{
		Seed:        cfg.World.Seed,
		ChunkWidth:  layout.Width,
		ChunkHeight: layout.Height,
		BlockSize:   layout.BlockSize,
	}, manager.Stats, stream.Options{
		WriteTimeout: cfg.Network.WriteTimeout,
		SendQueue:    cfg.Network.SendQueue,
	}, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- hub.Serve(ctx, cfg.Network.BindAddress)
	}()

	// 9. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.Register(system.NewChunkStreamSystem(manager, hub, hub, cfg.World.SpawnX, log))
	persistSys := system.NewChunkPersistSystem(manager, diffs, log, cfg.Persist.SaveIntervalTicks)
	runner.Register(persistSys)

	// 10. Start tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", cfg.Network.BindAddress))
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("stream server stopped", zap.Error(err))
			}
			return shutdown(cancel, persistSys, log, err)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			return shutdown(cancel, persistSys, log, nil)
		}
	}
}

// shutdown saves outstanding edits before the deferred closers run.
func shutdown(cancel context.CancelFunc, persistSys *system.ChunkPersistSystem, log *zap.Logger, cause error) error {
	cancel()
	if err := persistSys.Flush(); err != nil {
		log.Error("final chunk save failed", zap.Error(err))
		if cause == nil {
			cause = err
		}
	}
	log.Info("server stopped")
	return cause
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
