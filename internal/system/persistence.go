package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/drifter/server/internal/core/system"
	"github.com/drifter/server/internal/world"
)

// ChunkPersistSystem periodically saves the diffs of edited chunks.
// Phase 5 (Persist).
type ChunkPersistSystem struct {
	manager   *world.Manager
	sink      world.DiffSink
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks
	timeout   time.Duration
}

func NewChunkPersistSystem(m *world.Manager, sink world.DiffSink, log *zap.Logger, intervalTicks int) *ChunkPersistSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &ChunkPersistSystem{
		manager:  m,
		sink:     sink,
		log:      log,
		interval: intervalTicks,
		timeout:  5 * time.Second,
	}
}

func (s *ChunkPersistSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *ChunkPersistSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.save()
}

// Flush saves immediately. Called on graceful shutdown.
func (s *ChunkPersistSystem) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.manager.SaveModified(ctx, s.sink)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("chunk diffs flushed", zap.Int("chunks", n))
	}
	return nil
}

func (s *ChunkPersistSystem) save() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.manager.SaveModified(ctx, s.sink)
	if err != nil {
		s.log.Error("chunk diff auto-save failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Debug("chunk diffs saved", zap.Int("chunks", n))
	}
}
