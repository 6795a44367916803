package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/drifter/server/internal/core/system"
	"github.com/drifter/server/internal/world"
)

// PositionSource reports the tracked player's horizontal world position.
type PositionSource interface {
	PlayerX() (x float64, ok bool)
}

// DeltaSink receives the streaming window changes of a tick.
type DeltaSink interface {
	Publish(res world.UpdateResult, loaded []int)
}

// ChunkStreamSystem recentres the chunk window on the player every tick.
// Phase 2 (Update).
type ChunkStreamSystem struct {
	manager *world.Manager
	source  PositionSource
	sink    DeltaSink
	log     *zap.Logger

	lastX      float64
	lastCenter int
	started    bool
}

// NewChunkStreamSystem tracks spawnX until the source reports a position.
// source and sink may be nil.
func NewChunkStreamSystem(m *world.Manager, source PositionSource, sink DeltaSink, spawnX float64, log *zap.Logger) *ChunkStreamSystem {
	return &ChunkStreamSystem{
		manager: m,
		source:  source,
		sink:    sink,
		log:     log,
		lastX:   spawnX,
	}
}

func (s *ChunkStreamSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ChunkStreamSystem) Update(_ time.Duration) {
	if s.source != nil {
		if x, ok := s.source.PlayerX(); ok {
			s.lastX = x
		}
	}
	res := s.manager.UpdateChunks(s.lastX)
	moved := !s.started || res.Center != s.lastCenter
	s.started = true
	s.lastCenter = res.Center

	if res.Pinned > 0 && len(res.Evicted) > 0 {
		s.log.Debug("unsaved chunks held past the window", zap.Int("pinned", res.Pinned))
	}
	if moved {
		s.log.Debug("stream window moved",
			zap.Int("center", res.Center),
			zap.Int("scheduled", len(res.Scheduled)),
			zap.Int("evicted", len(res.Evicted)))
	}
	if s.sink != nil && (moved || res.Changed()) {
		s.sink.Publish(res, s.manager.LoadedIndices())
	}
}

// Center returns the chunk the window was last centred on.
func (s *ChunkStreamSystem) Center() int { return s.lastCenter }
