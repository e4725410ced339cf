package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"github.com/park285/Cheese-ChessSession/internal/config"
	svcchess "github.com/park285/Cheese-ChessSession/internal/service/chess"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Service   *svcchess.Service
	Repo      svcchess.Repository
	Snapshots *svcchess.SnapshotStore

	redis *redis.Client
	db    *sql.DB
}

// New wires the session service from configuration. Redis and Postgres are
// optional: without REDIS_URL snapshots are disabled, without DATABASE_URL
// finished games stay in memory.
func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engineCfg := EngineConfig(cfg)
	// 설정 오류는 첫 init 전에 드러나야 한다
	first, err := corechess.NewSearcher(engineCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	_ = first.Close()
	factory := func() (corechess.Searcher, error) {
		return corechess.NewSearcher(engineCfg, logger)
	}

	deps := &Deps{}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := svcchess.NewRedisClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		deps.redis = rdb
		deps.Snapshots = svcchess.NewSnapshotStore(rdb, cfg.SnapshotTTL())
	} else {
		logger.Info("snapshots_disabled", zap.String("reason", "REDIS_URL not set"))
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := svcchess.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			_ = deps.Close()
			return nil, err
		}
		deps.db = db
		deps.Repo = svcchess.NewRepository(db)
	} else {
		deps.Repo = svcchess.NewMemoryRepository()
		logger.Info("game_records_in_memory", zap.String("reason", "DATABASE_URL not set"))
	}

	svcCfg := svcchess.Config{
		Preset: cfg.SearchPreset,
		Limits: SearchLimits(cfg),
	}
	service, err := svcchess.NewService(factory, deps.Repo, deps.Snapshots, svcCfg, logger.Named("service"))
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Service = service
	return deps, nil
}

// EngineConfig maps the ENGINE_* keys onto the searcher configuration.
func EngineConfig(cfg *config.AppConfig) corechess.EngineConfig {
	return corechess.EngineConfig{
		Backend:    cfg.EngineBackend,
		BinaryPath: cfg.StockfishPath,
		Threads:    cfg.EngineThreads,
		HashMB:     cfg.EngineHashMB,
		PoolSize:   cfg.EnginePoolSize,
		NodeBudget: cfg.SearchNodes,
	}
}

// SearchLimits returns the limits overriding the preset, or the zero value
// when the preset applies unchanged. SEARCH_DEPTH only binds the fixed
// preset; node and time caps bind any preset.
func SearchLimits(cfg *config.AppConfig) corechess.SearchLimits {
	limits := corechess.SearchLimits{Nodes: cfg.SearchNodes, MoveTime: cfg.SearchMoveTime()}
	preset, err := corechess.GetPreset(cfg.SearchPreset)
	if err != nil {
		return corechess.SearchLimits{}
	}
	switch {
	case preset.Name == "fixed":
		limits.Depth = cfg.SearchDepth
	case limits != (corechess.SearchLimits{}):
		limits.Depth = preset.Limits.Depth
	}
	return limits
}

// Close shuts the live engine session and releases the stores.
func (d *Deps) Close() error {
	var errs []error
	if d.Service != nil {
		if err := d.Service.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown engine: %w", err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}
