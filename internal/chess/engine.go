package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-ChessSession/internal/chess/uci"
	"go.uber.org/zap"
)

const (
	BackendBuiltin = "builtin"
	BackendUCI     = "uci"
)

// EngineConfig selects and sizes the search backend.
type EngineConfig struct {
	Backend    string
	BinaryPath string
	Threads    int
	HashMB     int
	PoolSize   int
	NodeBudget int64
}

// NewSearcher builds the configured backend.
func NewSearcher(cfg EngineConfig, logger *zap.Logger) (Searcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendBuiltin:
		return NewAlphaBeta(cfg.NodeBudget, logger.Named("alphabeta")), nil
	case BackendUCI:
		return NewUCISearcher(cfg, logger.Named("uci"))
	default:
		return nil, fmt.Errorf("unknown engine backend: %s", cfg.Backend)
	}
}

// UCISearcher delegates searches to an external UCI engine process. Each
// search runs on an engine configured with the Threads and HashMB of its
// limits, falling back to the engine config.
type UCISearcher struct {
	pool     *uci.Pool
	defaults uci.Options
	logger   *zap.Logger
}

func NewUCISearcher(cfg EngineConfig, logger *zap.Logger) (*UCISearcher, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("engine binary path is required for uci backend")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		MaxEngines: cfg.PoolSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	hash := cfg.HashMB
	if hash <= 0 {
		hash = 16
	}
	return &UCISearcher{
		pool:     pool,
		defaults: uci.Options{Threads: cfg.Threads, HashMB: hash, MultiPV: 1},
		logger:   logger,
	}, nil
}

// options returns the engine configuration a search with l runs on.
func (u *UCISearcher) options(l SearchLimits) uci.Options {
	opt := u.defaults
	if l.Threads > 0 {
		opt.Threads = l.Threads
	}
	if l.HashMB > 0 {
		opt.HashMB = l.HashMB
	}
	return opt
}

func (u *UCISearcher) Search(ctx context.Context, pos *Position, limits SearchLimits) (SearchResult, error) {
	goTokens, err := BuildGoCommand(limits)
	if err != nil {
		return SearchResult{}, err
	}
	if !pos.HasLegalMoves() {
		return SearchResult{}, nil
	}

	session, err := u.pool.Acquire(ctx, u.options(limits))
	if err != nil {
		return SearchResult{}, err
	}
	var releaseErr error
	defer func() {
		u.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return SearchResult{}, err
	}

	start := time.Now()
	resp, err := session.Search(ctx, uci.SearchRequest{
		FEN:         pos.Encode(),
		Limits:      uciLimits(limits),
		GoOverrides: goTokens,
	})
	if errors.Is(err, uci.ErrNoBestMove) {
		return SearchResult{}, nil
	}
	if err != nil {
		releaseErr = err
		return SearchResult{}, err
	}
	u.logger.Debug("uci_search_done",
		zap.String("best", resp.BestMove),
		zap.String("ponder", resp.Ponder),
		zap.Int("depth", resp.Depth),
		zap.Duration("took", time.Since(start)),
	)

	result := SearchResult{
		BestMove: resp.BestMove,
		Ponder:   resp.Ponder,
		Depth:    resp.Depth,
	}
	if len(resp.Candidates) > 0 {
		result.ScoreCP = resp.Candidates[0].EvalCP
		result.Principal = append([]string(nil), resp.Candidates[0].Principal...)
	}
	return result, nil
}

func (u *UCISearcher) Close() error {
	if u.pool == nil {
		return nil
	}
	return u.pool.Close()
}

func uciLimits(l SearchLimits) uci.Limits {
	return uci.Limits{
		Depth:          l.Depth,
		MoveTimeMillis: int(l.MoveTime.Milliseconds()),
		NodeCap:        l.Nodes,
	}
}

func (a *AlphaBeta) Close() error { return nil }
