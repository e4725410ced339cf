package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"github.com/park285/Cheese-ChessSession/internal/domain"
	"github.com/park285/Cheese-ChessSession/internal/session"
	"go.uber.org/zap"
)

var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSnapshotsDisabled = errors.New("snapshot store not configured")
)

const maxRecentGames = 50

// SearcherFactory builds the searcher for a fresh engine session.
type SearcherFactory func() (corechess.Searcher, error)

type Config struct {
	Variant string
	// Preset names the search preset used by GetAIMove.
	Preset string
	// Limits overrides the preset limits when any bound is set.
	Limits corechess.SearchLimits
}

// Service is the host-facing facade over one engine session. All calls are
// serialized; GetAIMove holds the lock for the whole search.
type Service struct {
	mu sync.Mutex

	newSearcher SearcherFactory
	repo        Repository
	snapshots   *SnapshotStore
	variant     string
	preset      string
	limits      corechess.SearchLimits
	logger      *zap.Logger

	sess          *session.Session
	gameUUID      string
	startedAt     time.Time
	recorded      bool
	engineLatency time.Duration
}

func NewService(newSearcher SearcherFactory, repo Repository, snapshots *SnapshotStore, cfg Config, logger *zap.Logger) (*Service, error) {
	if newSearcher == nil {
		return nil, fmt.Errorf("searcher factory is required")
	}
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	preset, err := corechess.GetPreset(cfg.Preset)
	if err != nil {
		return nil, fmt.Errorf("search preset validation failed: %w", err)
	}
	limits := preset.SearchLimits()
	if cfg.Limits != (corechess.SearchLimits{}) {
		limits = preset.Apply(cfg.Limits)
		if err := limits.Validate(); err != nil {
			return nil, err
		}
	}
	return &Service{
		newSearcher: newSearcher,
		repo:        repo,
		snapshots:   snapshots,
		variant:     cfg.Variant,
		preset:      preset.Name,
		limits:      limits,
		logger:      logger,
	}, nil
}

// InitializeEngine resets to the starting position, starting a fresh
// engine session when none is live.
func (s *Service) InitializeEngine(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess != nil {
		if err := s.sess.Initialize(); err == nil {
			s.beginGame()
			return nil
		} else if !errors.Is(err, session.ErrUninitializedSession) {
			return err
		}
	}

	searcher, err := s.newSearcher()
	if err != nil {
		return fmt.Errorf("create searcher: %w", err)
	}
	sess, err := session.New(searcher, session.Options{Variant: s.variant}, s.logger.Named("session"))
	if err != nil {
		_ = searcher.Close()
		return err
	}
	if err := sess.Initialize(); err != nil {
		_ = sess.Shutdown()
		return err
	}
	s.sess = sess
	s.beginGame()
	s.logger.Info("engine_initialized", zap.String("preset", s.preset), zap.Stringer("limits", s.limits))
	return nil
}

// SetPosition loads an encoding and starts a new game lineage from it.
func (s *Service) SetPosition(ctx context.Context, encoding string, sideHint byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return err
	}
	if err := sess.SetPosition(encoding, sideHint); err != nil {
		return err
	}
	s.beginGame()
	s.recordIfFinished(ctx)
	return nil
}

func (s *Service) ApplyMove(ctx context.Context, move string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return "", err
	}
	enc, err := sess.ApplyMove(move)
	if err != nil {
		return "", err
	}
	s.recordIfFinished(ctx)
	return enc, nil
}

// GetAIMove searches the current position and returns the best move without
// applying it. A side hint that disagrees with the side to move re-sets the
// position with that side to move, which clears the history.
func (s *Service) GetAIMove(ctx context.Context, sideHint byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return "", err
	}
	if sideHint != 0 {
		side, ok := corechess.ParseColor(string(sideHint))
		if !ok {
			return "", fmt.Errorf("%w: side hint %q", session.ErrInvalidEncoding, sideHint)
		}
		current, err := sess.SideToMove()
		if err != nil {
			return "", err
		}
		if side != current {
			enc, err := sess.CurrentEncoding()
			if err != nil {
				return "", err
			}
			if err := sess.SetPosition(enc, sideHint); err != nil {
				return "", err
			}
			// the re-set position starts a new lineage
			s.beginGame()
		}
	}

	started := time.Now()
	if err := sess.StartSearch(s.limits); err != nil {
		return "", err
	}
	if err := sess.StopSearch(ctx); err != nil {
		// the orchestrator is Stopped without a result; clear it
		_, _ = sess.BestMove()
		return "", err
	}
	best, err := sess.BestMove()
	if err != nil {
		return "", err
	}
	took := time.Since(started)
	s.engineLatency += took
	s.logger.Info("ai_move",
		zap.String("best", best),
		zap.String("preset", s.preset),
		zap.Duration("took", took),
	)
	return best, nil
}

func (s *Service) LegalMoves(square string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return nil, err
	}
	return sess.LegalMoves(square)
}

func (s *Service) CurrentEncoding() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return "", err
	}
	return sess.CurrentEncoding()
}

// GameOutcome returns the numeric outcome code.
func (s *Service) GameOutcome() (int, error) {
	res, err := s.Outcome()
	if err != nil {
		return session.Ongoing.Code(), err
	}
	return res.Outcome.Code(), nil
}

func (s *Service) Outcome() (session.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return session.Result{}, err
	}
	return sess.Outcome()
}

// PieceAt reports kind and color names for the piece on square. ok is
// false for an empty square.
func (s *Service) PieceAt(square string) (kind, color string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return "", "", false, err
	}
	piece, ok, err := sess.PieceAt(square)
	if err != nil || !ok {
		return "", "", false, err
	}
	return string(piece.Kind), piece.Color.String(), true, nil
}

// Shutdown releases the engine. Later calls fail until InitializeEngine.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return nil
	}
	err := s.sess.Shutdown()
	s.logger.Info("engine_shutdown")
	return err
}

// SaveSnapshot stores the session so RestoreSnapshot can resume it.
func (s *Service) SaveSnapshot(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots == nil {
		return "", ErrSnapshotsDisabled
	}
	sess, err := s.live()
	if err != nil {
		return "", err
	}
	start, err := sess.StartEncoding()
	if err != nil {
		return "", err
	}
	moves, err := sess.Moves()
	if err != nil {
		return "", err
	}
	enc, err := sess.CurrentEncoding()
	if err != nil {
		return "", err
	}
	snap := &domain.Snapshot{
		ID:            uuid.NewString(),
		SessionUUID:   s.gameUUID,
		StartEncoding: start,
		Moves:         moves,
		Encoding:      enc,
		SavedAt:       time.Now(),
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return "", err
	}
	s.logger.Info("snapshot_saved", zap.String("id", snap.ID), zap.Int("ply", len(moves)))
	return snap.ID, nil
}

// RestoreSnapshot replays a stored snapshot. The live session is untouched
// unless the whole replay succeeds.
func (s *Service) RestoreSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots == nil {
		return ErrSnapshotsDisabled
	}
	sess, err := s.live()
	if err != nil {
		return err
	}
	snap, err := s.snapshots.Load(ctx, id)
	if err != nil {
		return err
	}
	if snap == nil {
		return ErrSnapshotNotFound
	}

	if err := verifyReplay(snap, s.variant); err != nil {
		return err
	}
	if err := sess.SetPosition(snap.StartEncoding, 0); err != nil {
		return err
	}
	for _, mv := range snap.Moves {
		if _, err := sess.ApplyMove(mv); err != nil {
			return fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	s.beginGame()
	if snap.SessionUUID != "" {
		s.gameUUID = snap.SessionUUID
	}
	s.logger.Info("snapshot_restored", zap.String("id", snap.ID), zap.Int("ply", len(snap.Moves)))
	return nil
}

func verifyReplay(snap *domain.Snapshot, variant string) error {
	pos, err := corechess.ParsePosition(snap.StartEncoding, variant)
	if err != nil {
		return err
	}
	for _, mv := range snap.Moves {
		next, _, err := pos.Apply(mv)
		if err != nil {
			return fmt.Errorf("replay %s: %w", mv, err)
		}
		pos = next
	}
	return nil
}

// RecentGames lists finished games, newest first.
func (s *Service) RecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 || limit > maxRecentGames {
		limit = defaultRecentLimit
	}
	return s.repo.GetRecentGames(ctx, limit)
}

// PGN renders the current game.
func (s *Service) PGN() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live()
	if err != nil {
		return "", err
	}
	in, _, err := s.pgnInput(sess)
	if err != nil {
		return "", err
	}
	return buildPGN(in), nil
}

func (s *Service) pgnInput(sess *session.Session) (pgnInput, session.Result, error) {
	res, err := sess.Outcome()
	if err != nil {
		return pgnInput{}, session.Result{}, err
	}
	start, err := sess.StartEncoding()
	if err != nil {
		return pgnInput{}, session.Result{}, err
	}
	san, err := sess.SANMoves()
	if err != nil {
		return pgnInput{}, session.Result{}, err
	}
	return pgnInput{
		Date:          s.startedAt,
		StartEncoding: start,
		MovesSAN:      san,
		Result:        resultFromOutcome(res.Outcome),
		Method:        res.Method,
	}, res, nil
}

// live returns the session only while it is initialized and not shut down.
func (s *Service) live() (*session.Session, error) {
	if s.sess == nil {
		return nil, session.ErrUninitializedSession
	}
	if err := s.sess.Ready(); err != nil {
		return nil, err
	}
	return s.sess, nil
}

func (s *Service) beginGame() {
	s.gameUUID = uuid.NewString()
	s.startedAt = time.Now()
	s.recorded = false
	s.engineLatency = 0
}

// recordIfFinished persists a game the first time it reaches a terminal
// outcome. Failures are logged; the move itself already succeeded.
func (s *Service) recordIfFinished(ctx context.Context) {
	if s.recorded || s.sess == nil {
		return
	}
	in, res, err := s.pgnInput(s.sess)
	if err != nil || !res.Outcome.Terminal() {
		return
	}
	s.recorded = true

	moves, _ := s.sess.Moves()
	final, _ := s.sess.CurrentEncoding()
	now := time.Now()
	record := &domain.GameRecord{
		SessionUUID:   s.gameUUID,
		StartEncoding: in.StartEncoding,
		FinalEncoding: final,
		SearchPreset:  s.preset,
		Result:        in.Result,
		ResultMethod:  res.Method,
		MovesUCI:      moves,
		MovesSAN:      in.MovesSAN,
		PGN:           buildPGN(in),
		StartedAt:     s.startedAt,
		EndedAt:       now,
		Duration:      now.Sub(s.startedAt),
		EngineLatency: s.engineLatency,
	}
	id, err := s.repo.InsertGame(ctx, record)
	switch {
	case errors.Is(err, ErrDuplicateGame):
		s.logger.Debug("game_already_recorded", zap.String("session_uuid", s.gameUUID))
	case err != nil:
		s.logger.Warn("game_record_failed", zap.String("session_uuid", s.gameUUID), zap.Error(err))
	default:
		s.logger.Info("game_recorded",
			zap.Int64("id", id),
			zap.String("result", strings.ToUpper(record.Result)),
			zap.String("method", record.ResultMethod),
			zap.Int("ply", len(moves)),
		)
	}
}
