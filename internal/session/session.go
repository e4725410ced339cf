package session

import (
	"fmt"
	"strings"

	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"go.uber.org/zap"
)

// Options tunes a Session.
type Options struct {
	// Variant names the rule set handed to the adapter. Empty means standard chess.
	Variant string
}

// Session owns one live position and the snapshots that preceded it.
// It is not safe for concurrent use; callers serialize access.
type Session struct {
	searcher corechess.Searcher
	logger   *zap.Logger
	variant  string

	initialized bool
	shutdown    bool

	pos     *corechess.Position
	start   string
	history []string
	moves   []string
	san     []string

	search orchestrator
}

func New(searcher corechess.Searcher, opts Options, logger *zap.Logger) (*Session, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	variant := strings.TrimSpace(opts.Variant)
	if variant == "" {
		variant = corechess.VariantStandard
	}
	return &Session{searcher: searcher, logger: logger, variant: variant}, nil
}

// Initialize resets to the variant's starting position and clears history.
func (s *Session) Initialize() error {
	if s.shutdown {
		return ErrUninitializedSession
	}
	if err := s.beginMutation(); err != nil {
		return err
	}
	pos, err := corechess.ParsePosition(corechess.StartEncoding, s.variant)
	if err != nil {
		return err
	}
	s.reset(pos)
	s.initialized = true
	s.logger.Info("session_initialized", zap.String("variant", s.variant))
	return nil
}

// SetPosition replaces the position from an encoding. sideHint 0 keeps the
// encoded side to move; 'w'/'b' (any case) override it.
func (s *Session) SetPosition(encoding string, sideHint byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.beginMutation(); err != nil {
		return err
	}
	enc := strings.TrimSpace(encoding)
	if sideHint != 0 {
		side, ok := corechess.ParseColor(string(sideHint))
		if !ok {
			return fmt.Errorf("%w: side hint %q", ErrInvalidEncoding, sideHint)
		}
		rewritten, err := corechess.WithSideToMove(enc, side)
		if err != nil {
			return err
		}
		enc = rewritten
	}
	pos, err := corechess.ParsePosition(enc, s.variant)
	if err != nil {
		return err
	}
	s.reset(pos)
	s.logger.Debug("session_position_set", zap.String("encoding", pos.Encode()))
	return nil
}

// CurrentEncoding serializes the live position.
func (s *Session) CurrentEncoding() (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.pos.Encode(), nil
}

// SideToMove reports whose turn it is.
func (s *Session) SideToMove() (corechess.Color, error) {
	if err := s.ready(); err != nil {
		return corechess.White, err
	}
	return s.pos.Turn(), nil
}

// ApplyMove validates and plays moveText. On failure nothing changes.
func (s *Session) ApplyMove(moveText string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if s.search.state == Searching {
		return "", ErrSearchInProgress
	}
	next, san, err := s.pos.Apply(moveText)
	if err != nil {
		return "", err
	}
	s.search.discard()
	s.history = append(s.history, s.pos.Encode())
	s.moves = append(s.moves, strings.TrimSpace(moveText))
	s.san = append(s.san, san)
	s.pos = next
	s.logger.Debug("session_move_applied",
		zap.String("move", moveText),
		zap.String("san", san),
		zap.Int("ply", len(s.history)),
	)
	return next.Encode(), nil
}

// LegalMoves lists legal moves from square, or every legal move when
// square is empty.
func (s *Session) LegalMoves(square string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(square) == "" {
		return s.pos.LegalMoves(), nil
	}
	return s.pos.LegalMovesFrom(square)
}

// PieceAt reports the piece on square; ok is false when it is empty.
func (s *Session) PieceAt(square string) (corechess.Piece, bool, error) {
	if err := s.ready(); err != nil {
		return corechess.Piece{}, false, err
	}
	return s.pos.PieceAt(square)
}

// History returns the encodings of every position that preceded an
// applied move, oldest first.
func (s *Session) History() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.history...), nil
}

// Moves returns the applied moves in coordinate notation.
func (s *Session) Moves() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.moves...), nil
}

// SANMoves returns the applied moves in standard algebraic notation.
func (s *Session) SANMoves() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.san...), nil
}

// StartEncoding is the position the current history grows from.
func (s *Session) StartEncoding() (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.start, nil
}

// Shutdown joins any running search and releases the searcher. Every later
// call fails with ErrUninitializedSession.
func (s *Session) Shutdown() error {
	if s.shutdown {
		return nil
	}
	s.search.abort()
	s.shutdown = true
	s.initialized = false
	s.pos = nil
	s.history = nil
	s.moves = nil
	s.san = nil
	s.logger.Info("session_shutdown")
	if err := s.searcher.Close(); err != nil {
		return fmt.Errorf("close searcher: %w", err)
	}
	return nil
}

// Ready reports ErrUninitializedSession before Initialize and after Shutdown.
func (s *Session) Ready() error { return s.ready() }

func (s *Session) ready() error {
	if !s.initialized || s.shutdown || s.pos == nil {
		return ErrUninitializedSession
	}
	return nil
}

func (s *Session) beginMutation() error {
	if s.search.state == Searching {
		return ErrSearchInProgress
	}
	return nil
}

func (s *Session) reset(pos *corechess.Position) {
	s.search.discard()
	s.pos = pos
	s.start = pos.Encode()
	s.history = nil
	s.moves = nil
	s.san = nil
}
