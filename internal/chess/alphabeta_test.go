package chess

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAlphaBetaFindsMateInOne(t *testing.T) {
	searcher := NewAlphaBeta(0, nil)
	pos := mustParse(t, "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1")
	res, err := searcher.Search(context.Background(), pos, DepthLimits(DefaultSearchDepth))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.BestMove != "a1a8" {
		t.Fatalf("expected a1a8, got %q (depth=%d score=%d)", res.BestMove, res.Depth, res.ScoreCP)
	}
	if res.ScoreCP < mateThreshold {
		t.Fatalf("expected mate score, got %d", res.ScoreCP)
	}
}

func TestAlphaBetaWinsHangingQueen(t *testing.T) {
	searcher := NewAlphaBeta(4000, nil)
	pos := mustParse(t, "4k3/8/8/3q4/8/8/3R4/4K3 w - - 0 1")
	res, err := searcher.Search(context.Background(), pos, DepthLimits(DefaultSearchDepth))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.BestMove != "d2d5" {
		t.Fatalf("expected d2d5, got %q", res.BestMove)
	}
}

func TestAlphaBetaReturnsLegalMoveFromStart(t *testing.T) {
	searcher := NewAlphaBeta(0, nil)
	pos := StartPosition()
	res, err := searcher.Search(context.Background(), pos, DepthLimits(DefaultSearchDepth))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !ValidMoveText(res.BestMove) {
		t.Fatalf("malformed move %q", res.BestMove)
	}
	if _, _, err := pos.Apply(res.BestMove); err != nil {
		t.Fatalf("best move %q is not legal: %v", res.BestMove, err)
	}
	if res.Depth < 1 {
		t.Fatalf("expected at least one completed iteration, got %d", res.Depth)
	}
	if res.Nodes <= 0 {
		t.Fatalf("expected nodes to be counted")
	}
}

func TestAlphaBetaNoLegalMoves(t *testing.T) {
	searcher := NewAlphaBeta(0, nil)
	for _, fen := range []string{foolsMateFEN, stalemateFEN} {
		res, err := searcher.Search(context.Background(), mustParse(t, fen), DepthLimits(4))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if res.BestMove != "" {
			t.Fatalf("%s: expected no move, got %q", fen, res.BestMove)
		}
	}
}

func TestAlphaBetaRespectsNodeCap(t *testing.T) {
	searcher := NewAlphaBeta(0, nil)
	res, err := searcher.Search(context.Background(), StartPosition(), SearchLimits{Depth: 20, Nodes: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Nodes > 51 {
		t.Fatalf("node cap exceeded: %d", res.Nodes)
	}
	if res.BestMove == "" {
		t.Fatalf("expected a fallback move")
	}
}

func TestAlphaBetaCancelledContext(t *testing.T) {
	searcher := NewAlphaBeta(1_000_000, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	res, err := searcher.Search(ctx, StartPosition(), DepthLimits(DefaultSearchDepth))
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancelled search took too long")
	}
	if res.BestMove == "" {
		t.Fatalf("expected fallback move even when cancelled")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAlphaBetaRejectsInvalidLimits(t *testing.T) {
	searcher := NewAlphaBeta(0, nil)
	if _, err := searcher.Search(context.Background(), StartPosition(), SearchLimits{}); !errors.Is(err, ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits, got %v", err)
	}
}
