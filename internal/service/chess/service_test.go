package chess

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"github.com/park285/Cheese-ChessSession/internal/session"
	"github.com/redis/go-redis/v9"
)

const foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"

type factoryCounter struct {
	calls int
}

func (f *factoryCounter) factory() SearcherFactory {
	return func() (corechess.Searcher, error) {
		f.calls++
		return corechess.NewAlphaBeta(2000, nil), nil
	}
}

func newTestService(t *testing.T, snapshots *SnapshotStore) (*Service, Repository, *factoryCounter) {
	t.Helper()
	counter := &factoryCounter{}
	repo := NewMemoryRepository()
	svc, err := NewService(counter.factory(), repo, snapshots, Config{Limits: corechess.DepthLimits(3)}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.InitializeEngine(context.Background()); err != nil {
		t.Fatalf("InitializeEngine: %v", err)
	}
	return svc, repo, counter
}

func newTestSnapshotStore(t *testing.T) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSnapshotStore(rdb, time.Hour), mr
}

func play(t *testing.T, svc *Service, moves ...string) {
	t.Helper()
	for _, mv := range moves {
		if _, err := svc.ApplyMove(context.Background(), mv); err != nil {
			t.Fatalf("ApplyMove(%s): %v", mv, err)
		}
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(nil, nil, nil, Config{}, nil); err == nil {
		t.Fatalf("expected error without factory")
	}
	counter := &factoryCounter{}
	if _, err := NewService(counter.factory(), nil, nil, Config{Preset: "nope"}, nil); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
	if _, err := NewService(counter.factory(), nil, nil, Config{Limits: corechess.SearchLimits{Depth: -1}}, nil); !errors.Is(err, corechess.ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits, got %v", err)
	}
}

type limitsRecorder struct {
	corechess.Searcher
	seen []corechess.SearchLimits
}

func (r *limitsRecorder) Search(ctx context.Context, pos *corechess.Position, limits corechess.SearchLimits) (corechess.SearchResult, error) {
	r.seen = append(r.seen, limits)
	return r.Searcher.Search(ctx, pos, limits)
}

func TestServicePresetResourcesReachSearcher(t *testing.T) {
	analysis, _ := corechess.GetPreset("analysis")
	cases := []struct {
		name string
		cfg  Config
		want corechess.SearchLimits
	}{
		{"override keeps preset resources", Config{Preset: "analysis", Limits: corechess.DepthLimits(2)},
			corechess.SearchLimits{Depth: 2, Threads: analysis.Threads, HashMB: analysis.HashMB}},
		{"override resources", Config{Preset: "analysis", Limits: corechess.SearchLimits{Depth: 2, HashMB: 8}},
			corechess.SearchLimits{Depth: 2, Threads: analysis.Threads, HashMB: 8}},
	}
	for _, tc := range cases {
		rec := &limitsRecorder{Searcher: corechess.NewAlphaBeta(500, nil)}
		factory := func() (corechess.Searcher, error) { return rec, nil }
		svc, err := NewService(factory, nil, nil, tc.cfg, nil)
		if err != nil {
			t.Fatalf("%s: NewService: %v", tc.name, err)
		}
		ctx := context.Background()
		if err := svc.InitializeEngine(ctx); err != nil {
			t.Fatalf("%s: InitializeEngine: %v", tc.name, err)
		}
		if _, err := svc.GetAIMove(ctx, 0); err != nil {
			t.Fatalf("%s: GetAIMove: %v", tc.name, err)
		}
		if len(rec.seen) != 1 || rec.seen[0] != tc.want {
			t.Fatalf("%s: searcher saw %+v, want %+v", tc.name, rec.seen, tc.want)
		}
	}
}

func TestServiceBeforeInitialize(t *testing.T) {
	counter := &factoryCounter{}
	svc, err := NewService(counter.factory(), nil, nil, Config{}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.CurrentEncoding(); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("CurrentEncoding: %v", err)
	}
	if _, err := svc.ApplyMove(ctx, "e2e4"); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("ApplyMove: %v", err)
	}
	if _, err := svc.GetAIMove(ctx, 0); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("GetAIMove: %v", err)
	}
	if _, err := svc.GameOutcome(); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("GameOutcome: %v", err)
	}
	if _, _, _, err := svc.PieceAt("e1"); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("PieceAt: %v", err)
	}
	if err := svc.Shutdown(); err != nil {
		t.Fatalf("Shutdown without engine: %v", err)
	}
}

func TestServicePieceAt(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	kind, color, ok, err := svc.PieceAt("e1")
	if err != nil || !ok || kind != "KING" || color != "WHITE" {
		t.Fatalf("e1 = %s %s %v %v", kind, color, ok, err)
	}
	kind, color, ok, err = svc.PieceAt("d8")
	if err != nil || !ok || kind != "QUEEN" || color != "BLACK" {
		t.Fatalf("d8 = %s %s %v %v", kind, color, ok, err)
	}
	if _, _, ok, err := svc.PieceAt("e4"); ok || err != nil {
		t.Fatalf("e4 should be empty: ok=%v err=%v", ok, err)
	}
	if _, _, _, err := svc.PieceAt("z9"); !errors.Is(err, session.ErrInvalidSquare) {
		t.Fatalf("expected ErrInvalidSquare, got %v", err)
	}
}

func TestServiceFoolsMateIsRecorded(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()
	play(t, svc, "f2f3", "e7e5", "g2g4", "d8h4")

	code, err := svc.GameOutcome()
	if err != nil || code != 1 {
		t.Fatalf("GameOutcome = %d, %v", code, err)
	}
	games, err := repo.GetRecentGames(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("expected one record, got %d", len(games))
	}
	g := games[0]
	if g.Result != "black" || g.ResultMethod != session.MethodCheckmate || len(g.MovesUCI) != 4 {
		t.Fatalf("unexpected record %+v", g)
	}
	if !strings.Contains(g.PGN, "[Result \"0-1\"]") || !strings.Contains(g.PGN, "2. g4 Qh4") {
		t.Fatalf("unexpected pgn:\n%s", g.PGN)
	}

	// a finished game is recorded once
	if _, err := svc.GameOutcome(); err != nil {
		t.Fatalf("GameOutcome: %v", err)
	}
	if _, err := svc.ApplyMove(ctx, "a2a3"); !errors.Is(err, session.ErrIllegalMove) {
		t.Fatalf("move after mate: %v", err)
	}
	games, _ = svc.RecentGames(ctx, 0)
	if len(games) != 1 {
		t.Fatalf("expected single record, got %d", len(games))
	}
}

func TestServiceSetPositionTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	if err := svc.SetPosition(context.Background(), foolsMateFEN, 0); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	res, err := svc.Outcome()
	if err != nil || res.Outcome != session.BlackWins {
		t.Fatalf("Outcome = %+v, %v", res, err)
	}
	games, _ := repo.GetRecentGames(context.Background(), 5)
	if len(games) != 1 || !strings.Contains(games[0].PGN, "[SetUp \"1\"]") {
		t.Fatalf("expected setup record, got %+v", games)
	}
}

func TestServiceGetAIMoveDoesNotMutate(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	before, _ := svc.CurrentEncoding()
	best, err := svc.GetAIMove(ctx, 0)
	if err != nil {
		t.Fatalf("GetAIMove: %v", err)
	}
	after, _ := svc.CurrentEncoding()
	if before != after {
		t.Fatalf("GetAIMove changed position")
	}
	legal, _ := svc.LegalMoves("")
	if !contains(legal, best) {
		t.Fatalf("best move %q not legal in %v", best, legal)
	}
	if _, err := svc.ApplyMove(ctx, best); err != nil {
		t.Fatalf("apply best move: %v", err)
	}
}

func TestServiceGetAIMoveSideHint(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	best, err := svc.GetAIMove(ctx, 'b')
	if err != nil {
		t.Fatalf("GetAIMove: %v", err)
	}
	enc, _ := svc.CurrentEncoding()
	if strings.Fields(enc)[1] != "b" {
		t.Fatalf("side hint not applied: %q", enc)
	}
	legal, _ := svc.LegalMoves("")
	if !contains(legal, best) {
		t.Fatalf("best move %q not a black move", best)
	}
	if _, err := svc.GetAIMove(ctx, '?'); !errors.Is(err, session.ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for bad hint, got %v", err)
	}
}

func TestServiceSideHintStartsNewGame(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	play(t, svc, "e2e4", "e7e5")
	before := svc.gameUUID
	flipped, _ := svc.CurrentEncoding()

	if _, err := svc.GetAIMove(ctx, 'b'); err != nil {
		t.Fatalf("GetAIMove: %v", err)
	}
	if svc.gameUUID == before {
		t.Fatalf("side hint re-set kept session uuid %q", before)
	}
	start, err := svc.sess.StartEncoding()
	if err != nil {
		t.Fatalf("StartEncoding: %v", err)
	}
	if strings.Fields(start)[0] != strings.Fields(flipped)[0] || strings.Fields(start)[1] != "b" {
		t.Fatalf("new game should start from the flipped position, got %q", start)
	}
	pgn, err := svc.PGN()
	if err != nil || strings.Contains(pgn, "1. e4 e5") {
		t.Fatalf("old moves leaked into the new game: %q %v", pgn, err)
	}

	same := svc.gameUUID
	if _, err := svc.GetAIMove(ctx, 'b'); err != nil {
		t.Fatalf("GetAIMove: %v", err)
	}
	if svc.gameUUID != same {
		t.Fatalf("matching hint should not start a new game")
	}
}

func TestServiceGetAIMoveOnMate(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if err := svc.SetPosition(context.Background(), foolsMateFEN, 0); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	best, err := svc.GetAIMove(context.Background(), 0)
	if err != nil || best != session.NoMove {
		t.Fatalf("expected no move, got %q %v", best, err)
	}
}

func TestServiceShutdownAndReinitialize(t *testing.T) {
	svc, _, counter := newTestService(t, nil)
	ctx := context.Background()
	play(t, svc, "e2e4")
	if err := svc.InitializeEngine(ctx); err != nil {
		t.Fatalf("re-InitializeEngine: %v", err)
	}
	if counter.calls != 1 {
		t.Fatalf("live session should be reused, factory calls=%d", counter.calls)
	}
	if enc, _ := svc.CurrentEncoding(); enc != corechess.StartPosition().Encode() {
		t.Fatalf("not reset: %q", enc)
	}

	if err := svc.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := svc.CurrentEncoding(); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("expected ErrUninitializedSession, got %v", err)
	}
	if err := svc.InitializeEngine(ctx); err != nil {
		t.Fatalf("InitializeEngine after shutdown: %v", err)
	}
	if counter.calls != 2 {
		t.Fatalf("expected fresh searcher, factory calls=%d", counter.calls)
	}
}

func TestServiceAfterShutdownFailsClosed(t *testing.T) {
	store, mr := newTestSnapshotStore(t)
	svc, _, _ := newTestService(t, store)
	ctx := context.Background()
	play(t, svc, "e2e4")
	id, err := svc.SaveSnapshot(ctx)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	keys := len(mr.Keys())

	if err := svc.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := svc.SaveSnapshot(ctx); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("SaveSnapshot after shutdown: expected ErrUninitializedSession, got %v", err)
	}
	if got := len(mr.Keys()); got != keys {
		t.Fatalf("snapshot written after shutdown: %d keys, want %d", got, keys)
	}
	if err := svc.RestoreSnapshot(ctx, id); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("RestoreSnapshot after shutdown: expected ErrUninitializedSession, got %v", err)
	}
	if _, err := svc.PGN(); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("PGN after shutdown: expected ErrUninitializedSession, got %v", err)
	}
	if _, err := svc.GetAIMove(ctx, 'w'); !errors.Is(err, session.ErrUninitializedSession) {
		t.Fatalf("GetAIMove after shutdown: expected ErrUninitializedSession, got %v", err)
	}
}

func TestServiceSnapshotRoundTrip(t *testing.T) {
	store, mr := newTestSnapshotStore(t)
	svc, _, _ := newTestService(t, store)
	ctx := context.Background()

	play(t, svc, "e2e4", "e7e5", "g1f3")
	saved, _ := svc.CurrentEncoding()
	id, err := svc.SaveSnapshot(ctx)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if ttl := mr.TTL("cs:snapshot:" + id); ttl != time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	play(t, svc, "b8c6", "f1b5")
	if err := svc.RestoreSnapshot(ctx, id); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if got, _ := svc.CurrentEncoding(); got != saved {
		t.Fatalf("restored %q, want %q", got, saved)
	}
	pgn, err := svc.PGN()
	if err != nil || !strings.Contains(pgn, "1. e4 e5 2. Nf3") {
		t.Fatalf("unexpected pgn %q %v", pgn, err)
	}

	if err := svc.RestoreSnapshot(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if err := svc.RestoreSnapshot(ctx, id); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected expired snapshot, got %v", err)
	}
}

func TestServiceRestoreRejectsCorruptSnapshot(t *testing.T) {
	store, mr := newTestSnapshotStore(t)
	svc, _, _ := newTestService(t, store)
	ctx := context.Background()
	play(t, svc, "d2d4")
	before, _ := svc.CurrentEncoding()

	if err := mr.Set("cs:snapshot:bad", `{"id":"bad","start_encoding":"`+corechess.StartEncoding+`","moves":["e2e4","e2e4"]}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.RestoreSnapshot(ctx, "bad"); !errors.Is(err, session.ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if after, _ := svc.CurrentEncoding(); after != before {
		t.Fatalf("failed restore mutated the session")
	}
}

func TestServiceSnapshotsDisabled(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if _, err := svc.SaveSnapshot(context.Background()); !errors.Is(err, ErrSnapshotsDisabled) {
		t.Fatalf("expected ErrSnapshotsDisabled, got %v", err)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
