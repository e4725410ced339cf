package hostapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"github.com/park285/Cheese-ChessSession/internal/hostclient"
	"github.com/park285/Cheese-ChessSession/internal/msgcat"
	svcchess "github.com/park285/Cheese-ChessSession/internal/service/chess"
	"github.com/park285/Cheese-ChessSession/pkg/sessiondto"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"nhooyr.io/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	factory := func() (corechess.Searcher, error) { return corechess.NewAlphaBeta(2000, nil), nil }
	svc, err := svcchess.NewService(factory, nil, svcchess.NewSnapshotStore(rdb, time.Hour), svcchess.Config{Limits: corechess.DepthLimits(3)}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	srv, err := NewServer(svc, msgs, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func newHTTPClient(t *testing.T, srv *Server) *hostclient.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return hostclient.NewClient("http://session.test",
		hostclient.WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
		hostclient.WithTimeout(30*time.Second),
		hostclient.WithRetry(1),
	)
}

func TestHTTPUninitialized(t *testing.T) {
	c := newHTTPClient(t, newTestServer(t))
	_, err := c.Position(context.Background())
	if !hostclient.IsCode(err, sessiondto.CodeUninitializedSession) {
		t.Fatalf("expected uninitialized_session, got %v", err)
	}
	var apiErr *hostclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != fasthttp.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHTTPGameFlow(t *testing.T) {
	c := newHTTPClient(t, newTestServer(t))
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	enc, err := c.Position(ctx)
	if err != nil || enc != corechess.StartPosition().Encode() {
		t.Fatalf("Position = %q, %v", enc, err)
	}
	moves, err := c.LegalMoves(ctx, "g1")
	if err != nil || strings.Join(moves, ",") != "g1f3,g1h3" {
		t.Fatalf("LegalMoves = %v, %v", moves, err)
	}
	piece, err := c.Piece(ctx, "d1")
	if err != nil || piece.Empty || piece.Kind != "QUEEN" || piece.Color != "WHITE" {
		t.Fatalf("Piece = %+v, %v", piece, err)
	}

	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		if _, err := c.Move(ctx, mv); err != nil {
			t.Fatalf("Move(%s): %v", mv, err)
		}
	}
	out, err := c.Outcome(ctx)
	if err != nil {
		t.Fatalf("Outcome: %v", err)
	}
	if out.Code != 1 || out.Method != "checkmate" || out.Text != "Black wins by checkmate" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	best, err := c.AIMove(ctx, "")
	if err != nil || best != "" {
		t.Fatalf("AIMove on mate = %q, %v", best, err)
	}
	games, err := c.Games(ctx, 5)
	if err != nil || len(games) != 1 || games[0].Result != "black" {
		t.Fatalf("Games = %+v, %v", games, err)
	}
	pgn, err := c.PGN(ctx)
	if err != nil || !strings.HasSuffix(pgn, "0-1") {
		t.Fatalf("PGN = %q, %v", pgn, err)
	}
}

func TestHTTPErrors(t *testing.T) {
	c := newHTTPClient(t, newTestServer(t))
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cases := []struct {
		name string
		call func() error
		code string
	}{
		{"illegal move", func() error { _, err := c.Move(ctx, "e2e5"); return err }, sessiondto.CodeIllegalMove},
		{"bad square", func() error { _, err := c.LegalMoves(ctx, "j9"); return err }, sessiondto.CodeInvalidSquare},
		{"bad encoding", func() error { _, err := c.SetPosition(ctx, "nonsense", ""); return err }, sessiondto.CodeInvalidEncoding},
		{"bad side", func() error { _, err := c.AIMove(ctx, "purple"); return err }, sessiondto.CodeInvalidEncoding},
		{"missing snapshot", func() error { _, err := c.RestoreSnapshot(ctx, "nope"); return err }, sessiondto.CodeSnapshotNotFound},
		{"restore without id", func() error { _, err := c.RestoreSnapshot(ctx, ""); return err }, sessiondto.CodeInvalidRequest},
	}
	for _, tc := range cases {
		if err := tc.call(); !hostclient.IsCode(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}

	var apiErr *hostclient.APIError
	_, err := c.Move(ctx, "e2e5")
	if !errors.As(err, &apiErr) || apiErr.Status != fasthttp.StatusBadRequest || !strings.Contains(apiErr.Message, "e2e5") {
		t.Fatalf("unexpected illegal move error %v", err)
	}
}

func TestHTTPSnapshotAndSideHint(t *testing.T) {
	c := newHTTPClient(t, newTestServer(t))
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := c.Move(ctx, "e2e4"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	saved, _ := c.Position(ctx)
	id, err := c.SaveSnapshot(ctx)
	if err != nil || id == "" {
		t.Fatalf("SaveSnapshot = %q, %v", id, err)
	}
	if _, err := c.Move(ctx, "c7c5"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	restored, err := c.RestoreSnapshot(ctx, id)
	if err != nil || restored != saved {
		t.Fatalf("RestoreSnapshot = %q, %v (want %q)", restored, err, saved)
	}

	enc, err := c.SetPosition(ctx, corechess.StartEncoding, "black")
	if err != nil || strings.Fields(enc)[1] != "b" {
		t.Fatalf("SetPosition with side = %q, %v", enc, err)
	}
}

func TestHTTPUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	cases := map[string]int{
		"/move":    fasthttp.StatusMethodNotAllowed,
		"/nowhere": fasthttp.StatusNotFound,
		"/healthz": fasthttp.StatusOK,
	}
	for path, want := range cases {
		req.SetRequestURI("http://session.test" + path)
		req.Header.SetMethod(fasthttp.MethodGet)
		if err := hc.Do(req, resp); err != nil {
			t.Fatalf("Do(%s): %v", path, err)
		}
		if resp.StatusCode() != want {
			t.Fatalf("GET %s: expected %d, got %d", path, want, resp.StatusCode())
		}
	}
}

func TestWebsocketCommands(t *testing.T) {
	srv := newTestServer(t)
	hs := httptest.NewServer(srv.WSHandler())
	t.Cleanup(hs.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ws, err := hostclient.DialWS(ctx, "ws"+strings.TrimPrefix(hs.URL, "http")+"/ws")
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	err = ws.Call(ctx, sessiondto.OpMove, map[string]string{"move": "e2e4"}, nil)
	if !hostclient.IsCode(err, sessiondto.CodeUninitializedSession) {
		t.Fatalf("expected uninitialized_session, got %v", err)
	}
	if err := ws.Call(ctx, sessiondto.OpInit, nil, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	var pos sessiondto.PositionResponse
	if err := ws.Call(ctx, sessiondto.OpMove, map[string]string{"move": "e2e4"}, &pos); err != nil {
		t.Fatalf("move: %v", err)
	}
	if strings.Fields(pos.Encoding)[1] != "b" {
		t.Fatalf("unexpected encoding %q", pos.Encoding)
	}
	var ai sessiondto.AIMoveResponse
	if err := ws.Call(ctx, sessiondto.OpAIMove, nil, &ai); err != nil {
		t.Fatalf("ai_move: %v", err)
	}
	var legal sessiondto.LegalMovesResponse
	if err := ws.Call(ctx, sessiondto.OpLegalMoves, nil, &legal); err != nil {
		t.Fatalf("legal_moves: %v", err)
	}
	found := false
	for _, mv := range legal.Moves {
		if mv == ai.Move {
			found = true
		}
	}
	if !found {
		t.Fatalf("ai move %q not legal", ai.Move)
	}
	if err := ws.Call(ctx, "teleport", nil, nil); !hostclient.IsCode(err, sessiondto.CodeInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestWebsocketOriginCheck(t *testing.T) {
	srv := newTestServer(t)
	srv.SetWSOrigins([]string{"app.example.com"})
	hs := httptest.NewServer(srv.WSHandler())
	t.Cleanup(hs.Close)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"

	dial := func(origin string) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		opts := &websocket.DialOptions{}
		if origin != "" {
			opts.HTTPHeader = http.Header{"Origin": {origin}}
		}
		c, resp, err := websocket.Dial(ctx, url, opts)
		if err == nil {
			_ = c.Close(websocket.StatusNormalClosure, "")
		}
		return resp, err
	}

	resp, err := dial("https://evil.example")
	if err == nil {
		t.Fatalf("cross-origin websocket accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %v", resp)
	}
	for _, origin := range []string{"", "https://app.example.com", hs.URL} {
		if _, err := dial(origin); err != nil {
			t.Fatalf("origin %q rejected: %v", origin, err)
		}
	}
}

func TestSideHint(t *testing.T) {
	cases := map[string]byte{"": 0, "w": 'w', "WHITE": 'w', " b ": 'b', "black": 'b'}
	for in, want := range cases {
		got, err := sideHint(in)
		if err != nil || got != want {
			t.Fatalf("sideHint(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := sideHint("x"); err == nil {
		t.Fatalf("expected error")
	}
}
