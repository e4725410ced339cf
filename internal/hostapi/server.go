package hostapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-ChessSession/internal/domain"
	"github.com/park285/Cheese-ChessSession/internal/msgcat"
	svcchess "github.com/park285/Cheese-ChessSession/internal/service/chess"
	"github.com/park285/Cheese-ChessSession/internal/session"
	"github.com/park285/Cheese-ChessSession/pkg/sessiondto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// OpGames lists recent finished games. It is served over HTTP and websocket.
const OpGames = "games"

var errInvalidRequest = errors.New("invalid request")

// Engine is the host facade the API exposes.
type Engine interface {
	InitializeEngine(ctx context.Context) error
	Shutdown() error
	SetPosition(ctx context.Context, encoding string, sideHint byte) error
	CurrentEncoding() (string, error)
	ApplyMove(ctx context.Context, move string) (string, error)
	GetAIMove(ctx context.Context, sideHint byte) (string, error)
	LegalMoves(square string) ([]string, error)
	Outcome() (session.Result, error)
	PieceAt(square string) (kind, color string, ok bool, err error)
	SaveSnapshot(ctx context.Context) (string, error)
	RestoreSnapshot(ctx context.Context, id string) error
	RecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error)
	PGN() (string, error)
}

type Server struct {
	engine  Engine
	msgs    *msgcat.Catalog
	logger  *zap.Logger
	http    *fasthttp.Server
	origins []string
}

func NewServer(engine Engine, msgs *msgcat.Catalog, logger *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, msgs: msgs, logger: logger}
	s.http = &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "chess-session",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return s, nil
}

// Serve runs the JSON API on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.http.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.ShutdownWithContext(ctx)
}

type route struct {
	op    string
	body  bool
	query []string
}

var routes = map[string]route{
	"POST /engine/init":      {op: sessiondto.OpInit},
	"POST /engine/shutdown":  {op: sessiondto.OpShutdown},
	"POST /position":         {op: sessiondto.OpSetPosition, body: true},
	"GET /position":          {op: sessiondto.OpPosition},
	"POST /move":             {op: sessiondto.OpMove, body: true},
	"POST /ai-move":          {op: sessiondto.OpAIMove, body: true},
	"GET /legal-moves":       {op: sessiondto.OpLegalMoves, query: []string{"square"}},
	"GET /outcome":           {op: sessiondto.OpOutcome},
	"GET /piece":             {op: sessiondto.OpPiece, query: []string{"square"}},
	"POST /snapshot":         {op: sessiondto.OpSnapshot},
	"POST /snapshot/restore": {op: sessiondto.OpRestore, body: true},
	"GET /games":             {op: OpGames, query: []string{"limit"}},
	"GET /pgn":               {op: sessiondto.OpPGN},
}

// Handler routes JSON requests onto the engine.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())
		if path == "/healthz" {
			writeJSON(ctx, fasthttp.StatusOK, sessiondto.StatusResponse{OK: true})
			return
		}
		rt, ok := routes[method+" "+path]
		if !ok {
			status := fasthttp.StatusNotFound
			if pathKnown(path) {
				status = fasthttp.StatusMethodNotAllowed
			}
			writeJSON(ctx, status, sessiondto.DomainError{Code: sessiondto.CodeInvalidRequest, Message: method + " " + path})
			return
		}

		args, err := requestArgs(ctx, rt)
		if err == nil {
			var result any
			result, err = s.execute(ctx, rt.op, args)
			if err == nil {
				writeJSON(ctx, fasthttp.StatusOK, result)
				return
			}
		}
		status, derr := s.domainError(err, args)
		if status >= fasthttp.StatusInternalServerError {
			s.logger.Error("host_api_failed", zap.String("route", method+" "+path), zap.Error(err))
		} else {
			s.logger.Debug("host_api_rejected", zap.String("route", method+" "+path), zap.String("code", derr.Code))
		}
		writeJSON(ctx, status, derr)
	}
}

func pathKnown(path string) bool {
	for key := range routes {
		if strings.HasSuffix(key, " "+path) {
			return true
		}
	}
	return false
}

func requestArgs(ctx *fasthttp.RequestCtx, rt route) (map[string]string, error) {
	args := map[string]string{}
	if rt.body && len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &args); err != nil {
			return args, fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
	}
	for _, key := range rt.query {
		if v := ctx.QueryArgs().Peek(key); v != nil {
			args[key] = string(v)
		}
	}
	return args, nil
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error(`{"code":"internal","message":"encode response"}`, fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

// execute runs one operation. Both transports funnel through it.
func (s *Server) execute(ctx context.Context, op string, args map[string]string) (any, error) {
	switch op {
	case sessiondto.OpInit:
		if err := s.engine.InitializeEngine(ctx); err != nil {
			return nil, err
		}
		return sessiondto.StatusResponse{OK: true}, nil

	case sessiondto.OpShutdown:
		if err := s.engine.Shutdown(); err != nil {
			return nil, err
		}
		return sessiondto.StatusResponse{OK: true}, nil

	case sessiondto.OpSetPosition:
		hint, err := sideHint(args["side"])
		if err != nil {
			return nil, err
		}
		if err := s.engine.SetPosition(ctx, args["encoding"], hint); err != nil {
			return nil, err
		}
		return s.position()

	case sessiondto.OpPosition:
		return s.position()

	case sessiondto.OpMove:
		enc, err := s.engine.ApplyMove(ctx, args["move"])
		if err != nil {
			return nil, err
		}
		return sessiondto.PositionResponse{Encoding: enc}, nil

	case sessiondto.OpAIMove:
		hint, err := sideHint(args["side"])
		if err != nil {
			return nil, err
		}
		mv, err := s.engine.GetAIMove(ctx, hint)
		if err != nil {
			return nil, err
		}
		return sessiondto.AIMoveResponse{Move: mv}, nil

	case sessiondto.OpLegalMoves:
		moves, err := s.engine.LegalMoves(args["square"])
		if err != nil {
			return nil, err
		}
		if moves == nil {
			moves = []string{}
		}
		return sessiondto.LegalMovesResponse{Square: args["square"], Moves: moves}, nil

	case sessiondto.OpOutcome:
		res, err := s.engine.Outcome()
		if err != nil {
			return nil, err
		}
		return sessiondto.OutcomeResponse{
			Code:    res.Outcome.Code(),
			Outcome: res.Outcome.String(),
			Method:  res.Method,
			Text:    s.msgs.Text("outcome."+res.Outcome.String(), map[string]any{"Method": res.Method}, ""),
		}, nil

	case sessiondto.OpPiece:
		square := args["square"]
		kind, color, ok, err := s.engine.PieceAt(square)
		if err != nil {
			return nil, err
		}
		return sessiondto.PieceResponse{Square: square, Empty: !ok, Kind: kind, Color: color}, nil

	case sessiondto.OpSnapshot:
		id, err := s.engine.SaveSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		return sessiondto.SnapshotResponse{ID: id}, nil

	case sessiondto.OpRestore:
		if strings.TrimSpace(args["id"]) == "" {
			return nil, fmt.Errorf("%w: id is required", errInvalidRequest)
		}
		if err := s.engine.RestoreSnapshot(ctx, args["id"]); err != nil {
			return nil, err
		}
		return s.position()

	case OpGames:
		limit := 0
		if v := strings.TrimSpace(args["limit"]); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: limit %q", errInvalidRequest, v)
			}
			limit = n
		}
		games, err := s.engine.RecentGames(ctx, limit)
		if err != nil {
			return nil, err
		}
		out := sessiondto.GamesResponse{Games: make([]sessiondto.GameSummary, 0, len(games))}
		for _, g := range games {
			out.Games = append(out.Games, sessiondto.GameSummary{
				ID:           g.ID,
				SessionUUID:  g.SessionUUID,
				Result:       g.Result,
				ResultMethod: g.ResultMethod,
				Moves:        g.MovesUCI,
				PGN:          g.PGN,
				EndedAt:      g.EndedAt,
				DurationMS:   g.Duration.Milliseconds(),
			})
		}
		return out, nil

	case sessiondto.OpPGN:
		pgn, err := s.engine.PGN()
		if err != nil {
			return nil, err
		}
		return sessiondto.PGNResponse{PGN: pgn}, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", errInvalidRequest, op)
}

func (s *Server) position() (any, error) {
	enc, err := s.engine.CurrentEncoding()
	if err != nil {
		return nil, err
	}
	return sessiondto.PositionResponse{Encoding: enc}, nil
}

// sideHint maps "w", "b", "white" or "black" onto the engine's hint byte.
func sideHint(raw string) (byte, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return 0, nil
	case "w", "white":
		return 'w', nil
	case "b", "black":
		return 'b', nil
	}
	return 0, fmt.Errorf("%w: side %q", session.ErrInvalidEncoding, raw)
}

type errorKind struct {
	target    error
	status    int
	code      string
	retryable bool
}

var errorKinds = []errorKind{
	{session.ErrUninitializedSession, fasthttp.StatusConflict, sessiondto.CodeUninitializedSession, false},
	{session.ErrInvalidEncoding, fasthttp.StatusBadRequest, sessiondto.CodeInvalidEncoding, false},
	{session.ErrIllegalMove, fasthttp.StatusBadRequest, sessiondto.CodeIllegalMove, false},
	{session.ErrInvalidSquare, fasthttp.StatusBadRequest, sessiondto.CodeInvalidSquare, false},
	{session.ErrSearchInProgress, fasthttp.StatusConflict, sessiondto.CodeSearchInProgress, true},
	{session.ErrSearchNotComplete, fasthttp.StatusConflict, sessiondto.CodeSearchNotComplete, true},
	{session.ErrNoActiveResult, fasthttp.StatusConflict, sessiondto.CodeNoActiveResult, false},
	{svcchess.ErrSnapshotNotFound, fasthttp.StatusNotFound, sessiondto.CodeSnapshotNotFound, false},
	{svcchess.ErrSnapshotsDisabled, fasthttp.StatusNotImplemented, sessiondto.CodeSnapshotsDisabled, false},
	{errInvalidRequest, fasthttp.StatusBadRequest, sessiondto.CodeInvalidRequest, false},
	{context.DeadlineExceeded, fasthttp.StatusGatewayTimeout, sessiondto.CodeInternal, true},
}

func (s *Server) domainError(err error, args map[string]string) (int, sessiondto.DomainError) {
	data := map[string]any{
		"Detail": errText(err),
		"Move":   args["move"],
		"Square": args["square"],
		"ID":     args["id"],
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			msgKey := "errors." + k.code
			return k.status, sessiondto.DomainError{
				Code:      k.code,
				Message:   s.msgs.Text(msgKey, data, errText(err)),
				Retryable: k.retryable,
			}
		}
	}
	return fasthttp.StatusInternalServerError, sessiondto.DomainError{
		Code:      sessiondto.CodeInternal,
		Message:   s.msgs.Text("errors.internal", data, "internal error"),
		Retryable: true,
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
