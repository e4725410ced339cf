package hostapi

import (
	"encoding/json"
	"net/http"

	"github.com/park285/Cheese-ChessSession/pkg/sessiondto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSHandler serves the websocket transport and a health probe over net/http.
func (s *Server) WSHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

// SetWSOrigins lists the cross-origin hosts allowed to open a websocket,
// as patterns like "app.example.com" or "*.example.com". Same-host origins
// are always accepted.
func (s *Server) SetWSOrigins(patterns []string) {
	s.origins = append([]string(nil), patterns...)
}

// ServeWS answers Commands on one connection, in arrival order.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
		return
	}
	defer func() { _ = c.Close(websocket.StatusNormalClosure, "bye") }()
	s.logger.Info("ws_connected", zap.String("remote", r.RemoteAddr))

	ctx := r.Context()
	for {
		var cmd sessiondto.Command
		if err := wsjson.Read(ctx, c, &cmd); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.logger.Debug("ws_read_ended", zap.Error(err))
			}
			return
		}
		reply := s.dispatch(r, cmd)
		if err := wsjson.Write(ctx, c, reply); err != nil {
			s.logger.Warn("ws_write_failed", zap.String("op", cmd.Op), zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(r *http.Request, cmd sessiondto.Command) sessiondto.Reply {
	args := cmd.Args
	if args == nil {
		args = map[string]string{}
	}
	result, err := s.execute(r.Context(), cmd.Op, args)
	if err == nil {
		raw, mErr := json.Marshal(result)
		if mErr == nil {
			return sessiondto.Reply{ID: cmd.ID, OK: true, Result: raw}
		}
		err = mErr
	}
	_, derr := s.domainError(err, args)
	if derr.Code == sessiondto.CodeInternal {
		s.logger.Error("ws_op_failed", zap.String("op", cmd.Op), zap.Error(err))
	}
	return sessiondto.Reply{ID: cmd.ID, OK: false, Error: &derr}
}
