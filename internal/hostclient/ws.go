package hostclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/park285/Cheese-ChessSession/pkg/sessiondto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSClient sends Commands over one websocket connection. Calls are
// serialized; each waits for the Reply with its ID.
type WSClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
	seq  int
}

func DialWS(ctx context.Context, wsURL string) (*WSClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &WSClient{conn: conn}, nil
}

// Call runs op and decodes the result into out when out is non-nil. A
// failed op returns an *APIError with Status 0.
func (w *WSClient) Call(ctx context.Context, op string, args map[string]string, out any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	id := strconv.Itoa(w.seq)
	if err := wsjson.Write(ctx, w.conn, sessiondto.Command{ID: id, Op: op, Args: args}); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}
	for {
		var reply sessiondto.Reply
		if err := wsjson.Read(ctx, w.conn, &reply); err != nil {
			return fmt.Errorf("read %s: %w", op, err)
		}
		if reply.ID != id {
			// 이전 호출의 늦은 응답
			continue
		}
		if !reply.OK {
			apiErr := &APIError{}
			if reply.Error != nil {
				apiErr.DomainError = *reply.Error
			}
			return apiErr
		}
		if out != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", op, err)
			}
		}
		return nil
	}
}

func (w *WSClient) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "bye")
}
