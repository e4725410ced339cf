package hostclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-ChessSession/pkg/sessiondto"
	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// APIError is a non-2xx answer from the session server.
type APIError struct {
	Status int
	sessiondto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("session api error: status=%d code=%s: %s", e.Status, e.Code, e.DomainError.Error())
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDialer replaces the TCP dialer, e.g. with an in-memory listener.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 2 * time.Minute, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 2 * time.Minute,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Init(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/engine/init", nil, nil, false)
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/engine/shutdown", nil, nil, false)
}

func (c *Client) SetPosition(ctx context.Context, encoding, side string) (string, error) {
	var resp sessiondto.PositionResponse
	req := sessiondto.SetPositionRequest{Encoding: encoding, Side: side}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/position", req, &resp, false); err != nil {
		return "", err
	}
	return resp.Encoding, nil
}

func (c *Client) Position(ctx context.Context) (string, error) {
	var resp sessiondto.PositionResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/position", nil, &resp, true); err != nil {
		return "", err
	}
	return resp.Encoding, nil
}

func (c *Client) Move(ctx context.Context, move string) (string, error) {
	var resp sessiondto.PositionResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/move", sessiondto.MoveRequest{Move: move}, &resp, false); err != nil {
		return "", err
	}
	return resp.Encoding, nil
}

// AIMove asks for the engine's move. An empty move means none exists.
func (c *Client) AIMove(ctx context.Context, side string) (string, error) {
	var resp sessiondto.AIMoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/ai-move", sessiondto.AIMoveRequest{Side: side}, &resp, false); err != nil {
		return "", err
	}
	return resp.Move, nil
}

func (c *Client) LegalMoves(ctx context.Context, square string) ([]string, error) {
	var resp sessiondto.LegalMovesResponse
	path := "/legal-moves"
	if square != "" {
		path += "?square=" + url.QueryEscape(square)
	}
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Moves, nil
}

func (c *Client) Outcome(ctx context.Context) (*sessiondto.OutcomeResponse, error) {
	var resp sessiondto.OutcomeResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/outcome", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Piece(ctx context.Context, square string) (*sessiondto.PieceResponse, error) {
	var resp sessiondto.PieceResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/piece?square="+url.QueryEscape(square), nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SaveSnapshot(ctx context.Context) (string, error) {
	var resp sessiondto.SnapshotResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/snapshot", nil, &resp, false); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) RestoreSnapshot(ctx context.Context, id string) (string, error) {
	var resp sessiondto.PositionResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/snapshot/restore", sessiondto.RestoreRequest{ID: id}, &resp, false); err != nil {
		return "", err
	}
	return resp.Encoding, nil
}

func (c *Client) Games(ctx context.Context, limit int) ([]sessiondto.GameSummary, error) {
	var resp sessiondto.GamesResponse
	path := "/games"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

func (c *Client) PGN(ctx context.Context) (string, error) {
	var resp sessiondto.PGNResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/pgn", nil, &resp, true); err != nil {
		return "", err
	}
	return resp.PGN, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, nil, true)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	target := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(target)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := decodeAPIError(status, resp.Body())
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &apiErr.DomainError); err != nil || apiErr.Code == "" {
		apiErr.Code = sessiondto.CodeInternal
		apiErr.Message = truncate(string(body), 512)
	}
	return apiErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
