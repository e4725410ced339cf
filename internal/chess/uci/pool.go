package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

type PoolConfig struct {
	BinaryPath string
	// MaxEngines caps the engine processes alive at once, across all
	// option sets. Zero means one.
	MaxEngines int
	Logger     *zap.Logger
}

var ErrPoolClosed = errors.New("uci pool closed")

// Pool bounds the number of engine processes and keeps idle ones warm,
// indexed by the options they were started with. When the cap is reached
// and no idle engine matches, an idle engine with other options is stopped
// to make room.
type Pool struct {
	binaryPath string
	maxEngines int
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	live   int
	idle   map[string][]*Session
	inUse  map[*Session]string
	wake   chan struct{}
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	maxEngines := cfg.MaxEngines
	if maxEngines <= 0 {
		maxEngines = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		binaryPath: cfg.BinaryPath,
		maxEngines: maxEngines,
		logger:     logger,
		idle:       make(map[string][]*Session),
		inUse:      make(map[*Session]string),
		wake:       make(chan struct{}),
	}, nil
}

// Acquire hands out an engine configured with opt, waiting for a free
// slot while every engine is busy.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	key := optionsKey(opt)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if session := p.popIdleLocked(key); session != nil {
			p.inUse[session] = key
			p.mu.Unlock()
			if err := session.EnsureReady(ctx); err != nil {
				p.logger.Debug("uci_idle_engine_dead", zap.String("options", key), zap.Error(err))
				p.Release(session, err)
				continue
			}
			return session, nil
		}

		if p.live < p.maxEngines {
			p.live++
			p.mu.Unlock()
			session, err := NewSession(ctx, p.binaryPath, opt, p.logger)
			if err != nil {
				p.mu.Lock()
				p.live--
				p.broadcastLocked()
				p.mu.Unlock()
				return nil, err
			}
			p.mu.Lock()
			p.inUse[session] = key
			p.mu.Unlock()
			p.logger.Debug("uci_engine_started", zap.String("options", key))
			return session, nil
		}

		if victim, victimKey := p.evictLocked(key); victim != nil {
			p.live--
			p.mu.Unlock()
			p.logger.Debug("uci_engine_evicted", zap.String("options", victimKey), zap.String("for", key))
			_ = victim.Close()
			continue
		}

		wait := p.wake
		p.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns an engine to the pool. A non-nil err means the engine
// may be in an unknown state; it is stopped instead of kept.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	p.mu.Lock()
	key, ok := p.inUse[session]
	if !ok {
		p.mu.Unlock()
		_ = session.Close()
		return
	}
	delete(p.inUse, session)
	if err != nil || p.closed {
		p.live--
		p.broadcastLocked()
		p.mu.Unlock()
		_ = session.Close()
		return
	}
	p.idle[key] = append(p.idle[key], session)
	p.broadcastLocked()
	p.mu.Unlock()
}

// Close stops idle engines. Engines still checked out are stopped when
// they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	var sessions []*Session
	for key, list := range p.idle {
		sessions = append(sessions, list...)
		delete(p.idle, key)
	}
	p.live -= len(sessions)
	p.broadcastLocked()
	p.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Info("uci_pool_closed", zap.Int("engines", len(sessions)), zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

// Stats reports live engines and idle engines per option set.
func (p *Pool) Stats() (live int, idle map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle = make(map[string]int, len(p.idle))
	for key, list := range p.idle {
		idle[key] = len(list)
	}
	return p.live, idle
}

func (p *Pool) popIdleLocked(key string) *Session {
	list := p.idle[key]
	if len(list) == 0 {
		return nil
	}
	session := list[len(list)-1]
	if len(list) == 1 {
		delete(p.idle, key)
	} else {
		p.idle[key] = list[:len(list)-1]
	}
	return session
}

// evictLocked removes the oldest idle engine whose options differ from key.
func (p *Pool) evictLocked(key string) (*Session, string) {
	for other, list := range p.idle {
		if other == key || len(list) == 0 {
			continue
		}
		victim := list[0]
		if len(list) == 1 {
			delete(p.idle, other)
		} else {
			p.idle[other] = list[1:]
		}
		return victim, other
	}
	return nil, ""
}

func (p *Pool) broadcastLocked() {
	close(p.wake)
	p.wake = make(chan struct{})
}

func optionsKey(opt Options) string {
	return fmt.Sprintf("thr=%d|hash=%d|multipv=%d", opt.Threads, opt.HashMB, opt.MultiPV)
}
