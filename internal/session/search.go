package session

import (
	"context"
	"fmt"
	"time"

	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"go.uber.org/zap"
)

// SearchState is the orchestrator's lifecycle position.
type SearchState int

const (
	Idle SearchState = iota
	Searching
	Stopped
)

func (s SearchState) String() string {
	switch s {
	case Searching:
		return "searching"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// NoMove is the best move reported when the engine had nothing to play.
const NoMove = ""

type searchRun struct {
	limits  corechess.SearchLimits
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	// written by the search goroutine before done is closed
	result corechess.SearchResult
	err    error
}

type orchestrator struct {
	state  SearchState
	run    *searchRun
	result corechess.SearchResult
}

// discard drops an unread result so it cannot leak into a later position.
func (o *orchestrator) discard() {
	if o.state == Stopped {
		o.state = Idle
		o.result = corechess.SearchResult{}
	}
}

// abort cancels and joins a running search.
func (o *orchestrator) abort() {
	if o.state == Searching && o.run != nil {
		o.run.cancel()
		<-o.run.done
	}
	o.state = Idle
	o.run = nil
	o.result = corechess.SearchResult{}
}

// SearchState reports the orchestrator state.
func (s *Session) SearchState() SearchState { return s.search.state }

// StartSearch launches a bounded search over a private copy of the current
// position.
func (s *Session) StartSearch(limits corechess.SearchLimits) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.search.state != Idle {
		return ErrSearchInProgress
	}
	if err := limits.Validate(); err != nil {
		return err
	}

	snapshot := s.pos.Clone()
	ctx, cancel := context.WithCancel(context.Background())
	run := &searchRun{
		limits:  limits,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	searcher := s.searcher
	go func() {
		defer close(run.done)
		run.result, run.err = searcher.Search(ctx, snapshot, limits)
	}()

	s.search.state = Searching
	s.search.run = run
	s.logger.Debug("search_started",
		zap.String("encoding", snapshot.Encode()),
		zap.Stringer("limits", limits),
	)
	return nil
}

// StopSearch waits for the running search to reach its bound. If ctx ends
// first the search is cancelled, joined, and its result dropped.
func (s *Session) StopSearch(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.search.state != Searching || s.search.run == nil {
		return ErrNoActiveSearch
	}
	run := s.search.run
	defer run.cancel()

	var waitErr error
	select {
	case <-run.done:
	case <-ctx.Done():
		run.cancel()
		<-run.done
		waitErr = ctx.Err()
	}

	s.search.state = Stopped
	s.search.run = nil
	s.search.result = corechess.SearchResult{}

	took := time.Since(run.started)
	switch {
	case waitErr != nil:
		s.logger.Warn("search_interrupted", zap.Duration("took", took), zap.Error(waitErr))
		return fmt.Errorf("stop search: %w", waitErr)
	case run.err != nil:
		s.logger.Warn("search_failed", zap.Duration("took", took), zap.Error(run.err))
	default:
		s.search.result = run.result
		s.logger.Info("search_stopped",
			zap.String("best", run.result.BestMove),
			zap.String("ponder", run.result.Ponder),
			zap.Int("depth", run.result.Depth),
			zap.Int64("nodes", run.result.Nodes),
			zap.Duration("took", took),
		)
	}
	return nil
}

// BestMove returns the stopped search's move (NoMove when none) and resets
// the orchestrator; the result can be read once.
func (s *Session) BestMove() (string, error) {
	res, err := s.TakeResult()
	if err != nil {
		return NoMove, err
	}
	return res.BestMove, nil
}

// TakeResult is BestMove with the full search report.
func (s *Session) TakeResult() (corechess.SearchResult, error) {
	if err := s.ready(); err != nil {
		return corechess.SearchResult{}, err
	}
	switch s.search.state {
	case Searching:
		return corechess.SearchResult{}, ErrSearchNotComplete
	case Idle:
		return corechess.SearchResult{}, ErrNoActiveResult
	}
	res := s.search.result
	s.search.state = Idle
	s.search.result = corechess.SearchResult{}
	return res, nil
}
