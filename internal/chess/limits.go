package chess

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSearchDepth is the depth the host contract asks for.
	DefaultSearchDepth = 20
	maxSearchDepth     = 64
)

var ErrInvalidLimits = errors.New("invalid search limits")

// SearchLimits bounds one search. A zero field means "no limit" for that
// dimension; at least one must be set. Threads and HashMB size the engine
// that runs the search; zero keeps the backend default.
type SearchLimits struct {
	Depth    int
	MoveTime time.Duration
	Nodes    int64

	Threads int
	HashMB  int
}

// DepthLimits is the common fixed-depth configuration.
func DepthLimits(depth int) SearchLimits {
	return SearchLimits{Depth: depth}
}

func (l SearchLimits) Validate() error {
	switch {
	case l.Depth < 0 || l.Depth > maxSearchDepth:
		return fmt.Errorf("%w: depth %d out of range 0-%d", ErrInvalidLimits, l.Depth, maxSearchDepth)
	case l.MoveTime < 0:
		return fmt.Errorf("%w: move time must be >= 0: %s", ErrInvalidLimits, l.MoveTime)
	case l.Nodes < 0:
		return fmt.Errorf("%w: node cap must be >= 0: %d", ErrInvalidLimits, l.Nodes)
	case l.Threads < 0 || l.HashMB < 0:
		return fmt.Errorf("%w: engine resources must be >= 0: threads %d hash %d", ErrInvalidLimits, l.Threads, l.HashMB)
	case l.Depth == 0 && l.MoveTime == 0 && l.Nodes == 0:
		return fmt.Errorf("%w: no search limits specified", ErrInvalidLimits)
	}
	return nil
}

func (l SearchLimits) String() string {
	s, err := FormatGoCommand(l)
	if err != nil {
		return "go (none)"
	}
	return s
}

// BuildGoCommand renders limits as UCI "go" tokens.
func BuildGoCommand(l SearchLimits) ([]string, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTime > 0 {
		args = append(args, "movetime", strconv.FormatInt(l.MoveTime.Milliseconds(), 10))
	}
	if l.Nodes > 0 {
		args = append(args, "nodes", strconv.FormatInt(l.Nodes, 10))
	}
	return args, nil
}

func FormatGoCommand(l SearchLimits) (string, error) {
	args, err := BuildGoCommand(l)
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}
