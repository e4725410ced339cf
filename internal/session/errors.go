package session

import (
	"errors"

	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
)

var (
	ErrUninitializedSession = errors.New("session not initialized")
	ErrSearchNotComplete    = errors.New("search not complete")
	ErrNoActiveResult       = errors.New("no active search result")
	ErrSearchInProgress     = errors.New("search in progress")
	ErrNoActiveSearch       = errors.New("no active search")

	// adapter errors surface unchanged so callers match one sentinel
	ErrInvalidEncoding = corechess.ErrInvalidEncoding
	ErrIllegalMove     = corechess.ErrIllegalMove
	ErrInvalidSquare   = corechess.ErrInvalidSquare
	ErrInvalidLimits   = corechess.ErrInvalidLimits
)
