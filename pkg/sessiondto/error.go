package sessiondto

// Error codes carried in DomainError.Code.
const (
	CodeUninitializedSession = "uninitialized_session"
	CodeInvalidEncoding      = "invalid_encoding"
	CodeIllegalMove          = "illegal_move"
	CodeInvalidSquare        = "invalid_square"
	CodeSearchInProgress     = "search_in_progress"
	CodeSearchNotComplete    = "search_not_complete"
	CodeNoActiveResult       = "no_active_result"
	CodeSnapshotNotFound     = "snapshot_not_found"
	CodeSnapshotsDisabled    = "snapshots_disabled"
	CodeInvalidRequest       = "invalid_request"
	CodeInternal             = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess session error"
}
