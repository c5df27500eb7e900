package conversation

import "errors"

// Sentinel errors returned by Submit. All are local validation outcomes; none
// of them indicates a transport failure and none consumes quota.
var (
	// ErrEmptyQuestion means the question trimmed to nothing.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNoSession means no visitor is registered; the UI should prompt for
	// registration instead of calling the API.
	ErrNoSession = errors.New("no active session")

	// ErrQuotaExhausted means the session's question limit has been reached.
	ErrQuotaExhausted = errors.New("question quota exhausted")

	// ErrBusy means a prior submission is still in flight. Submissions are
	// serialized inside the controller, not just by UI disablement.
	ErrBusy = errors.New("submission already in flight")
)
