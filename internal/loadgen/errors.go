package loadgen

import "errors"

var (
	// ErrSeedFailed is reported when a session could not create its team
	ErrSeedFailed = errors.New("seed team failed")

	// ErrPreconditionUnmet means a task had nothing to operate on (no users,
	// no pull requests, no pull request with reviewers). Tasks returning it
	// are skipped silently.
	ErrPreconditionUnmet = errors.New("task precondition unmet")

	// ErrRequestFailed covers transport errors and unexpected status codes
	ErrRequestFailed = errors.New("request failed")

	// ErrReconciliationAmbiguous is returned when a success response carries
	// neither a usable reviewer list nor a replacement hint
	ErrReconciliationAmbiguous = errors.New("response has neither reviewer list nor replacement")
)
