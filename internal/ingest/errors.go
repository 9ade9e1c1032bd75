package ingest

import "errors"

// Fatal errors. Either one aborts the run before or instead of ingesting files.
var (
	ErrConfig = errors.New("configuration error")
	ErrAuth   = errors.New("authentication failed")
)

// Recoverable errors. These are logged or attached to a single file's Outcome
// and never stop the batch.
var (
	ErrReconciliation       = errors.New("existing records could not be read")
	ErrAnalysisTimeout      = errors.New("analysis did not complete in time")
	ErrSubmissionAckTimeout = errors.New("submission was not acknowledged in time")
	ErrDriver               = errors.New("ui driver fault")
	ErrPreflight            = errors.New("file rejected before upload")
)
