package stage

import "errors"

var (
	// ErrConfigMissing reports that a stage lacks settings it cannot
	// run without, such as a model name or an endpoint.
	ErrConfigMissing = errors.New("stage configuration missing")

	// ErrStageDisabled reports an attempt to run a disabled stage
	ErrStageDisabled = errors.New("stage is disabled")
)

// ParseFailure records one file the parse stage could not normalize.
// Failures are carried in the stage output next to the files that did
// parse; a bad file never aborts the batch.
type ParseFailure struct {
	File   string
	Reason string
}
