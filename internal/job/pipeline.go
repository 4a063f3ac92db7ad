// Package job provides the extraction pipeline that turns one video source
// into a set of key frames served over HTTP.
package job

import (
	"errors"
	"fmt"
)

// Interval bounds for frame extraction, in seconds.
const (
	MinIntervalSec = 1
	MaxIntervalSec = 60
	// DefaultIntervalSec applies when a request names no interval at all.
	DefaultIntervalSec = 5
)

// ErrInvalidInterval is returned when the requested interval lies outside
// [MinIntervalSec, MaxIntervalSec].
var ErrInvalidInterval = errors.New("job: interval must be between 1 and 60 seconds")

// Stage names the pipeline phase an error escaped from.
type Stage string

const (
	// StageValidate rejects bad parameters before any I/O happens.
	StageValidate Stage = "validate"
	// StageAcquire stages the source video locally.
	StageAcquire Stage = "acquire"
	// StageAllocate creates the artifact directory.
	StageAllocate Stage = "allocate"
	// StageExtract runs the engine over the staged video.
	StageExtract Stage = "extract"
)

// PipelineError attributes a failure to a pipeline stage so the transport
// layer can map it to a status code without inspecting every cause.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("job: %s stage failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
