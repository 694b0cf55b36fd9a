package task

import (
	"encoding/json"
	"strings"
)

// State is the normalized lifecycle vocabulary shared by every provider.
type State string

const (
	StateStarted    State = "started"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions are expected after s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Handle is the opaque identifier a provider assigns to a submitted job.
type Handle string

func (h Handle) String() string { return string(h) }

// Empty reports whether the handle carries no identifier.
func (h Handle) Empty() bool { return strings.TrimSpace(string(h)) == "" }

// JobSpec is a caller's request to start external generation work.
type JobSpec struct {
	Prompt          string
	ImageURL        string
	DurationSeconds int
	AspectRatio     string
	Model           string
}

// Validate checks the fields every provider requires.
func (s JobSpec) Validate() error {
	if strings.TrimSpace(s.Prompt) == "" {
		return &Error{Kind: KindInvalidArgument, Op: "submit", Err: errPromptRequired}
	}
	if s.DurationSeconds < 0 {
		return &Error{Kind: KindInvalidArgument, Op: "submit", Err: errNegativeDuration}
	}
	return nil
}

// Status is the normalized result of a single poll.
type Status struct {
	State    State           `json:"status"`
	Handle   Handle          `json:"taskHandle,omitempty"`
	Progress float64         `json:"progress"`
	Result   string          `json:"result,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Started is the status returned to callers right after a successful submission.
func Started(h Handle) Status {
	return Status{State: StateStarted, Handle: h}
}

// Processing builds a non-terminal status with a clamped progress fraction.
func Processing(progress float64) Status {
	return Status{State: StateProcessing, Progress: ClampProgress(progress)}
}

// Completed builds a success terminal status.
func Completed(result string) Status {
	return Status{State: StateCompleted, Progress: 1, Result: result}
}

// Failed builds a failure terminal status.
func Failed(detail string) Status {
	return Status{State: StateFailed, Detail: detail}
}
