package task

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies orchestration failures so callers can decide whether to retry.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidArgument means the caller supplied a malformed job spec or handle.
	KindInvalidArgument
	// KindProviderRejected means the provider declined the submission.
	KindProviderRejected
	// KindProviderContractViolation means a success response omitted an expected field.
	KindProviderContractViolation
	// KindProviderUnavailable means a status check failed at the transport level.
	// The handle stays valid and the poll may be repeated.
	KindProviderUnavailable
	// KindTimeout means a bounded wait ended before a terminal state. The job
	// may still finish; keep the handle and resume polling.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindProviderRejected:
		return "provider_rejected"
	case KindProviderContractViolation:
		return "provider_contract_violation"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidArgument           = errors.New("task: invalid argument")
	ErrProviderRejected          = errors.New("task: provider rejected request")
	ErrProviderContractViolation = errors.New("task: provider contract violation")
	ErrProviderUnavailable       = errors.New("task: provider unavailable")
	ErrTimeout                   = errors.New("task: timed out waiting for terminal state")
)

var (
	errPromptRequired   = errors.New("prompt is required")
	errNegativeDuration = errors.New("duration must not be negative")
	errHandleRequired   = errors.New("task handle is required")
	errMissingJobID     = errors.New("response did not include a job identifier")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindProviderRejected:
		return ErrProviderRejected
	case KindProviderContractViolation:
		return ErrProviderContractViolation
	case KindProviderUnavailable:
		return ErrProviderUnavailable
	case KindTimeout:
		return ErrTimeout
	}
	return nil
}

// Error is the single error type returned by the orchestrator.
type Error struct {
	Kind     Kind
	Op       string
	Provider string
	Handle   Handle
	// StatusCode is the provider HTTP status, zero when no response was received.
	StatusCode int
	// Payload is the provider's raw response body, kept for diagnostics.
	Payload []byte
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("task")
	if e.Provider != "" {
		b.WriteString(" ")
		b.WriteString(e.Provider)
	}
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := sentinelFor(e.Kind)
	return s != nil && target == s
}

// KindOf returns the orchestration kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// Rejected lets adapters flag a 2xx response whose body nevertheless
// describes a refusal.
func Rejected(detail string, payload []byte) error {
	return &Error{Kind: KindProviderRejected, Payload: payload, Err: errors.New(detail)}
}
