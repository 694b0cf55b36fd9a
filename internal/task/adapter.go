package task

import (
	"context"
	"math"
	"net/http"
	"strings"
)

// Adapter translates between the orchestrator and one vendor's job API. It
// builds the vendor requests and decodes the vendor bodies; transport and
// error classification stay in the orchestrator.
type Adapter interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// CreateRequest serializes spec into the vendor's job-creation call,
	// credentials included.
	CreateRequest(ctx context.Context, spec JobSpec) (*http.Request, error)
	// ParseCreated extracts the job identifier from a 2xx creation body. An
	// empty handle with a nil error means the identifier was absent.
	ParseCreated(body []byte) (Handle, error)
	// StatusRequest builds the vendor's status-check call for h.
	StatusRequest(ctx context.Context, h Handle) (*http.Request, error)
	// ParseStatus maps a 2xx status body onto the normalized vocabulary.
	ParseStatus(body []byte) (Status, error)
}

// Vocabulary lists the raw vendor strings for the two terminal states.
// Matching is case-insensitive; anything else is treated as non-terminal.
type Vocabulary struct {
	Succeeded []string
	Failed    []string
}

// Classify maps a raw vendor status onto a normalized State.
func (v Vocabulary) Classify(raw string) State {
	raw = strings.TrimSpace(raw)
	for _, s := range v.Succeeded {
		if strings.EqualFold(raw, s) {
			return StateCompleted
		}
	}
	for _, s := range v.Failed {
		if strings.EqualFold(raw, s) {
			return StateFailed
		}
	}
	return StateProcessing
}

// DefaultFailureDetail is used when a provider reports failure without a reason.
const DefaultFailureDetail = "generation failed"

// FailureDetail returns the first non-empty candidate, falling back to
// DefaultFailureDetail.
func FailureDetail(candidates ...string) string {
	if d := FirstNonEmpty(candidates...); d != "" {
		return d
	}
	return DefaultFailureDetail
}

// ResultReference picks the primary output of a completed job. Providers
// return either a list of outputs or a single field.
func ResultReference(outputs []string, single string) string {
	for _, o := range outputs {
		if o = strings.TrimSpace(o); o != "" {
			return o
		}
	}
	return strings.TrimSpace(single)
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ClampProgress keeps p inside [0,1]; NaN becomes 0.
func ClampProgress(p float64) float64 {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
