package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediarelay/internal/infra"
)

const (
	defaultMaxBodyBytes = 4 << 20
	maxDetailBytes      = 512
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures an Orchestrator.
type Options struct {
	Adapter        Adapter
	HTTPClient     Doer
	Logger         *infra.Logger
	Clock          Clock
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Orchestrator submits jobs to one provider, checks their status and
// normalizes the outcome. It holds no per-job state and is safe for
// concurrent use.
type Orchestrator struct {
	adapter      Adapter
	client       Doer
	logger       *infra.Logger
	clock        Clock
	maxBodyBytes int64
}

// New builds an orchestrator around a provider adapter.
func New(opts Options) (*Orchestrator, error) {
	if opts.Adapter == nil {
		return nil, errors.New("task: adapter is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		adapter:      opts.Adapter,
		client:       client,
		logger:       logger,
		clock:        clock,
		maxBodyBytes: maxBody,
	}, nil
}

// Provider returns the adapter name.
func (o *Orchestrator) Provider() string {
	return o.adapter.Name()
}

// Submit creates exactly one provider job and returns its handle. It never
// retries; avoiding duplicate submissions is the caller's job.
func (o *Orchestrator) Submit(ctx context.Context, spec JobSpec) (Handle, error) {
	if err := spec.Validate(); err != nil {
		return "", o.annotate(err, "submit", "")
	}
	req, err := o.adapter.CreateRequest(ctx, spec)
	if err != nil {
		return "", o.fail(KindInvalidArgument, "submit", "", 0, nil, fmt.Errorf("build request: %w", err))
	}
	code, body, err := o.do(req)
	if err != nil {
		return "", o.fail(KindProviderRejected, "submit", "", code, body, err)
	}
	if !success(code) {
		return "", o.fail(KindProviderRejected, "submit", "", code, body, errors.New(detailFromBody(body)))
	}
	h, err := o.adapter.ParseCreated(body)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			if te.Payload == nil {
				te.Payload = body
			}
			te.StatusCode = code
			return "", o.annotate(te, "submit", "")
		}
		return "", o.contractViolation("submit", "", code, body, err)
	}
	if h.Empty() {
		return "", o.contractViolation("submit", "", code, body, errMissingJobID)
	}
	o.logger.Debug().
		Str("provider", o.Provider()).
		Str("task_handle", h.String()).
		Msg("task: job submitted")
	return h, nil
}

// Poll performs one status check for h. It never waits for completion.
func (o *Orchestrator) Poll(ctx context.Context, h Handle) (Status, error) {
	if h.Empty() {
		return Status{}, o.fail(KindInvalidArgument, "poll", h, 0, nil, errHandleRequired)
	}
	req, err := o.adapter.StatusRequest(ctx, h)
	if err != nil {
		return Status{}, o.fail(KindInvalidArgument, "poll", h, 0, nil, fmt.Errorf("build request: %w", err))
	}
	code, body, err := o.do(req)
	if err != nil {
		return Status{}, o.fail(KindProviderUnavailable, "poll", h, code, body, err)
	}
	if !success(code) {
		return Status{}, o.fail(KindProviderUnavailable, "poll", h, code, body, errors.New(detailFromBody(body)))
	}
	st, err := o.adapter.ParseStatus(body)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			te.StatusCode = code
			te.Handle = h
			return Status{}, o.annotate(te, "poll", h)
		}
		return Status{}, o.contractViolation("poll", h, code, body, err)
	}
	switch st.State {
	case StateCompleted:
		if strings.TrimSpace(st.Result) == "" {
			return Status{}, o.contractViolation("poll", h, code, body, errors.New("completed job has no result reference"))
		}
		st.Progress = 1
	case StateFailed:
		st.Detail = FailureDetail(st.Detail)
	default:
		st.State = StateProcessing
		st.Progress = ClampProgress(st.Progress)
	}
	st.Handle = h
	st.Raw = body
	return st, nil
}

// SubmitAndAwait submits spec and then polls on sched until a terminal state.
// When the schedule runs out the returned status still carries the handle
// and the error is of KindTimeout; the job itself is unaffected and can be
// polled later.
func (o *Orchestrator) SubmitAndAwait(ctx context.Context, spec JobSpec, sched Schedule) (Status, error) {
	if err := sched.Validate(); err != nil {
		return Status{}, o.fail(KindInvalidArgument, "await", "", 0, nil, err)
	}
	h, err := o.Submit(ctx, spec)
	if err != nil {
		return Status{}, err
	}
	last := Started(h)
	attempts, err := sched.Run(ctx, o.clock, func(ctx context.Context, attempt int) (bool, error) {
		st, err := o.Poll(ctx, h)
		if err != nil {
			return false, err
		}
		last = st
		o.logger.Debug().
			Str("provider", o.Provider()).
			Str("task_handle", h.String()).
			Int("attempt", attempt).
			Str("state", string(st.State)).
			Float64("progress", st.Progress).
			Msg("task: polled")
		return st.State.Terminal(), nil
	})
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, ErrScheduleExhausted):
		o.logger.Warn().
			Str("provider", o.Provider()).
			Str("task_handle", h.String()).
			Int("attempts", attempts).
			Msg("task: wait exhausted before terminal state")
		return last, &Error{
			Kind:     KindTimeout,
			Op:       "await",
			Provider: o.Provider(),
			Handle:   h,
			Err:      fmt.Errorf("no terminal state after %d polls", attempts),
		}
	case KindOf(err) != KindUnknown:
		return last, err
	default:
		return last, fmt.Errorf("task %s await %s: %w", o.Provider(), h, err)
	}
}

func (o *Orchestrator) do(req *http.Request) (int, []byte, error) {
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, o.maxBodyBytes))
	if err != nil {
		return resp.StatusCode, body, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (o *Orchestrator) fail(kind Kind, op string, h Handle, code int, body []byte, err error) error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Provider:   o.Provider(),
		Handle:     h,
		StatusCode: code,
		Payload:    body,
		Err:        err,
	}
}

func (o *Orchestrator) contractViolation(op string, h Handle, code int, body []byte, err error) error {
	o.logger.Error().
		Err(err).
		Str("provider", o.Provider()).
		Str("op", op).
		Str("task_handle", h.String()).
		Int("status", code).
		Msg("task: provider contract violation")
	return o.fail(KindProviderContractViolation, op, h, code, body, err)
}

func (o *Orchestrator) annotate(err error, op string, h Handle) error {
	var te *Error
	if !errors.As(err, &te) {
		return err
	}
	if te.Op == "" {
		te.Op = op
	}
	if te.Provider == "" {
		te.Provider = o.Provider()
	}
	if te.Handle == "" {
		te.Handle = h
	}
	return te
}

func success(code int) bool {
	return code >= 200 && code < 300
}

func detailFromBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	if len(text) > maxDetailBytes {
		text = text[:maxDetailBytes]
	}
	return text
}
