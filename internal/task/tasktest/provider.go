package tasktest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"mediarelay/internal/task"
)

const stubBaseURL = "http://stub.provider.local"

// Response is one scripted provider reply. A non-nil Err simulates a
// transport failure.
type Response struct {
	Status int
	Body   string
	Err    error
}

// JSON builds a 200 response from v.
func JSON(v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Response{Status: http.StatusOK, Body: string(b)}
}

// Provider is a scripted vendor. It is both the task.Adapter and the HTTP
// Doer, speaking a small Runway-like dialect:
//
//	create -> {"id": "..."}
//	status -> {"status": "SUCCEEDED|FAILED|...", "progress": 0.4,
//	           "output": ["..."], "result": "...", "failure": "...", "failureCode": "..."}
//
// Poll replies are consumed in order and the last one repeats.
type Provider struct {
	Create Response
	Polls  []Response

	mu          sync.Mutex
	creates     int
	polls       int
	lastCreate  []byte
	polledPaths []string
}

var stubVocabulary = task.Vocabulary{
	Succeeded: []string{"SUCCEEDED"},
	Failed:    []string{"FAILED"},
}

func (p *Provider) Name() string { return "stub" }

func (p *Provider) CreateRequest(ctx context.Context, spec task.JobSpec) (*http.Request, error) {
	body, err := json.Marshal(map[string]any{
		"promptText":  spec.Prompt,
		"promptImage": spec.ImageURL,
		"duration":    spec.DurationSeconds,
		"ratio":       spec.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodPost, stubBaseURL+"/jobs", bytes.NewReader(body))
}

func (p *Provider) ParseCreated(body []byte) (task.Handle, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return task.Handle(out.ID), nil
}

func (p *Provider) StatusRequest(ctx context.Context, h task.Handle) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, stubBaseURL+"/jobs/"+h.String(), nil)
}

func (p *Provider) ParseStatus(body []byte) (task.Status, error) {
	var out struct {
		Status      string   `json:"status"`
		Progress    float64  `json:"progress"`
		Output      []string `json:"output"`
		Result      string   `json:"result"`
		Failure     string   `json:"failure"`
		FailureCode string   `json:"failureCode"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return task.Status{}, err
	}
	switch stubVocabulary.Classify(out.Status) {
	case task.StateCompleted:
		return task.Completed(task.ResultReference(out.Output, out.Result)), nil
	case task.StateFailed:
		return task.Failed(task.FailureDetail(out.Failure, out.FailureCode)), nil
	default:
		return task.Processing(out.Progress), nil
	}
}

// Do serves the scripted replies.
func (p *Provider) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var r Response
	switch {
	case req.Method == http.MethodPost && req.URL.Path == "/jobs":
		p.creates++
		if req.Body != nil {
			p.lastCreate, _ = io.ReadAll(req.Body)
		}
		r = p.Create
	case req.Method == http.MethodGet && strings.HasPrefix(req.URL.Path, "/jobs/"):
		p.polledPaths = append(p.polledPaths, req.URL.Path)
		if len(p.Polls) == 0 {
			return nil, fmt.Errorf("stub: no poll replies scripted")
		}
		idx := p.polls
		if idx >= len(p.Polls) {
			idx = len(p.Polls) - 1
		}
		p.polls++
		r = p.Polls[idx]
	default:
		return nil, fmt.Errorf("stub: unexpected %s %s", req.Method, req.URL.Path)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(r.Body)),
		Request:    req,
	}, nil
}

// Creates returns the number of creation calls received.
func (p *Provider) Creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

// PollCount returns the number of status calls received.
func (p *Provider) PollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// LastCreateBody returns the body of the most recent creation call.
func (p *Provider) LastCreateBody() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.lastCreate...)
}

var _ task.Adapter = (*Provider)(nil)
