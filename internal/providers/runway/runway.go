package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mediarelay/internal/task"
)

// ErrMissingAPIKey indicates that the adapter was configured without credentials.
var ErrMissingAPIKey = errors.New("runway: api key is required")

const (
	defaultBaseURL    = "https://api.runwayml.com"
	defaultModel      = "gen3a_turbo"
	defaultAPIVersion = "2024-11-06"
	defaultDuration   = 5
	defaultRatio      = "1280:768"
)

var vocabulary = task.Vocabulary{
	Succeeded: []string{"SUCCEEDED"},
	Failed:    []string{"FAILED", "CANCELLED"},
}

// Options configures the Runway adapter.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	APIVersion string
}

// Adapter speaks Runway's image-to-video task API.
type Adapter struct {
	apiKey     string
	baseURL    string
	model      string
	apiVersion string
}

var _ task.Adapter = (*Adapter)(nil)

type createRequest struct {
	Model       string `json:"model"`
	PromptImage string `json:"promptImage,omitempty"`
	PromptText  string `json:"promptText"`
	Duration    int    `json:"duration"`
	Ratio       string `json:"ratio"`
}

type createResponse struct {
	ID    string          `json:"id"`
	Error json.RawMessage `json:"error"`
}

type taskResponse struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Progress    *float64 `json:"progress"`
	Output      []string `json:"output"`
	Failure     string   `json:"failure"`
	FailureCode string   `json:"failureCode"`
}

// New constructs an adapter with defaults applied.
func New(opts Options) *Adapter {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	version := strings.TrimSpace(opts.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	return &Adapter{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		apiVersion: version,
	}
}

func (a *Adapter) Name() string { return "runway" }

// HasCredentials reports whether the adapter can perform remote calls.
func (a *Adapter) HasCredentials() bool { return a.apiKey != "" }

func (a *Adapter) CreateRequest(ctx context.Context, spec task.JobSpec) (*http.Request, error) {
	if !a.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	payload := createRequest{
		Model:       a.model,
		PromptImage: strings.TrimSpace(spec.ImageURL),
		PromptText:  strings.TrimSpace(spec.Prompt),
		Duration:    spec.DurationSeconds,
		Ratio:       Ratio(spec.AspectRatio),
	}
	if m := strings.TrimSpace(spec.Model); m != "" {
		payload.Model = m
	}
	if payload.Duration == 0 {
		payload.Duration = defaultDuration
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("runway: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/image_to_video", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("runway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)
	return req, nil
}

func (a *Adapter) ParseCreated(body []byte) (task.Handle, error) {
	var decoded createResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("runway: decode create response: %w", err)
	}
	if msg := errorMessage(decoded.Error); msg != "" {
		return "", task.Rejected(msg, body)
	}
	return task.Handle(strings.TrimSpace(decoded.ID)), nil
}

func (a *Adapter) StatusRequest(ctx context.Context, h task.Handle) (*http.Request, error) {
	if !a.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	endpoint := a.baseURL + "/v1/tasks/" + url.PathEscape(h.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("runway: build status request: %w", err)
	}
	a.authorize(req)
	return req, nil
}

func (a *Adapter) ParseStatus(body []byte) (task.Status, error) {
	var decoded taskResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return task.Status{}, fmt.Errorf("runway: decode task: %w", err)
	}
	if strings.TrimSpace(decoded.Status) == "" {
		return task.Status{}, errors.New("runway: task has no status")
	}
	switch vocabulary.Classify(decoded.Status) {
	case task.StateCompleted:
		return task.Completed(task.ResultReference(decoded.Output, "")), nil
	case task.StateFailed:
		return task.Failed(task.FailureDetail(decoded.Failure, decoded.FailureCode)), nil
	}
	var progress float64
	if decoded.Progress != nil {
		progress = *decoded.Progress
	}
	return task.Processing(progress), nil
}

func (a *Adapter) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("X-Runway-Version", a.apiVersion)
}

// Ratio maps a generic aspect ratio onto Runway's pixel ratios. Unknown
// values are passed through so callers can use native ratios directly.
func Ratio(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "":
		return defaultRatio
	case "16:9", "landscape":
		return "1280:768"
	case "9:16", "portrait":
		return "768:1280"
	default:
		return strings.TrimSpace(aspect)
	}
}

// errorMessage accepts both the string and object forms Runway uses.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg := task.FirstNonEmpty(obj.Message, obj.Code); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(raw))
}
