package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"mediarelay/internal/task"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("veo: api key is required")
	// ErrInvalidOperation is returned for handles that are not a model operation name.
	ErrInvalidOperation = errors.New("veo: invalid operation name")
)

var operationName = regexp.MustCompile(`^models/[^/]+/operations/[^/?#]+$`)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "veo-2.0-generate-001"
)

// Options controls how the Veo client is configured.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client drives Veo long-running video operations on the Gemini API. The
// operation name doubles as the task handle.
type Client struct {
	apiKey  string
	baseURL string
	model   string
}

var _ task.Adapter = (*Client)(nil)

type predictRequest struct {
	Instances  []instance  `json:"instances"`
	Parameters *parameters `json:"parameters,omitempty"`
}

type instance struct {
	Prompt string    `json:"prompt"`
	Image  *imageRef `json:"image,omitempty"`
}

type imageRef struct {
	GCSURI   string `json:"gcsUri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type parameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		ProgressPercent *float64 `json:"progressPercent"`
	} `json:"metadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Veo client with sane defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		model:   model,
	}
}

func (c *Client) Name() string { return "veo" }

// Model returns the configured Veo model identifier.
func (c *Client) Model() string { return c.model }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

func (c *Client) CreateRequest(ctx context.Context, spec task.JobSpec) (*http.Request, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	inst := instance{Prompt: strings.TrimSpace(spec.Prompt)}
	if img := strings.TrimSpace(spec.ImageURL); img != "" {
		if !strings.HasPrefix(img, "gs://") {
			return nil, fmt.Errorf("veo: image input must be a gs:// uri, got %q", img)
		}
		inst.Image = &imageRef{GCSURI: img, MimeType: mimeFromPath(img)}
	}
	payload := predictRequest{Instances: []instance{inst}}
	if ratio, seconds := AspectRatio(spec.AspectRatio), spec.DurationSeconds; ratio != "" || seconds > 0 {
		payload.Parameters = &parameters{AspectRatio: ratio, DurationSeconds: seconds}
	}
	model := c.model
	if m := strings.TrimSpace(spec.Model); m != "" {
		model = m
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("veo: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("veo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

func (c *Client) ParseCreated(body []byte) (task.Handle, error) {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return "", task.Rejected(apiErr.Error.Message, body)
	}
	var op operation
	if err := json.Unmarshal(body, &op); err != nil {
		return "", fmt.Errorf("veo: decode operation: %w", err)
	}
	name := strings.TrimSpace(op.Name)
	if name != "" && !operationName.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, name)
	}
	return task.Handle(name), nil
}

func (c *Client) StatusRequest(ctx context.Context, h task.Handle) (*http.Request, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	name := strings.TrimSpace(h.String())
	if !operationName.MatchString(name) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("veo: build status request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

func (c *Client) ParseStatus(body []byte) (task.Status, error) {
	var op operation
	if err := json.Unmarshal(body, &op); err != nil {
		return task.Status{}, fmt.Errorf("veo: decode operation: %w", err)
	}
	if !op.Done {
		var progress float64
		if p := op.Metadata.ProgressPercent; p != nil {
			progress = *p / 100
		}
		return task.Processing(progress), nil
	}
	if op.Error != nil {
		code := ""
		if op.Error.Code != 0 {
			code = fmt.Sprintf("code %d", op.Error.Code)
		}
		return task.Failed(task.FailureDetail(op.Error.Message, code)), nil
	}
	gen := op.Response.GenerateVideoResponse
	uris := make([]string, 0, len(gen.GeneratedSamples))
	for _, s := range gen.GeneratedSamples {
		uris = append(uris, s.Video.URI)
	}
	if uri := task.ResultReference(uris, ""); uri != "" {
		return task.Completed(uri), nil
	}
	if len(gen.RAIMediaFilteredReasons) > 0 {
		return task.Failed(task.FailureDetail(gen.RAIMediaFilteredReasons...)), nil
	}
	return task.Completed(""), nil
}

// AspectRatio maps generic ratios onto the two Veo supports. Unsupported
// values are dropped so the model default applies.
func AspectRatio(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9", "landscape", "1280:768":
		return "16:9"
	case "9:16", "portrait", "768:1280":
		return "9:16"
	default:
		return ""
	}
}

func mimeFromPath(p string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(p), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(p), ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
