package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mediarelay/internal/infra"
)

var (
	// ErrURLRequired is returned for blank source URLs.
	ErrURLRequired = errors.New("image: url is required")
	// ErrUnsupportedScheme is returned for anything other than http(s).
	ErrUnsupportedScheme = errors.New("image: only http and https urls are supported")
	// ErrHostNotAllowed is returned when the host is outside the allowlist.
	ErrHostNotAllowed = errors.New("image: host is not allowed")
	// ErrTooLarge is returned when the source exceeds the size cap.
	ErrTooLarge = errors.New("image: source exceeds size limit")
	// ErrNonPublicAddress is returned when a source resolves to a loopback,
	// private or link-local address.
	ErrNonPublicAddress = errors.New("image: address is not public")
	// ErrNotImage is returned when the source does not serve an image.
	ErrNotImage = errors.New("image: source is not an image")
	// ErrTooManyRedirects is returned after maxRedirects hops.
	ErrTooManyRedirects = errors.New("image: too many redirects")
)

const (
	defaultMaxBytes = 10 << 20
	maxRedirects    = 5
)

// FetchError reports a non-2xx answer from the source host.
type FetchError struct {
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("image: failed to fetch image (status %d)", e.Status)
}

// Options configures a Fetcher.
type Options struct {
	// AllowedHosts limits which hosts may be fetched. Empty allows any
	// public host.
	AllowedHosts   []string
	MaxBytes       int64
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Fetcher downloads remote images so browsers can use them without CORS.
type Fetcher struct {
	allowed    map[string]struct{}
	maxBytes   int64
	httpClient *http.Client
	logger     *infra.Logger
}

// Image is a downloaded source image.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

func NewFetcher(opts Options) *Fetcher {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var httpClient http.Client
	if opts.HTTPClient != nil {
		httpClient = *opts.HTTPClient
	} else {
		httpClient = http.Client{Timeout: timeout, Transport: publicTransport(timeout)}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	allowed := make(map[string]struct{}, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	f := &Fetcher{
		allowed:  allowed,
		maxBytes: maxBytes,
		logger:   logger,
	}
	httpClient.CheckRedirect = f.checkRedirect
	f.httpClient = &httpClient
	return f
}

// publicTransport refuses to connect to non-public addresses. The check runs
// on the resolved address, so DNS names pointing inside the network are
// caught as well.
func publicTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if !infra.IsPublicIP(net.ParseIP(host)) {
				return fmt.Errorf("%w: %s", ErrNonPublicAddress, host)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return transport
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return ErrTooManyRedirects
	}
	_, err := f.validate(req.URL.String())
	return err
}

// Fetch downloads rawURL once.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	parsed, err := f.validate(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("image: build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &FetchError{Status: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("image: read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	ct, err := contentType(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}
	img := &Image{Data: data, ContentType: ct}
	if cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	f.logger.Debug().
		Str("host", parsed.Hostname()).
		Int("bytes", len(data)).
		Str("content_type", img.ContentType).
		Msg("image: fetched source")
	return img, nil
}

func (f *Fetcher) validate(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("image: invalid url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, ErrUnsupportedScheme
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, fmt.Errorf("image: invalid url %q", rawURL)
	}
	if len(f.allowed) > 0 && !f.hostAllowed(host) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	if ip := net.ParseIP(host); ip != nil && !infra.IsPublicIP(ip) {
		return nil, fmt.Errorf("%w: %s", ErrNonPublicAddress, host)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrNonPublicAddress, host)
	}
	return parsed, nil
}

// hostAllowed matches exact hosts and subdomains of allowlisted hosts.
func (f *Fetcher) hostAllowed(host string) bool {
	for {
		if _, ok := f.allowed[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// contentType accepts image/* only. A missing or generic header falls back
// to sniffing the body.
func contentType(header string, data []byte) (string, error) {
	mediaType := ""
	if strings.TrimSpace(header) != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			mediaType = strings.ToLower(mt)
		}
	}
	if mediaType == "" || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mediaType)
	}
	return mediaType, nil
}
