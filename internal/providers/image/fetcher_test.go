package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func stubClient(status int, header http.Header, body []byte) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body))}, nil
	})}
}

func TestFetchReturnsDataAndDimensions(t *testing.T) {
	data := pngBytes(t, 4, 3)
	f := NewFetcher(Options{HTTPClient: stubClient(http.StatusOK, http.Header{"Content-Type": []string{"image/png; charset=binary"}}, data)})

	img, err := f.Fetch(context.Background(), "https://cdn.example.com/a.png")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !bytes.Equal(img.Data, data) {
		t.Fatalf("data mismatch")
	}
	if img.ContentType != "image/png" {
		t.Fatalf("content type = %q", img.ContentType)
	}
	if img.Width != 4 || img.Height != 3 {
		t.Fatalf("dimensions = %dx%d", img.Width, img.Height)
	}
}

func TestFetchSniffsMissingContentType(t *testing.T) {
	for _, header := range []http.Header{{}, {"Content-Type": []string{"application/octet-stream"}}} {
		f := NewFetcher(Options{HTTPClient: stubClient(http.StatusOK, header, pngBytes(t, 1, 1))})
		img, err := f.Fetch(context.Background(), "http://cdn.example.com/a")
		if err != nil {
			t.Fatalf("Fetch returned error: %v", err)
		}
		if img.ContentType != "image/png" {
			t.Fatalf("content type = %q, want image/png", img.ContentType)
		}
	}
}

func TestFetchRejectsNonImages(t *testing.T) {
	tests := map[string]struct {
		header http.Header
		body   []byte
	}{
		"text header":       {header: http.Header{"Content-Type": []string{"text/plain"}}, body: []byte("internal-metadata-secret")},
		"json header":       {header: http.Header{"Content-Type": []string{"application/json"}}, body: []byte(`{"token":"x"}`)},
		"sniffed as text":   {header: http.Header{}, body: []byte("raw")},
		"octet-stream text": {header: http.Header{"Content-Type": []string{"application/octet-stream"}}, body: []byte("<html></html>")},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := NewFetcher(Options{HTTPClient: stubClient(http.StatusOK, tc.header, tc.body)})
			if _, err := f.Fetch(context.Background(), "https://cdn.example.com/a"); !errors.Is(err, ErrNotImage) {
				t.Fatalf("err = %v, want ErrNotImage", err)
			}
		})
	}
}

func TestFetchRejections(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		url     string
		wantErr error
	}{
		{name: "blank", url: "  ", wantErr: ErrURLRequired},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: ErrUnsupportedScheme},
		{name: "data scheme", url: "data:image/png;base64,AAAA", wantErr: ErrUnsupportedScheme},
		{name: "host outside allowlist", opts: Options{AllowedHosts: []string{"cdn.example.com"}}, url: "https://evil.test/a.png", wantErr: ErrHostNotAllowed},
		{name: "too large", opts: Options{MaxBytes: 2}, url: "https://cdn.example.com/a.png", wantErr: ErrTooLarge},
		{name: "loopback", url: "http://127.0.0.1:43003/latest/meta-data", wantErr: ErrNonPublicAddress},
		{name: "metadata endpoint", url: "http://169.254.169.254/latest/meta-data", wantErr: ErrNonPublicAddress},
		{name: "private range", url: "http://10.0.0.8/a.png", wantErr: ErrNonPublicAddress},
		{name: "ipv6 loopback", url: "http://[::1]/a.png", wantErr: ErrNonPublicAddress},
		{name: "localhost name", url: "http://localhost:8080/a.png", wantErr: ErrNonPublicAddress},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.HTTPClient = stubClient(http.StatusOK, nil, []byte("abcdef"))
			_, err := NewFetcher(tc.opts).Fetch(context.Background(), tc.url)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestFetchAllowsSubdomains(t *testing.T) {
	f := NewFetcher(Options{
		AllowedHosts: []string{"Example.com"},
		HTTPClient:   stubClient(http.StatusOK, nil, pngBytes(t, 1, 1)),
	})
	if _, err := f.Fetch(context.Background(), "https://images.cdn.example.com/a.png"); err != nil {
		t.Fatalf("subdomain should be allowed: %v", err)
	}
	if _, err := f.Fetch(context.Background(), "https://notexample.com/a.png"); !errors.Is(err, ErrHostNotAllowed) {
		t.Fatalf("err = %v, want ErrHostNotAllowed", err)
	}
}

func TestFetchUpstreamStatus(t *testing.T) {
	f := NewFetcher(Options{HTTPClient: stubClient(http.StatusNotFound, nil, []byte(strings.Repeat("x", 4)))})
	_, err := f.Fetch(context.Background(), "https://cdn.example.com/missing.png")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want FetchError 404", err)
	}
}

func TestFetchRevalidatesRedirects(t *testing.T) {
	tests := map[string]struct {
		opts     Options
		location string
		wantErr  error
	}{
		"to metadata endpoint": {location: "http://169.254.169.254/latest/meta-data", wantErr: ErrNonPublicAddress},
		"to loopback":          {location: "http://127.0.0.1/admin", wantErr: ErrNonPublicAddress},
		"off allowlist":        {opts: Options{AllowedHosts: []string{"cdn.example.com"}}, location: "https://evil.test/a.png", wantErr: ErrHostNotAllowed},
		"to file scheme":       {location: "file:///etc/passwd", wantErr: ErrUnsupportedScheme},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var hosts []string
			tc.opts.HTTPClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				hosts = append(hosts, r.URL.Host)
				return &http.Response{
					StatusCode: http.StatusFound,
					Header:     http.Header{"Location": []string{tc.location}},
					Body:       io.NopCloser(strings.NewReader("")),
				}, nil
			})}
			_, err := NewFetcher(tc.opts).Fetch(context.Background(), "https://cdn.example.com/a.png")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if len(hosts) != 1 {
				t.Fatalf("requested hosts = %v, want only the first hop", hosts)
			}
		})
	}
}

func TestFetchStopsRedirectLoops(t *testing.T) {
	f := NewFetcher(Options{HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusFound,
			Header:     http.Header{"Location": []string{"https://cdn.example.com/again.png"}},
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	})}})
	if _, err := f.Fetch(context.Background(), "https://cdn.example.com/a.png"); !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("err = %v, want ErrTooManyRedirects", err)
	}
}

func TestPublicTransportRefusesInternalDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("internal-metadata-secret"))
	}))
	defer srv.Close()

	conn, err := publicTransport(time.Second).DialContext(context.Background(), "tcp", srv.Listener.Addr().String())
	if err == nil {
		conn.Close()
		t.Fatal("dial to loopback succeeded")
	}
	if !errors.Is(err, ErrNonPublicAddress) {
		t.Fatalf("err = %v, want ErrNonPublicAddress", err)
	}
}

func TestDefaultFetcherRefusesLoopbackServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("internal-metadata-secret"))
	}))
	defer srv.Close()

	if _, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL+"/latest/meta-data"); !errors.Is(err, ErrNonPublicAddress) {
		t.Fatalf("err = %v, want ErrNonPublicAddress", err)
	}
}
