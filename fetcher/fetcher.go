// Package fetcher issues single page requests for the crawler. It never
// retries; retry policy belongs to the caller.
package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// Fetcher retrieves one URL
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error)
}

// Response is a successfully fetched page
type Response struct {
	URL         string
	FinalURL    string
	Body        []byte
	StatusCode  int
	ContentType string
	Duration    time.Duration
}

// IsHTML reports whether the response declares (or defaults to) an HTML
// content type.
func (r *Response) IsHTML() bool {
	return isHTMLType(r.ContentType)
}

// Options controls HTTP fetching behaviour
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	Client       *http.Client
}

// HTTPFetcher implements Fetcher with net/http
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
}

// New constructs an HTTP fetcher using the provided options
func New(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "SEOAnalyzer/1.0"
	}

	client := opts.Client
	if client == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		// Per-request deadlines come from the context
		client = &http.Client{Transport: transport}
	}

	return &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Client exposes the underlying HTTP client for reuse (robots.txt fetches)
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch downloads url within timeout. Failures are returned as *Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: ConnectionError, URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &Error{Kind: HTTPError, URL: url, Status: resp.StatusCode}
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	out := &Response{
		URL:         url,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	// Non-HTML bodies are never analyzed, so they are not downloaded
	if !isHTMLType(out.ContentType) {
		out.Duration = time.Since(start)
		return out, nil
	}

	body, err := f.readBody(resp, out.ContentType)
	if errors.Is(err, errBodyTooLarge) {
		return nil, &Error{Kind: BodyTooLarge, URL: url, Err: err}
	}
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	out.Body = body
	out.Duration = time.Since(start)
	return out, nil
}

var errBodyTooLarge = errors.New("response body exceeds limit")

func (f *HTTPFetcher) readBody(resp *http.Response, contentType string) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	// The limit applies to the decoded bytes, before charset conversion
	raw, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w of %d bytes", errBodyTooLarge, f.maxBodyBytes)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return raw, nil
	}
	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	return body, nil
}

// isHTMLType reports whether contentType declares (or defaults to) HTML
func isHTMLType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" {
		return true
	}
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// classify maps a transport error to a failure kind. Cancellation of the
// parent context is kept visible through the wrapped error.
func classify(parent context.Context, url string, err error) *Error {
	if parent.Err() != nil {
		return &Error{Kind: ConnectionError, URL: url, Err: errors.Join(parent.Err(), err)}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: Timeout, URL: url, Err: err}
	}
	return &Error{Kind: ConnectionError, URL: url, Err: err}
}
