package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer srv.Close()

	f := New(Options{UserAgent: "test-agent"})
	resp, err := f.Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><title>ok</title></html>", string(resp.Body))
	assert.True(t, resp.IsHTML())
	assert.Equal(t, srv.URL, resp.FinalURL)
}

func TestFetchDecodesContentEncodings(t *testing.T) {
	const page = "<html><body>compressed body</body></html>"

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(page))
	require.NoError(t, gw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(page))
	require.NoError(t, bw.Close())

	encoded := map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()}

	for enc, payload := range encoded {
		t.Run(enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Header().Set("Content-Encoding", enc)
				_, _ = w.Write(payload)
			}))
			defer srv.Close()

			resp, err := New(Options{}).Fetch(context.Background(), srv.URL, time.Second)
			require.NoError(t, err)
			assert.Equal(t, page, string(resp.Body))
		})
	}
}

func TestFetchConvertsCharsetToUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>caf\xe9</p>"))
	}))
	defer srv.Close()

	resp, err := New(Options{}).Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "<p>café</p>", string(resp.Body))
}

func TestFetchHTTPErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), srv.URL, time.Second)
	require.Error(t, err)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, HTTPError, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.False(t, fe.Retryable())
}

func TestFetchServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), srv.URL, time.Second)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Retryable())
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(Options{}).Fetch(context.Background(), srv.URL, 50*time.Millisecond)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, Timeout, fe.Kind)
	assert.True(t, fe.Retryable())
}

func TestFetchParentCancellationIsVisible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Fetch(ctx, "http://127.0.0.1:1/", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.Retryable())
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), addr, time.Second)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ConnectionError, fe.Kind)
}

func TestFetchEnforcesBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	_, err := New(Options{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL, time.Second)
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, BodyTooLarge, fe.Kind)
	assert.False(t, fe.Retryable(), "the same body would be too large again")
}

func TestFetchSkipsNonHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		chunk := bytes.Repeat([]byte("x"), 64*1024)
		for i := 0; i < 96; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	resp, err := New(Options{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.False(t, resp.IsHTML())
	assert.Empty(t, resp.Body)
	assert.Equal(t, "application/pdf", resp.ContentType)
}

func TestResponseIsHTML(t *testing.T) {
	assert.True(t, (&Response{ContentType: "text/html; charset=utf-8"}).IsHTML())
	assert.True(t, (&Response{ContentType: "application/xhtml+xml"}).IsHTML())
	assert.True(t, (&Response{}).IsHTML())
	assert.False(t, (&Response{ContentType: "application/pdf"}).IsHTML())
}
