package crawler

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

const (
	maxSitemapBytes   = 10 << 20
	maxSitemapFetches = 25
)

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// sitemapDoc decodes both a <urlset> and a <sitemapindex>
type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

// sitemapReader downloads sitemaps and follows sitemap indexes
type sitemapReader struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// locs returns the page URLs listed under root, breadth-first through
// nested indexes. A sitemap that fails to load is skipped.
func (s *sitemapReader) locs(ctx context.Context, root string, log logrus.FieldLogger) []string {
	queue := []string{root}
	queued := map[string]bool{root: true}
	var pages []string

	for fetched := 0; len(queue) > 0 && fetched < maxSitemapFetches; fetched++ {
		next := queue[0]
		queue = queue[1:]

		doc, err := s.fetch(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return pages
			}
			log.WithError(err).WithField("url", next).Warn("sitemap skipped")
			continue
		}
		for _, sm := range doc.Sitemaps {
			loc := strings.TrimSpace(sm.Loc)
			if loc != "" && !queued[loc] {
				queued[loc] = true
				queue = append(queue, loc)
			}
		}
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
	}
	return pages
}

func (s *sitemapReader) fetch(ctx context.Context, sitemapURL string) (*sitemapDoc, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build sitemap request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch sitemap: http status %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.HasSuffix(strings.ToLower(req.URL.Path), ".gz") || strings.Contains(ct, "gzip") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip sitemap: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	dec := xml.NewDecoder(io.LimitReader(body, maxSitemapBytes))
	dec.CharsetReader = charset.NewReaderLabel
	var doc sitemapDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return &doc, nil
}
