package report

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seo-optimizer/competitor/compare"
	"github.com/seo-optimizer/competitor/crawler"
	"github.com/seo-optimizer/competitor/keywords"
)

// SiteCrawler crawls one site
type SiteCrawler interface {
	Crawl(ctx context.Context, seedURL string, opts crawler.Options) (*crawler.SiteReport, error)
}

// Usage receives counters for the statistics endpoint
type Usage interface {
	RecordCrawl(host string, pages, failed int, partial bool)
	RecordKeywordLoad(n int)
	RecordComparison()
}

// CrawlParams are the per-request crawl bounds. MaxDepth 0 fetches only
// the seed; MaxPages 0 keeps the service default. SitemapURL adds the
// pages a sitemap lists to the seed.
type CrawlParams struct {
	FollowLinks bool
	MaxDepth    int
	MaxPages    int
	SitemapURL  string
	Keywords    []string
	Progress    crawler.ProgressFunc
}

// Service runs the keyword, crawl and compare commands
type Service struct {
	crawler SiteCrawler
	base    crawler.Options
	topN    int
	usage   Usage
	log     logrus.FieldLogger
}

type Option func(*Service)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithUsage records every command in u
func WithUsage(u Usage) Option {
	return func(s *Service) { s.usage = u }
}

// WithTopKeywords sets the default top_keywords length
func WithTopKeywords(n int) Option {
	return func(s *Service) { s.topN = n }
}

// NewService returns a service crawling with c. base supplies every crawl
// option a request does not set.
func NewService(c SiteCrawler, base crawler.Options, opts ...Option) *Service {
	s := &Service{
		crawler: c,
		base:    base,
		topN:    DefaultTopKeywords,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KeywordReport builds the keyword report of ds. topN <= 0 uses the
// service default.
func (s *Service) KeywordReport(ds *keywords.Dataset, topN int) *Report {
	if topN <= 0 {
		topN = s.topN
	}
	return KeywordReport(ds, topN)
}

// LoadKeywords reads a keyword source from disk
func (s *Service) LoadKeywords(path string) (*keywords.Dataset, error) {
	ds, err := keywords.LoadFile(path)
	return s.loaded(ds, path, err)
}

// LoadKeywordsFrom reads an uploaded keyword source. name selects the
// format by its extension.
func (s *Service) LoadKeywordsFrom(r io.Reader, name string) (*keywords.Dataset, error) {
	ds, err := keywords.LoadReader(r, name)
	return s.loaded(ds, name, err)
}

func (s *Service) loaded(ds *keywords.Dataset, source string, err error) (*keywords.Dataset, error) {
	log := s.log.WithField("source", source)
	if err != nil {
		log.WithError(err).Warn("keyword source rejected")
		return nil, err
	}

	diag := ds.Diagnostics()
	log.WithFields(logrus.Fields{
		"keywords":     ds.Len(),
		"dropped_rows": diag.DroppedRows,
		"warnings":     len(diag.Warnings),
	}).Info("keywords loaded")
	for _, w := range diag.Warnings {
		log.Warn(w)
	}
	if s.usage != nil {
		s.usage.RecordKeywordLoad(ds.Len())
	}
	return ds, nil
}

// Crawl crawls seed and reports every page. A partial crawl is a
// successful report tagged partial; an invalid or unreachable seed is an
// input error.
func (s *Service) Crawl(ctx context.Context, seed string, p CrawlParams) (*Report, error) {
	opts := s.base
	opts.FollowLinks = p.FollowLinks
	opts.MaxDepth = p.MaxDepth
	opts.SitemapURL = p.SitemapURL
	if p.MaxPages > 0 {
		opts.MaxPages = p.MaxPages
	}
	if len(p.Keywords) > 0 {
		opts.Keywords = p.Keywords
	}
	opts.Progress = p.Progress

	site, err := s.crawl(ctx, seed, opts)
	if err != nil {
		return nil, err
	}

	r := newReport()
	r.Crawl = &Crawls{Site: site}
	r.Partial = site.Partial
	return r, nil
}

// Compare analyzes the two home pages concurrently and compares them.
// With a dataset, its top keywords drive the density comparison and the
// keyword sections are included.
func (s *Service) Compare(ctx context.Context, competitorURL, myURL string, ds *keywords.Dataset) (*Report, error) {
	opts := s.base
	opts.FollowLinks = false
	opts.MaxDepth = 0
	opts.SitemapURL = ""
	opts.Progress = nil
	if kws := compare.ComparedKeywords(ds); len(kws) > 0 {
		opts.Keywords = kws
	}

	var comp, mine *crawler.SiteReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		site, err := s.crawl(gctx, competitorURL, opts)
		if err != nil {
			return fmt.Errorf("competitor site: %w", err)
		}
		comp = site
		return nil
	})
	g.Go(func() error {
		site, err := s.crawl(gctx, myURL, opts)
		if err != nil {
			return fmt.Errorf("my site: %w", err)
		}
		mine = site
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := compare.Compare(comp.SeedPage(), mine.SeedPage(), ds)

	r := newReport()
	r.Comparison = &res
	r.Crawl = &Crawls{Competitor: comp, Mine: mine}
	r.Partial = comp.Partial || mine.Partial
	r.addKeywords(ds, s.topN)
	if ds != nil && len(res.KeywordDensity.Gaps) > 0 {
		targets := make([]string, len(res.KeywordDensity.Gaps))
		for i, gap := range res.KeywordDensity.Gaps {
			targets[i] = gap.Keyword
		}
		sugg := ds.Suggest(targets)
		r.Suggestions = &sugg
	}

	if s.usage != nil {
		s.usage.RecordComparison()
	}
	s.log.WithFields(logrus.Fields{
		"competitor":      competitorURL,
		"mine":            myURL,
		"recommendations": len(res.Recommendations),
		"partial":         r.Partial,
	}).Info("comparison finished")
	return r, nil
}

// crawl runs one crawl and records it. The site report is dropped when
// the crawl failed.
func (s *Service) crawl(ctx context.Context, seed string, opts crawler.Options) (*crawler.SiteReport, error) {
	site, err := s.crawler.Crawl(ctx, seed, opts)
	if site != nil && s.usage != nil {
		s.usage.RecordCrawl(site.Host, len(site.Pages), site.PagesFailed, site.Partial)
	}
	if err != nil {
		return nil, err
	}
	return site, nil
}
