// Package crawler walks one site breadth-first and analyzes every page it
// reaches. All crawl state lives in a single Crawl call, so concurrent
// crawls of different sites never share anything but the fetcher.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/competitor/analyzer"
	"github.com/seo-optimizer/competitor/errs"
	"github.com/seo-optimizer/competitor/fetcher"
)

// Crawl defaults
const (
	DefaultMaxDepth       = 2
	DefaultMaxPages       = 50
	DefaultConcurrency    = 4
	DefaultRequestTimeout = 10 * time.Second
	DefaultTimeout        = 2 * time.Minute
	DefaultRetries        = 2
	DefaultRetryDelay     = 250 * time.Millisecond
	DefaultUserAgent      = "SEOAnalyzer/1.0"
)

// Event describes one completed page
type Event struct {
	URL       string `json:"url"`
	Depth     int    `json:"depth"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Queued    int    `json:"queued"`
	Warnings  int    `json:"warnings"`
}

// ProgressFunc receives an Event after every completed page. Calls are
// serialized; the callback should return quickly.
type ProgressFunc func(Event)

// Options bounds a single crawl
type Options struct {
	MaxDepth    int
	MaxPages    int
	FollowLinks bool

	// RequestTimeout applies to each fetch, Timeout to the whole crawl
	RequestTimeout time.Duration
	Timeout        time.Duration

	Concurrency       int
	Retries           int
	RetryDelay        time.Duration
	RespectRobots     bool
	RequestsPerSecond float64

	// SitemapURL, when set, seeds the frontier with the same-site pages
	// the sitemap lists, at depth 0
	SitemapURL string

	// Passed through to the content analyzer
	Keywords     []string
	MinWordCount int

	Progress ProgressFunc
}

// DefaultOptions returns the options used when the caller has no opinion
func DefaultOptions() Options {
	return Options{
		MaxDepth:       DefaultMaxDepth,
		MaxPages:       DefaultMaxPages,
		FollowLinks:    true,
		RequestTimeout: DefaultRequestTimeout,
		Timeout:        DefaultTimeout,
		Concurrency:    DefaultConcurrency,
		Retries:        DefaultRetries,
		RetryDelay:     DefaultRetryDelay,
		RespectRobots:  true,
		MinWordCount:   analyzer.DefaultMinWordCount,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.RequestTimeout > o.Timeout {
		o.RequestTimeout = o.Timeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Crawler crawls sites through a Fetcher
type Crawler struct {
	fetcher      fetcher.Fetcher
	robotsClient *http.Client
	userAgent    string
	log          logrus.FieldLogger
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithLogger sets the logger used for crawl diagnostics
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Crawler) {
		c.log = log
	}
}

// WithRobotsClient sets the HTTP client used to download robots.txt and
// sitemaps
func WithRobotsClient(client *http.Client) Option {
	return func(c *Crawler) {
		c.robotsClient = client
	}
}

// WithUserAgent sets the agent name matched against robots.txt groups
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		c.userAgent = ua
	}
}

// New creates a crawler on top of f
func New(f fetcher.Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:   f,
		userAgent: DefaultUserAgent,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.robotsClient == nil {
		c.robotsClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// run is the state of one Crawl call
type run struct {
	opts     Options
	seed     string
	fetcher  fetcher.Fetcher
	analyzer *analyzer.Analyzer
	frontier *frontier
	robots   *robotsAgent
	limiter  *hostLimiter
	log      logrus.FieldLogger
	dropped  atomic.Bool

	// hosts counted as the crawled site: the seed's, plus the one the seed
	// redirects to
	hostMu sync.RWMutex
	hosts  map[string]bool

	mu        sync.Mutex
	report    *SiteReport
	completed int
	failed    int
}

// Crawl walks the site of seedURL breadth-first. The report is returned
// even when the crawl stops early; in that case it is tagged partial. An
// error is returned for an invalid seed, and together with the report when
// the seed itself could not be fetched.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, opts Options) (*SiteReport, error) {
	seed, err := analyzer.NormalizeURL(seedURL)
	if err != nil {
		return nil, errs.Input("crawl", fmt.Errorf("seed url %q: %w", seedURL, err))
	}
	opts = opts.withDefaults()
	if opts.SitemapURL != "" {
		sitemap, err := analyzer.NormalizeURL(opts.SitemapURL)
		if err != nil {
			return nil, errs.Input("crawl", fmt.Errorf("sitemap url %q: %w", opts.SitemapURL, err))
		}
		opts.SitemapURL = sitemap
	}

	report := &SiteReport{
		ID:        uuid.NewString(),
		Seed:      seed,
		Host:      analyzer.HostOf(seed),
		Pages:     make(map[string]*analyzer.PageData),
		StartedAt: time.Now(),
	}

	r := &run{
		opts:    opts,
		seed:    seed,
		hosts:   map[string]bool{report.Host: true},
		fetcher: c.fetcher,
		analyzer: analyzer.New(analyzer.Options{
			Keywords:     opts.Keywords,
			MinWordCount: opts.MinWordCount,
		}),
		frontier: newFrontier(opts.MaxPages),
		limiter:  newHostLimiter(opts.RequestsPerSecond),
		log:      c.log.WithFields(logrus.Fields{"crawl_id": report.ID, "seed": seed}),
		report:   report,
	}
	if opts.RespectRobots {
		r.robots = newRobotsAgent(c.robotsClient, c.userAgent, opts.RequestTimeout)
	}

	r.log.WithFields(logrus.Fields{
		"max_depth":   opts.MaxDepth,
		"max_pages":   opts.MaxPages,
		"concurrency": opts.Concurrency,
	}).Info("crawl started")

	crawlCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	r.frontier.push(task{url: seed, depth: 0})
	stopWatch := context.AfterFunc(crawlCtx, r.frontier.stop)
	defer stopWatch()

	if opts.SitemapURL != "" {
		sm := &sitemapReader{client: c.robotsClient, userAgent: c.userAgent, timeout: opts.RequestTimeout}
		r.seedFromSitemap(crawlCtx, sm)
	}

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(crawlCtx)
		}()
	}
	wg.Wait()

	rejected, interrupted := r.frontier.state()
	switch {
	case (interrupted || r.dropped.Load()) && ctx.Err() != nil:
		report.Partial, report.StopReason = true, StopCancelled
	case interrupted || r.dropped.Load():
		report.Partial, report.StopReason = true, StopTimeout
	case rejected:
		report.Partial, report.StopReason = true, StopMaxPages
	}

	report.FinishedAt = time.Now()
	report.finalize()

	r.log.WithFields(logrus.Fields{
		"pages":       len(report.Pages),
		"failed":      report.PagesFailed,
		"partial":     report.Partial,
		"stop_reason": report.StopReason,
		"duration":    report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("crawl finished")

	if report.Succeeded() == 0 {
		switch sp := report.SeedPage(); {
		case sp == nil:
			return report, errs.Input("crawl", fmt.Errorf("%s: not fetched before the crawl stopped: %w", seed, errs.ErrSeedUnreachable))
		case sp.Failed():
			return report, errs.Input("crawl", fmt.Errorf("%s: %w", seed, errs.ErrSeedUnreachable))
		}
	}
	return report, nil
}

// sameSite reports whether host belongs to the crawled site
func (r *run) sameSite(host string) bool {
	r.hostMu.RLock()
	defer r.hostMu.RUnlock()
	return r.hosts[host]
}

// followRedirect adopts the host the seed redirected to, so that the
// site's links are followed, and marks the final URL as visited.
func (r *run) followRedirect(finalURL string) {
	final, err := analyzer.NormalizeURL(finalURL)
	if err != nil || final == r.seed {
		return
	}
	r.frontier.markSeen(final)

	r.hostMu.Lock()
	r.hosts[analyzer.HostOf(final)] = true
	r.hostMu.Unlock()

	r.mu.Lock()
	r.report.RedirectedTo = final
	r.mu.Unlock()
	r.log.WithField("final_url", final).Info("seed redirected")
}

// seedFromSitemap queues the same-site pages listed by the sitemap. It
// runs before the workers start.
func (r *run) seedFromSitemap(ctx context.Context, sm *sitemapReader) {
	log := r.log.WithField("sitemap", r.opts.SitemapURL)
	added := 0
	for _, loc := range sm.locs(ctx, r.opts.SitemapURL, log) {
		u, err := analyzer.NormalizeURL(loc)
		if err != nil || !r.sameSite(analyzer.HostOf(u)) {
			continue
		}
		if r.frontier.push(task{url: u, depth: 0}) == pushAdded {
			added++
		}
	}
	r.report.SitemapPages = added
	log.WithField("pages", added).Info("sitemap pages queued")
}

func (r *run) worker(ctx context.Context) {
	for {
		t, ok := r.frontier.pop()
		if !ok {
			return
		}

		page, links := r.visit(ctx, t)
		if page != nil {
			r.record(page)
			if r.opts.FollowLinks && t.depth < r.opts.MaxDepth {
				for _, link := range links {
					r.frontier.push(task{url: link, depth: t.depth + 1})
				}
			}
		}
		r.frontier.done()
	}
}

// visit fetches and analyzes one URL. It returns a nil page when the
// crawl was cut off while the page was in flight.
func (r *run) visit(ctx context.Context, t task) (*analyzer.PageData, []string) {
	log := r.log.WithFields(logrus.Fields{"url": t.url, "depth": t.depth})

	if r.robots != nil {
		target, err := url.Parse(t.url)
		if err == nil && !r.robots.allowed(ctx, target) {
			if ctx.Err() != nil {
				r.dropped.Store(true)
				return nil, nil
			}
			log.Info("skipping page disallowed by robots.txt")
			return analyzer.Placeholder(t.url, t.depth, analyzer.WarnRobotsDisallowed, "disallowed by robots.txt"), nil
		}
	}

	resp, err := r.fetch(ctx, t.url, log)
	if err == nil && t.url == r.seed {
		r.followRedirect(resp.FinalURL)
	}
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errNoTimeLeft) {
			log.Debug("dropping page cut off by crawl deadline")
			r.dropped.Store(true)
			return nil, nil
		}
		log.WithError(err).Warn("page fetch failed")
		page := analyzer.Placeholder(t.url, t.depth, analyzer.WarnFetchFailed, failureDetail(err))
		var fe *fetcher.Error
		if errors.As(err, &fe) {
			page.StatusCode = fe.Status
		}
		return page, nil
	}

	if !resp.IsHTML() {
		page := analyzer.Placeholder(t.url, t.depth, analyzer.WarnNonHTML, resp.ContentType)
		page.StatusCode = resp.StatusCode
		return page, nil
	}

	page, err := r.analyzer.Analyze(resp.Body, resp.FinalURL)
	if err != nil {
		log.WithError(err).Warn("page analysis failed")
		return analyzer.Placeholder(t.url, t.depth, analyzer.WarnFetchFailed, err.Error()), nil
	}
	page.URL = t.url
	page.Depth = t.depth
	page.StatusCode = resp.StatusCode

	links := make([]string, 0, len(page.InternalLinks))
	for _, link := range page.InternalLinks {
		if r.sameSite(analyzer.HostOf(link)) {
			links = append(links, link)
		}
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"words":    page.WordCount,
		"links":    len(links),
		"warnings": len(page.Warnings),
	}).Debug("page analyzed")
	return page, links
}

var errNoTimeLeft = errors.New("crawl deadline leaves no time for request")

// fetch retries timeouts, connection errors and server errors with
// exponential backoff.
func (r *run) fetch(ctx context.Context, target string, log logrus.FieldLogger) (*fetcher.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := r.opts.RetryDelay * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		if err := r.limiter.wait(ctx, analyzer.HostOf(target)); err != nil {
			return nil, fmt.Errorf("%w: %v", errNoTimeLeft, err)
		}

		resp, err := r.fetcher.Fetch(ctx, target, r.opts.RequestTimeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var fe *fetcher.Error
		if ctx.Err() != nil || !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
		log.WithError(err).WithField("attempt", attempt+1).Debug("retrying fetch")
	}
	return nil, lastErr
}

func (r *run) record(page *analyzer.PageData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Pages[page.URL] = page
	r.completed++
	if page.Failed() {
		r.failed++
	}

	if r.opts.Progress != nil {
		r.opts.Progress(Event{
			URL:       page.URL,
			Depth:     page.Depth,
			Completed: r.completed,
			Failed:    r.failed,
			Queued:    r.frontier.size(),
			Warnings:  len(page.Warnings),
		})
	}
}

// failureDetail renders a fetch failure for the fetch_failed warning
func failureDetail(err error) string {
	var fe *fetcher.Error
	if !errors.As(err, &fe) {
		return err.Error()
	}
	if fe.Kind == fetcher.HTTPError {
		return fmt.Sprintf("%s: status %d", fe.Kind, fe.Status)
	}
	if fe.Err != nil {
		return fmt.Sprintf("%s: %v", fe.Kind, fe.Err)
	}
	return string(fe.Kind)
}
