package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/competitor/analyzer"
	"github.com/seo-optimizer/competitor/compare"
	"github.com/seo-optimizer/competitor/crawler"
	"github.com/seo-optimizer/competitor/errs"
	"github.com/seo-optimizer/competitor/fetcher"
	"github.com/seo-optimizer/competitor/keywords"
	"github.com/seo-optimizer/competitor/logging"
)

// fakeCrawler returns canned reports and remembers the options it got
type fakeCrawler struct {
	mu      sync.Mutex
	pages   map[string]*analyzer.PageData
	errs    map[string]error
	partial map[string]bool
	opts    []crawler.Options
	// when set, every call waits until this many calls are in flight
	barrier *sync.WaitGroup
}

func (f *fakeCrawler) Crawl(ctx context.Context, seed string, opts crawler.Options) (*crawler.SiteReport, error) {
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.barrier != nil {
		f.barrier.Done()
		done := make(chan struct{})
		go func() {
			f.barrier.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			return nil, errors.New("crawls did not run concurrently")
		}
	}

	if err := f.errs[seed]; err != nil {
		return nil, err
	}
	page := f.pages[seed]
	if page == nil {
		page = &analyzer.PageData{URL: seed}
	}
	return &crawler.SiteReport{
		Seed:    seed,
		Host:    analyzer.HostOf(seed),
		Pages:   map[string]*analyzer.PageData{seed: page},
		Partial: f.partial[seed],
	}, nil
}

type usageSpy struct {
	mu          sync.Mutex
	crawls      []string
	loads       []int
	comparisons int
}

func (u *usageSpy) RecordCrawl(host string, _, _ int, _ bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.crawls = append(u.crawls, host)
}

func (u *usageSpy) RecordKeywordLoad(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.loads = append(u.loads, n)
}

func (u *usageSpy) RecordComparison() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.comparisons++
}

func notepadDataset(t *testing.T) *keywords.Dataset {
	t.Helper()
	ds, err := keywords.Load(keywords.Table{
		Header: []string{"Keyword", "Volume", "Organic traffic", "Paid traffic", "Average position"},
		Rows: [][]string{
			{"notepad", "424550", "58525", "0", "2.20"},
			{"online notepad", "201890", "49993", "0", "15.2"},
			{"text editor online", "12700", "300", "0", "12.5"},
			{"notepad online free", "900", "50", "0", "14"},
		},
	})
	require.NoError(t, err)
	return ds
}

func TestKeywordReport(t *testing.T) {
	ds := notepadDataset(t)
	r := KeywordReport(ds, 2)

	require.NotNil(t, r.SummaryStats)
	assert.Equal(t, 4, r.SummaryStats.TotalKeywords)
	require.Len(t, r.TopKeywords, 2)
	assert.Equal(t, TopKeyword{Keyword: "notepad", Volume: 424550, Traffic: 58525, Position: 2.2}, r.TopKeywords[0])
	require.NotNil(t, r.KeywordGaps)
	assert.Len(t, r.KeywordGaps.HighVolume, 2)
	assert.Len(t, r.KeywordGaps.QuickWins, 1)
	require.NotNil(t, r.DataQuality)
	assert.Nil(t, r.Comparison)
	assert.False(t, r.Partial)
	assert.NotEmpty(t, r.ID)
}

func TestKeywordReportJSONShape(t *testing.T) {
	out, err := json.Marshal(KeywordReport(notepadDataset(t), 0))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	for _, key := range []string{"summary_stats", "top_keywords", "keyword_gaps", "data_quality", "partial"} {
		assert.Contains(t, doc, key)
	}
	assert.NotContains(t, doc, "comparison")

	var gapsDoc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc["keyword_gaps"], &gapsDoc))
	for _, key := range []string{"high_volume_opportunities", "quick_wins", "low_competition", "position_improvement_targets"} {
		assert.Contains(t, gapsDoc, key)
	}
}

func TestServiceKeywordReportUsesDefaultTopN(t *testing.T) {
	svc := NewService(&fakeCrawler{}, crawler.DefaultOptions(), WithTopKeywords(1), WithLogger(logging.Discard()))
	assert.Len(t, svc.KeywordReport(notepadDataset(t), 0).TopKeywords, 1)
	assert.Len(t, svc.KeywordReport(notepadDataset(t), 3).TopKeywords, 3)
}

func TestLoadKeywords(t *testing.T) {
	usage := &usageSpy{}
	svc := NewService(&fakeCrawler{}, crawler.DefaultOptions(), WithUsage(usage), WithLogger(logging.Discard()))

	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("Keyword,Volume\nnotepad,10\n,5\n"), 0o644))

	ds, err := svc.LoadKeywords(path)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 1, ds.Diagnostics().DroppedRows)
	assert.Equal(t, []int{1}, usage.loads)

	_, err = svc.LoadKeywords(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errs.IsInput(err))

	_, err = svc.LoadKeywordsFrom(strings.NewReader("Volume\n10\n"), "upload.csv")
	assert.True(t, errs.IsInput(err), "no Keyword column")
	assert.Len(t, usage.loads, 1, "failed loads are not counted")
}

func TestServiceCrawlAppliesParams(t *testing.T) {
	fc := &fakeCrawler{partial: map[string]bool{"https://a.example/": true}}
	base := crawler.DefaultOptions()
	base.MaxPages = 99
	svc := NewService(fc, base, WithLogger(logging.Discard()))

	r, err := svc.Crawl(context.Background(), "https://a.example/", CrawlParams{FollowLinks: false, MaxDepth: 0})
	require.NoError(t, err)
	assert.True(t, r.Partial)
	require.NotNil(t, r.Crawl)
	assert.NotNil(t, r.Crawl.Site)

	require.Len(t, fc.opts, 1)
	assert.False(t, fc.opts[0].FollowLinks)
	assert.Equal(t, 0, fc.opts[0].MaxDepth)
	assert.Equal(t, 99, fc.opts[0].MaxPages, "unset MaxPages keeps the default")
	assert.Equal(t, base.Timeout, fc.opts[0].Timeout)

	assert.Empty(t, fc.opts[0].SitemapURL)

	_, err = svc.Crawl(context.Background(), "https://a.example/", CrawlParams{
		FollowLinks: true, MaxDepth: 3, MaxPages: 7, SitemapURL: "https://a.example/sitemap.xml",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, fc.opts[1].MaxPages)
	assert.Equal(t, 3, fc.opts[1].MaxDepth)
	assert.Equal(t, "https://a.example/sitemap.xml", fc.opts[1].SitemapURL)
}

func TestServiceCompareRunsCrawlsConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	comp := "https://competitor.example/"
	mine := "https://mine.example/"
	fc := &fakeCrawler{
		barrier: &barrier,
		pages: map[string]*analyzer.PageData{
			comp: {URL: comp, WordCount: 900, KeywordDensity: map[string]int{"notepad": 6, "online notepad": 3}},
			mine: {URL: mine, WordCount: 400, KeywordDensity: map[string]int{"notepad": 2}},
		},
		partial: map[string]bool{mine: true},
	}
	usage := &usageSpy{}
	svc := NewService(fc, crawler.DefaultOptions(), WithUsage(usage), WithLogger(logging.Discard()))

	ds := notepadDataset(t)
	r, err := svc.Compare(context.Background(), comp, mine, ds)
	require.NoError(t, err)

	require.NotNil(t, r.Comparison)
	assert.True(t, r.Partial, "either side partial makes the report partial")
	d, ok := r.Comparison.Delta(compare.FieldWordCount)
	require.True(t, ok)
	assert.Equal(t, 500, d.Difference)
	d, ok = r.Comparison.Delta(compare.DensityField("notepad"))
	require.True(t, ok)
	assert.Equal(t, 4, d.Difference)

	require.Len(t, fc.opts, 2)
	for _, o := range fc.opts {
		assert.False(t, o.FollowLinks)
		assert.Equal(t, 0, o.MaxDepth)
		assert.Equal(t, compare.ComparedKeywords(ds), o.Keywords)
	}

	require.NotNil(t, r.SummaryStats, "dataset sections are included")
	require.NotNil(t, r.Suggestions)
	assert.NotEmpty(t, r.Suggestions.Primary)
	assert.Equal(t, r.Crawl.Competitor.Seed, comp)
	assert.Equal(t, 1, usage.comparisons)
	assert.ElementsMatch(t, []string{"competitor.example", "mine.example"}, usage.crawls)
}

func TestServiceCompareWithoutDataset(t *testing.T) {
	svc := NewService(&fakeCrawler{}, crawler.DefaultOptions(), WithLogger(logging.Discard()))
	r, err := svc.Compare(context.Background(), "https://a.example/", "https://b.example/", nil)
	require.NoError(t, err)
	assert.NotNil(t, r.Comparison)
	assert.Nil(t, r.SummaryStats)
	assert.Nil(t, r.Suggestions)
	assert.Len(t, r.Comparison.Deltas, 9)
}

func TestServiceCompareInputError(t *testing.T) {
	mine := "https://mine.example/"
	seedErr := errs.Input("crawl", fmt.Errorf("%s: %w", mine, errs.ErrSeedUnreachable))
	svc := NewService(&fakeCrawler{errs: map[string]error{mine: seedErr}}, crawler.DefaultOptions(), WithLogger(logging.Discard()))

	r, err := svc.Compare(context.Background(), "https://competitor.example/", mine, nil)
	assert.Nil(t, r)
	require.Error(t, err)
	assert.True(t, errs.IsInput(err))
	assert.ErrorIs(t, err, errs.ErrSeedUnreachable)
	assert.Contains(t, err.Error(), "my site")
}

func TestServiceCrawlAgainstLiveSite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>Home</title></head><body><h1>Notepad</h1><a href="/about">about</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>About</title></head><body><p>About the notepad.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := crawler.New(fetcher.New(fetcher.Options{}), crawler.WithLogger(logging.Discard()))
	opts := crawler.DefaultOptions()
	opts.RespectRobots = false
	svc := NewService(c, opts, WithLogger(logging.Discard()))

	r, err := svc.Crawl(context.Background(), srv.URL, CrawlParams{FollowLinks: true, MaxDepth: 1})
	require.NoError(t, err)
	assert.False(t, r.Partial)
	assert.Len(t, r.Crawl.Site.Pages, 2)

	r, err = svc.Crawl(context.Background(), "not a url", CrawlParams{})
	assert.Nil(t, r)
	assert.True(t, errs.IsInput(err))
}

func TestKeywordReportNilDataset(t *testing.T) {
	r := KeywordReport(nil, 10)
	assert.Nil(t, r.SummaryStats)
	assert.Nil(t, r.KeywordGaps)
}
