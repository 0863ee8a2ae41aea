package crawler

import (
	"sort"
	"time"

	"github.com/seo-optimizer/competitor/analyzer"
)

// StopReason explains why a crawl ended before exhausting the link graph
type StopReason string

const (
	StopMaxPages  StopReason = "max_pages"
	StopTimeout   StopReason = "timeout"
	StopCancelled StopReason = "cancelled"
)

// maxSiteKeywords caps the site-wide keyword list
const maxSiteKeywords = 50

// SiteReport collects every page analyzed during one crawl
type SiteReport struct {
	ID             string                        `json:"id"`
	Seed           string                        `json:"seed"`
	Host           string                        `json:"host"`
	RedirectedTo   string                        `json:"redirected_to,omitempty"`
	SitemapPages   int                           `json:"sitemap_pages,omitempty"`
	Pages          map[string]*analyzer.PageData `json:"pages"`
	Partial        bool                          `json:"partial"`
	StopReason     StopReason                    `json:"stop_reason,omitempty"`
	StartedAt      time.Time                     `json:"started_at"`
	FinishedAt     time.Time                     `json:"finished_at"`
	PagesFailed    int                           `json:"pages_failed"`
	DuplicatePages [][]string                    `json:"duplicate_pages,omitempty"`
	Keywords       []analyzer.TermCount          `json:"keywords"`
}

// SeedPage returns the analysis of the seed URL, nil if it never completed
func (r *SiteReport) SeedPage() *analyzer.PageData {
	if r == nil {
		return nil
	}
	return r.Pages[r.Seed]
}

// URLs lists the crawled URLs in sorted order
func (r *SiteReport) URLs() []string {
	urls := make([]string, 0, len(r.Pages))
	for u := range r.Pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Succeeded counts pages that were fetched and analyzed
func (r *SiteReport) Succeeded() int {
	n := 0
	for _, p := range r.Pages {
		if !p.Failed() {
			n++
		}
	}
	return n
}

// finalize derives the aggregate fields from the collected pages
func (r *SiteReport) finalize() {
	r.PagesFailed = 0
	totals := make(map[string]int)
	byHash := make(map[string][]string)

	for _, u := range r.URLs() {
		p := r.Pages[u]
		if p.Failed() {
			r.PagesFailed++
			continue
		}
		for kw, n := range p.KeywordDensity {
			totals[kw] += n
		}
		if p.ContentHash != "" {
			byHash[p.ContentHash] = append(byHash[p.ContentHash], u)
		}
	}

	r.Keywords = make([]analyzer.TermCount, 0, len(totals))
	for kw, n := range totals {
		if n > 0 {
			r.Keywords = append(r.Keywords, analyzer.TermCount{Term: kw, Count: n})
		}
	}
	analyzer.SortTerms(r.Keywords)
	if len(r.Keywords) > maxSiteKeywords {
		r.Keywords = r.Keywords[:maxSiteKeywords]
	}

	r.DuplicatePages = nil
	for _, group := range byHash {
		if len(group) > 1 {
			r.DuplicatePages = append(r.DuplicatePages, group)
		}
	}
	sort.Slice(r.DuplicatePages, func(i, j int) bool {
		return r.DuplicatePages[i][0] < r.DuplicatePages[j][0]
	})
}
