// Package report runs the analysis commands and assembles their results
// into a single JSON-ready report.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/seo-optimizer/competitor/compare"
	"github.com/seo-optimizer/competitor/crawler"
	"github.com/seo-optimizer/competitor/gaps"
	"github.com/seo-optimizer/competitor/keywords"
)

// DefaultTopKeywords is the top_keywords length when none is requested
const DefaultTopKeywords = 20

// TopKeyword is the short form of a record listed in top_keywords
type TopKeyword struct {
	Keyword  string  `json:"keyword"`
	Volume   int     `json:"volume"`
	Traffic  int     `json:"traffic"`
	Position float64 `json:"position"`
}

// Crawls holds the site reports behind a report: Site for a plain crawl,
// Competitor and Mine for a comparison.
type Crawls struct {
	Site       *crawler.SiteReport `json:"site,omitempty"`
	Competitor *crawler.SiteReport `json:"competitor,omitempty"`
	Mine       *crawler.SiteReport `json:"mine,omitempty"`
}

// Report is the result of one command. Sections a command does not
// produce are omitted.
type Report struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`

	SummaryStats *keywords.Summary     `json:"summary_stats,omitempty"`
	TopKeywords  []TopKeyword          `json:"top_keywords,omitempty"`
	KeywordGaps  *gaps.OpportunityList `json:"keyword_gaps,omitempty"`
	Suggestions  *keywords.Suggestions `json:"content_suggestions,omitempty"`
	Comparison   *compare.Result       `json:"comparison,omitempty"`
	Crawl        *Crawls               `json:"crawl,omitempty"`
	DataQuality  *keywords.Diagnostics `json:"data_quality,omitempty"`
	Partial      bool                  `json:"partial"`
}

func newReport() *Report {
	return &Report{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
	}
}

// addKeywords fills the keyword sections from ds
func (r *Report) addKeywords(ds *keywords.Dataset, topN int) {
	if ds == nil {
		return
	}
	if topN <= 0 {
		topN = DefaultTopKeywords
	}

	summary := ds.Summary()
	r.SummaryStats = &summary

	top := ds.Top(topN)
	r.TopKeywords = make([]TopKeyword, len(top))
	for i, rec := range top {
		r.TopKeywords[i] = TopKeyword{
			Keyword:  rec.Keyword,
			Volume:   rec.Volume,
			Traffic:  rec.OrganicTraffic,
			Position: rec.AvgPosition,
		}
	}

	list := gaps.Classify(ds)
	r.KeywordGaps = &list

	diag := ds.Diagnostics()
	r.DataQuality = &diag
}

// KeywordReport summarizes a dataset: summary stats, the topN keywords by
// volume, opportunity lists and data quality. It does no I/O.
func KeywordReport(ds *keywords.Dataset, topN int) *Report {
	r := newReport()
	r.addKeywords(ds, topN)
	return r
}
