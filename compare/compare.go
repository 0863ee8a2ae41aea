// Package compare diffs two analyzed pages and turns the differences into
// prioritized recommendations for the second ("mine") page.
package compare

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/seo-optimizer/competitor/analyzer"
	"github.com/seo-optimizer/competitor/keywords"
)

// Optimal title length range used by recommendations and advantages
const (
	OptimalTitleMin = 50
	OptimalTitleMax = 60

	// Word count difference that counts as a real content gap
	WordGapThreshold = 200
	// Density gap (occurrences) from which a keyword gap is High priority
	DensityGapThreshold = 3

	// Keywords compared when no dataset is given
	competitorTopKeywords = 20
	// Dataset keywords compared, by volume
	MaxComparedKeywords = 50
)

// Field names of the fixed deltas, in output order
const (
	FieldTitleLength       = "title_length"
	FieldDescriptionLength = "meta_description_length"
	FieldH1Count           = "h1_count"
	FieldH2Count           = "h2_count"
	FieldWordCount         = "word_count"
	FieldInternalLinks     = "internal_links"
	FieldExternalLinks     = "external_links"
	FieldImagesWithoutAlt  = "images_without_alt"
	FieldWarningCount      = "warning_count"

	densityFieldPrefix = "keyword_density:"
)

// Delta is competitor minus mine for one compared field
type Delta struct {
	Field      string `json:"field"`
	Competitor int    `json:"competitor"`
	Mine       int    `json:"mine"`
	Difference int    `json:"difference"`
}

type TitleComparison struct {
	CompetitorTitle  string `json:"competitor_title"`
	MyTitle          string `json:"my_title"`
	CompetitorLength int    `json:"competitor_title_length"`
	MyLength         int    `json:"my_title_length"`
}

type ContentAnalysis struct {
	CompetitorWordCount int `json:"competitor_word_count"`
	MyWordCount         int `json:"my_word_count"`
	WordCountGap        int `json:"word_count_gap"`
}

// KeywordGap is a keyword the competitor uses more often than mine
type KeywordGap struct {
	Keyword           string `json:"keyword"`
	CompetitorDensity int    `json:"competitor_density"`
	MyDensity         int    `json:"my_density"`
	Gap               int    `json:"gap"`
	OpportunityScore  int    `json:"opportunity_score"`
}

type DensityComparison struct {
	Gaps      []KeywordGap `json:"keyword_gaps"`
	TotalGaps int          `json:"total_gaps"`
	AvgGap    float64      `json:"avg_gap"`
}

type WarningsComparison struct {
	CompetitorWarnings   int                    `json:"competitor_warnings"`
	MyWarnings           int                    `json:"my_warnings"`
	MyUniqueIssues       []analyzer.WarningKind `json:"my_unique_issues"`
	CompetitorOnlyIssues []analyzer.WarningKind `json:"competitor_issues_i_dont_have"`
}

// Result is the full comparison of two pages
type Result struct {
	Competitor *analyzer.PageData `json:"competitor"`
	Mine       *analyzer.PageData `json:"mine"`

	Deltas          []Delta            `json:"deltas"`
	Title           TitleComparison    `json:"title_comparison"`
	Content         ContentAnalysis    `json:"content_analysis"`
	KeywordDensity  DensityComparison  `json:"keyword_density_comparison"`
	Warnings        WarningsComparison `json:"warnings_comparison"`
	Advantages      []string           `json:"advantages"`
	Disadvantages   []string           `json:"disadvantages"`
	Recommendations []Recommendation   `json:"recommendations"`
}

// Delta returns the delta for field, false if it was not compared
func (r Result) Delta(field string) (Delta, bool) {
	for _, d := range r.Deltas {
		if d.Field == field {
			return d, true
		}
	}
	return Delta{}, false
}

// DensityField names the delta of one keyword's density
func DensityField(keyword string) string {
	return densityFieldPrefix + keyword
}

// Compare diffs competitor against mine. Nil pages compare as empty pages.
// Density is compared for the top dataset keywords, or for the
// competitor's most frequent terms when ds is nil or empty. Both pages
// count every compared term in full, whatever their own keyword set.
func Compare(competitor, mine *analyzer.PageData, ds *keywords.Dataset) Result {
	comp := orEmpty(competitor)
	my := orEmpty(mine)
	kws := ComparedKeywords(ds)
	if len(kws) == 0 {
		kws = topDensityKeywords(comp, competitorTopKeywords)
	}

	res := Result{
		Competitor: competitor,
		Mine:       mine,
		Deltas:     deltas(comp, my, kws),
		Title: TitleComparison{
			CompetitorTitle:  comp.Title,
			MyTitle:          my.Title,
			CompetitorLength: utf8.RuneCountInString(comp.Title),
			MyLength:         utf8.RuneCountInString(my.Title),
		},
		Content: ContentAnalysis{
			CompetitorWordCount: comp.WordCount,
			MyWordCount:         my.WordCount,
			WordCountGap:        comp.WordCount - my.WordCount,
		},
		KeywordDensity: densityComparison(comp, my, kws),
		Warnings:       warningsComparison(comp, my),
	}
	res.Advantages, res.Disadvantages = advantages(res)
	res.Recommendations = recommend(res, comp, my)
	return res
}

// ComparedKeywords returns the dataset keywords whose density is compared:
// the highest-volume ones, capped at MaxComparedKeywords.
func ComparedKeywords(ds *keywords.Dataset) []string {
	if ds == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range ds.Top(0) {
		if seen[r.Keyword] {
			continue
		}
		seen[r.Keyword] = true
		out = append(out, r.Keyword)
		if len(out) == MaxComparedKeywords {
			break
		}
	}
	return out
}

func orEmpty(p *analyzer.PageData) *analyzer.PageData {
	if p == nil {
		return &analyzer.PageData{}
	}
	return p
}

func topDensityKeywords(p *analyzer.PageData, n int) []string {
	terms := make([]analyzer.TermCount, 0, len(p.KeywordDensity))
	for kw, c := range p.KeywordDensity {
		if c > 0 {
			terms = append(terms, analyzer.TermCount{Term: kw, Count: c})
		}
	}
	analyzer.SortTerms(terms)
	if len(terms) > n {
		terms = terms[:n]
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Term
	}
	return out
}

func deltas(comp, my *analyzer.PageData, kws []string) []Delta {
	fields := []struct {
		name  string
		value func(*analyzer.PageData) int
	}{
		{FieldTitleLength, func(p *analyzer.PageData) int { return utf8.RuneCountInString(p.Title) }},
		{FieldDescriptionLength, func(p *analyzer.PageData) int { return utf8.RuneCountInString(p.Description) }},
		{FieldH1Count, func(p *analyzer.PageData) int { return p.HeadingCount(1) }},
		{FieldH2Count, func(p *analyzer.PageData) int { return p.HeadingCount(2) }},
		{FieldWordCount, func(p *analyzer.PageData) int { return p.WordCount }},
		{FieldInternalLinks, func(p *analyzer.PageData) int { return len(p.InternalLinks) }},
		{FieldExternalLinks, func(p *analyzer.PageData) int { return len(p.ExternalLinks) }},
		{FieldImagesWithoutAlt, func(p *analyzer.PageData) int { return p.ImagesWithoutAlt() }},
		{FieldWarningCount, func(p *analyzer.PageData) int { return p.WarningCount("") }},
	}

	out := make([]Delta, 0, len(fields)+len(kws))
	for _, f := range fields {
		out = append(out, newDelta(f.name, f.value(comp), f.value(my)))
	}
	for _, kw := range kws {
		out = append(out, newDelta(DensityField(kw), comp.Occurrences(kw), my.Occurrences(kw)))
	}
	return out
}

func newDelta(field string, comp, mine int) Delta {
	return Delta{Field: field, Competitor: comp, Mine: mine, Difference: comp - mine}
}

func densityComparison(comp, my *analyzer.PageData, kws []string) DensityComparison {
	dc := DensityComparison{Gaps: []KeywordGap{}}
	total := 0
	for _, kw := range kws {
		c, m := comp.Occurrences(kw), my.Occurrences(kw)
		if gap := c - m; gap > 0 {
			dc.Gaps = append(dc.Gaps, KeywordGap{
				Keyword:           kw,
				CompetitorDensity: c,
				MyDensity:         m,
				Gap:               gap,
				OpportunityScore:  gap * 10,
			})
			total += gap
		}
	}
	sort.SliceStable(dc.Gaps, func(i, j int) bool {
		return dc.Gaps[i].Gap > dc.Gaps[j].Gap
	})
	dc.TotalGaps = len(dc.Gaps)
	if dc.TotalGaps > 0 {
		dc.AvgGap = float64(total) / float64(dc.TotalGaps)
	}
	return dc
}

func warningsComparison(comp, my *analyzer.PageData) WarningsComparison {
	compKinds := warningKinds(comp)
	myKinds := warningKinds(my)

	wc := WarningsComparison{
		CompetitorWarnings:   len(comp.Warnings),
		MyWarnings:           len(my.Warnings),
		MyUniqueIssues:       []analyzer.WarningKind{},
		CompetitorOnlyIssues: []analyzer.WarningKind{},
	}
	for _, k := range myKinds {
		if comp.WarningCount(k) == 0 {
			wc.MyUniqueIssues = append(wc.MyUniqueIssues, k)
		}
	}
	for _, k := range compKinds {
		if my.WarningCount(k) == 0 {
			wc.CompetitorOnlyIssues = append(wc.CompetitorOnlyIssues, k)
		}
	}
	return wc
}

// warningKinds lists the distinct warning kinds of p, sorted
func warningKinds(p *analyzer.PageData) []analyzer.WarningKind {
	seen := make(map[analyzer.WarningKind]bool)
	var kinds []analyzer.WarningKind
	for _, w := range p.Warnings {
		if !seen[w.Kind] {
			seen[w.Kind] = true
			kinds = append(kinds, w.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func titleOptimal(n int) bool {
	return n >= OptimalTitleMin && n <= OptimalTitleMax
}

func advantages(res Result) ([]string, []string) {
	adv, dis := []string{}, []string{}

	my, comp := res.Title.MyLength, res.Title.CompetitorLength
	switch {
	case titleOptimal(my) && !titleOptimal(comp):
		adv = append(adv, fmt.Sprintf("Your title length is optimally sized (%d-%d chars)", OptimalTitleMin, OptimalTitleMax))
	case titleOptimal(comp) && !titleOptimal(my):
		dis = append(dis, "Competitor has better title length optimization")
	}

	switch gap := res.Content.WordCountGap; {
	case gap < -WordGapThreshold:
		adv = append(adv, "Your content is more comprehensive (longer word count)")
	case gap > WordGapThreshold:
		dis = append(dis, "Competitor has more comprehensive content")
	}

	switch {
	case res.Warnings.MyWarnings < res.Warnings.CompetitorWarnings:
		adv = append(adv, "You have fewer technical SEO issues")
	case res.Warnings.MyWarnings > res.Warnings.CompetitorWarnings:
		dis = append(dis, "You have more technical SEO issues than competitor")
	}
	return adv, dis
}
