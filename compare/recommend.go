package compare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seo-optimizer/competitor/analyzer"
)

// Priority ranks a recommendation
type Priority string

const (
	High   Priority = "High"
	Medium Priority = "Medium"
	Low    Priority = "Low"
)

func (p Priority) rank() int {
	switch p {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

// Area groups recommendations by what they touch
type Area string

const (
	AreaTitle     Area = "title"
	AreaContent   Area = "content"
	AreaKeywords  Area = "keyword_density"
	AreaTechnical Area = "technical"
)

// Recommendation keys identify the message template
const (
	KeyTitleAdjust    = "title_length_adjust"
	KeyTitleKeep      = "title_length_keep"
	KeyContentExpand  = "content_expand"
	KeyKeywordDensity = "keyword_density_increase"
	keyWarningPrefix  = "fix_"
)

// Recommendation is one actionable change for my page
type Recommendation struct {
	Area      Area     `json:"area"`
	Priority  Priority `json:"priority"`
	Key       string   `json:"key"`
	Keyword   string   `json:"keyword,omitempty"`
	Magnitude int      `json:"magnitude"`
	Message   string   `json:"message"`
}

// WarningKey is the template key of the recommendation fixing kind
func WarningKey(kind analyzer.WarningKind) string {
	return keyWarningPrefix + string(kind)
}

// Warning kinds that are always worth fixing first
var highPriorityWarnings = map[analyzer.WarningKind]bool{
	analyzer.WarnImageMissingAlt:    true,
	analyzer.WarnMissingDescription: true,
}

var warningAdvice = map[analyzer.WarningKind]string{
	analyzer.WarnMissingTitle:       "Add a title tag to the page",
	analyzer.WarnTitleLength:        "Bring the title length within %d-%d characters",
	analyzer.WarnMissingDescription: "Add a meta description summarizing the page",
	analyzer.WarnDescriptionLength:  "Bring the meta description within %d-%d characters",
	analyzer.WarnImageMissingAlt:    "Add alt text to %d image(s)",
	analyzer.WarnMultipleH1:         "Use a single H1 heading",
	analyzer.WarnThinContent:        "Expand thin content to at least the minimum word count",
}

func warningMessage(kind analyzer.WarningKind, count int) string {
	switch kind {
	case analyzer.WarnTitleLength:
		return fmt.Sprintf(warningAdvice[kind], analyzer.MinTitleLength, analyzer.MaxTitleLength)
	case analyzer.WarnDescriptionLength:
		return fmt.Sprintf(warningAdvice[kind], analyzer.MinDescriptionLength, analyzer.MaxDescriptionLength)
	case analyzer.WarnImageMissingAlt:
		return fmt.Sprintf(warningAdvice[kind], count)
	}
	if advice, ok := warningAdvice[kind]; ok {
		return advice
	}
	return fmt.Sprintf("Resolve %d %s issue(s)", count, kind)
}

// recommend derives recommendations and orders them by priority, then by
// magnitude. Equal entries keep generation order: title, content,
// keywords, warnings.
func recommend(res Result, comp, my *analyzer.PageData) []Recommendation {
	recs := []Recommendation{}

	myLen, compLen := res.Title.MyLength, res.Title.CompetitorLength
	switch {
	case !titleOptimal(myLen) && titleOptimal(compLen):
		dist := OptimalTitleMin - myLen
		if myLen > OptimalTitleMax {
			dist = myLen - OptimalTitleMax
		}
		recs = append(recs, Recommendation{
			Area:      AreaTitle,
			Priority:  Medium,
			Key:       KeyTitleAdjust,
			Magnitude: dist,
			Message: fmt.Sprintf("Adjust your title to %d-%d characters (currently %d, competitor %d)",
				OptimalTitleMin, OptimalTitleMax, myLen, compLen),
		})
	case titleOptimal(myLen) && !titleOptimal(compLen):
		recs = append(recs, Recommendation{
			Area:     AreaTitle,
			Priority: Low,
			Key:      KeyTitleKeep,
			Message:  fmt.Sprintf("Keep your %d-character title; it is within the optimal range", myLen),
		})
	}

	if gap := res.Content.WordCountGap; gap > 0 {
		p := Medium
		if gap > WordGapThreshold {
			p = High
		}
		recs = append(recs, Recommendation{
			Area:      AreaContent,
			Priority:  p,
			Key:       KeyContentExpand,
			Magnitude: gap,
			Message:   fmt.Sprintf("Add approximately %d words of valuable content", gap),
		})
	}

	for _, d := range res.Deltas {
		kw, ok := densityKeyword(d.Field)
		if !ok || d.Difference <= 0 {
			continue
		}
		p := Medium
		if d.Difference >= DensityGapThreshold {
			p = High
		}
		recs = append(recs, Recommendation{
			Area:      AreaKeywords,
			Priority:  p,
			Key:       KeyKeywordDensity,
			Keyword:   kw,
			Magnitude: d.Difference,
			Message: fmt.Sprintf("Increase mentions of %q by %d (competitor %d, you %d)",
				kw, d.Difference, d.Competitor, d.Mine),
		})
	}

	for _, kind := range warningKinds(my) {
		mine := my.WarningCount(kind)
		p := Low
		switch {
		case highPriorityWarnings[kind]:
			p = High
		case mine > comp.WarningCount(kind):
			p = Medium
		}
		recs = append(recs, Recommendation{
			Area:      AreaTechnical,
			Priority:  p,
			Key:       WarningKey(kind),
			Magnitude: mine,
			Message:   warningMessage(kind, mine),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if ri, rj := recs[i].Priority.rank(), recs[j].Priority.rank(); ri != rj {
			return ri < rj
		}
		return recs[i].Magnitude > recs[j].Magnitude
	})
	return recs
}

func densityKeyword(field string) (string, bool) {
	kw, ok := strings.CutPrefix(field, densityFieldPrefix)
	return kw, ok && kw != ""
}
