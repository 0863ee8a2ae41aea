package keywords

import (
	"sort"
	"strings"
)

const (
	maxMatchesPerTarget = 10
	primaryPerTarget    = 3
	maxSecondaryWords   = 3
)

// Suggestion is a dataset keyword proposed for content work
type Suggestion struct {
	Keyword  string  `json:"keyword"`
	Volume   int     `json:"volume"`
	Position float64 `json:"position,omitempty"`
}

// Suggestions groups proposed keywords by role
type Suggestions struct {
	Primary   []Suggestion `json:"primary_keywords"`
	Secondary []Suggestion `json:"secondary_keywords"`
	LongTail  []Suggestion `json:"long_tail_opportunities"`
}

// Suggest matches each target term against the dataset. For every target
// the ten highest-volume keywords containing it are taken: the first three
// are primary, short ones secondary, the rest long-tail. A keyword is
// suggested at most once.
func (d *Dataset) Suggest(targets []string) Suggestions {
	out := Suggestions{
		Primary:   []Suggestion{},
		Secondary: []Suggestion{},
		LongTail:  []Suggestion{},
	}
	recs := d.Records()
	used := make(map[string]bool)

	for _, target := range targets {
		target = normalizeKeyword(target)
		if target == "" {
			continue
		}

		var matches []Record
		for _, r := range recs {
			if strings.Contains(r.Keyword, target) {
				matches = append(matches, r)
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Volume > matches[j].Volume
		})
		if len(matches) > maxMatchesPerTarget {
			matches = matches[:maxMatchesPerTarget]
		}

		for i, r := range matches {
			if used[r.Keyword] {
				continue
			}
			used[r.Keyword] = true
			s := Suggestion{Keyword: r.Keyword, Volume: r.Volume}
			switch {
			case i < primaryPerTarget:
				s.Position = r.AvgPosition
				out.Primary = append(out.Primary, s)
			case len(strings.Fields(r.Keyword)) <= maxSecondaryWords:
				out.Secondary = append(out.Secondary, s)
			default:
				out.LongTail = append(out.LongTail, s)
			}
		}
	}
	return out
}
