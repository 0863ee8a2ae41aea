package keywords

import (
	"strings"
)

// Canonical column names of a keyword export
const (
	ColKeyword        = "Keyword"
	ColVolume         = "Volume"
	ColOrganicTraffic = "Organic traffic"
	ColPaidTraffic    = "Paid traffic"
	ColAvgPosition    = "Average position"
	ColLocations      = "Locations"
	ColLocation       = "Location"
	ColCountry        = "Country"
	ColOrganicClicks  = "Organic clicks"
	ColPaidClicks     = "Paid clicks"
)

// Columns lists the canonical columns in export order
var Columns = []string{
	ColKeyword, ColVolume, ColOrganicTraffic, ColPaidTraffic, ColAvgPosition,
	ColLocations, ColLocation, ColCountry, ColOrganicClicks, ColPaidClicks,
}

// columnAliases maps each canonical column to the header spellings that
// different exporters use. Matching is case-insensitive and treats
// underscores and hyphens as spaces.
var columnAliases = map[string][]string{
	ColKeyword:        {"keyword", "keywords", "search term", "query"},
	ColVolume:         {"volume", "search volume", "avg monthly searches"},
	ColOrganicTraffic: {"organic traffic", "traffic"},
	ColPaidTraffic:    {"paid traffic"},
	ColAvgPosition:    {"average position", "avg position", "avg. position", "position", "current position"},
	ColLocations:      {"locations"},
	ColLocation:       {"location"},
	ColCountry:        {"country"},
	ColOrganicClicks:  {"organic clicks", "clicks"},
	ColPaidClicks:     {"paid clicks"},
}

// schema records where each canonical column sits in a source header
type schema struct {
	index   map[string]int
	missing []string
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(h)
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// mapSchema resolves header cells to canonical columns. The first alias
// found wins; the canonical name itself is always the first alias.
func mapSchema(header []string) schema {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := positions[key]; !dup && key != "" {
			positions[key] = i
		}
	}

	s := schema{index: make(map[string]int, len(Columns))}
	for _, col := range Columns {
		found := false
		for _, alias := range columnAliases[col] {
			if i, ok := positions[alias]; ok {
				s.index[col] = i
				found = true
				break
			}
		}
		if !found {
			s.missing = append(s.missing, col)
		}
	}
	return s
}

func (s schema) has(col string) bool {
	_, ok := s.index[col]
	return ok
}

// cell returns the trimmed value of col in row, "" when absent
func (s schema) cell(row []string, col string) string {
	i, ok := s.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
