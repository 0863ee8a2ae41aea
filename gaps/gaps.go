// Package gaps classifies keyword records into ranked opportunity lists.
package gaps

import (
	"sort"

	"github.com/seo-optimizer/competitor/keywords"
)

// Category is an opportunity class. A record belongs to at most one.
type Category string

const (
	HighVolume     Category = "high_volume"
	QuickWin       Category = "quick_win"
	LowCompetition Category = "low_competition"
)

// Classification thresholds
const (
	HighVolumeMinVolume     = 1000
	HighVolumeMinPosition   = 10
	QuickWinMinPosition     = 11
	QuickWinMaxPosition     = 20
	QuickWinMinVolume       = 500
	LowCompetitionMinVolume = 100
	LowCompetitionPosition  = 20

	// Records already ranking in this range are improvement targets
	ImproveMinPosition = 4
	ImproveMaxPosition = 10
)

// Opportunity is one classified keyword
type Opportunity struct {
	Keyword              string   `json:"keyword"`
	Location             string   `json:"location,omitempty"`
	Volume               int      `json:"volume"`
	Position             float64  `json:"position"`
	OrganicTraffic       int      `json:"organic_traffic"`
	Category             Category `json:"category"`
	EstimatedTrafficGain int      `json:"estimated_traffic_gain"`
}

// Target is a keyword ranking 4-10 whose traffic could grow by moving up
type Target struct {
	Keyword           string  `json:"keyword"`
	Location          string  `json:"location,omitempty"`
	Position          float64 `json:"position"`
	OrganicTraffic    int     `json:"organic_traffic"`
	PotentialIncrease float64 `json:"potential_increase"`
}

// OpportunityList holds the lists of one classification run, each sorted
// by estimated gain, descending
type OpportunityList struct {
	HighVolume     []Opportunity `json:"high_volume_opportunities"`
	QuickWins      []Opportunity `json:"quick_wins"`
	LowCompetition []Opportunity `json:"low_competition"`
	Improvements   []Target      `json:"position_improvement_targets"`
}

// all returns every opportunity across categories, by gain descending
func (l OpportunityList) all() []Opportunity {
	all := make([]Opportunity, 0, len(l.HighVolume)+len(l.QuickWins)+len(l.LowCompetition))
	all = append(all, l.HighVolume...)
	all = append(all, l.QuickWins...)
	all = append(all, l.LowCompetition...)
	sortByGain(all)
	return all
}

// Categorize returns the category of r, or false when it fits none.
// Conditions are checked in precedence order: high volume, quick win,
// low competition.
func Categorize(r keywords.Record) (Category, bool) {
	switch {
	case r.Volume > HighVolumeMinVolume && r.AvgPosition > HighVolumeMinPosition:
		return HighVolume, true
	case r.AvgPosition >= QuickWinMinPosition && r.AvgPosition <= QuickWinMaxPosition && r.Volume > QuickWinMinVolume:
		return QuickWin, true
	case r.Volume > LowCompetitionMinVolume && r.AvgPosition > LowCompetitionPosition:
		return LowCompetition, true
	}
	return "", false
}

// TrafficGain estimates the traffic still to win: volume not yet captured
func TrafficGain(r keywords.Record) int {
	if gain := r.Volume - r.OrganicTraffic; gain > 0 {
		return gain
	}
	return 0
}

// Classify buckets every record of ds. Lists are never nil.
func Classify(ds *keywords.Dataset) OpportunityList {
	list := OpportunityList{
		HighVolume:     []Opportunity{},
		QuickWins:      []Opportunity{},
		LowCompetition: []Opportunity{},
		Improvements:   []Target{},
	}
	if ds == nil {
		return list
	}

	for _, r := range ds.Records() {
		if r.AvgPosition >= ImproveMinPosition && r.AvgPosition <= ImproveMaxPosition {
			list.Improvements = append(list.Improvements, Target{
				Keyword:           r.Keyword,
				Location:          r.Location,
				Position:          r.AvgPosition,
				OrganicTraffic:    r.OrganicTraffic,
				PotentialIncrease: float64(r.OrganicTraffic) * (1 - r.AvgPosition/10),
			})
		}

		cat, ok := Categorize(r)
		if !ok {
			continue
		}
		opp := Opportunity{
			Keyword:              r.Keyword,
			Location:             r.Location,
			Volume:               r.Volume,
			Position:             r.AvgPosition,
			OrganicTraffic:       r.OrganicTraffic,
			Category:             cat,
			EstimatedTrafficGain: TrafficGain(r),
		}
		switch cat {
		case HighVolume:
			list.HighVolume = append(list.HighVolume, opp)
		case QuickWin:
			list.QuickWins = append(list.QuickWins, opp)
		case LowCompetition:
			list.LowCompetition = append(list.LowCompetition, opp)
		}
	}

	sortByGain(list.HighVolume)
	sortByGain(list.QuickWins)
	sortByGain(list.LowCompetition)
	sort.SliceStable(list.Improvements, func(i, j int) bool {
		return list.Improvements[i].PotentialIncrease > list.Improvements[j].PotentialIncrease
	})
	return list
}

func sortByGain(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].EstimatedTrafficGain > opps[j].EstimatedTrafficGain
	})
}
