package gaps

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/competitor/keywords"
)

func dataset(t *testing.T, recs ...keywords.Record) *keywords.Dataset {
	t.Helper()
	ds := keywords.New()
	for _, r := range recs {
		require.NoError(t, ds.Add(r))
	}
	return ds
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name   string
		rec    keywords.Record
		want   Category
		wantOK bool
	}{
		{"online notepad", keywords.Record{Volume: 201890, AvgPosition: 15.2}, HighVolume, true},
		{"high volume wins over quick win", keywords.Record{Volume: 12700, AvgPosition: 12.5}, HighVolume, true},
		{"quick win", keywords.Record{Volume: 800, AvgPosition: 11}, QuickWin, true},
		{"quick win upper bound", keywords.Record{Volume: 501, AvgPosition: 20}, QuickWin, true},
		{"low competition", keywords.Record{Volume: 900, AvgPosition: 35}, LowCompetition, true},
		{"high volume wins over low competition", keywords.Record{Volume: 5000, AvgPosition: 35}, HighVolume, true},
		{"volume at threshold", keywords.Record{Volume: 1000, AvgPosition: 30}, LowCompetition, true},
		{"already ranking", keywords.Record{Volume: 50000, AvgPosition: 3}, "", false},
		{"position exactly 10", keywords.Record{Volume: 50000, AvgPosition: 10}, "", false},
		{"unranked", keywords.Record{Volume: 50000}, "", false},
		{"too small", keywords.Record{Volume: 100, AvgPosition: 50}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Categorize(tt.rec)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyOnlineNotepad(t *testing.T) {
	ds := dataset(t,
		keywords.Record{Keyword: "online notepad", Volume: 201890, OrganicTraffic: 49993, AvgPosition: 15.2},
		keywords.Record{Keyword: "text editor online", Volume: 12700, OrganicTraffic: 300, AvgPosition: 12.5},
	)
	list := Classify(ds)

	require.Len(t, list.HighVolume, 2)
	assert.Empty(t, list.QuickWins)
	assert.Equal(t, "online notepad", list.HighVolume[0].Keyword)
	assert.Equal(t, 201890-49993, list.HighVolume[0].EstimatedTrafficGain)
	assert.Equal(t, HighVolume, list.HighVolume[1].Category)
}

func TestClassifyGainClampedAndSorted(t *testing.T) {
	ds := dataset(t,
		keywords.Record{Keyword: "a", Volume: 2000, OrganicTraffic: 5000, AvgPosition: 14},
		keywords.Record{Keyword: "b", Volume: 3000, OrganicTraffic: 1000, AvgPosition: 14},
		keywords.Record{Keyword: "c", Volume: 1500, OrganicTraffic: 9000, AvgPosition: 14},
		keywords.Record{Keyword: "d", Volume: 4000, OrganicTraffic: 1000, AvgPosition: 50},
	)
	list := Classify(ds)

	var order []string
	for _, o := range list.HighVolume {
		order = append(order, o.Keyword)
	}
	assert.Equal(t, []string{"d", "b", "a", "c"}, order, "gain desc, ties in dataset order")
	assert.Zero(t, list.HighVolume[2].EstimatedTrafficGain)
}

func TestClassifyIsExclusiveAndDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var recs []keywords.Record
	for i := 0; i < 500; i++ {
		recs = append(recs, keywords.Record{
			Keyword:        string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Volume:         rng.Intn(5000),
			OrganicTraffic: rng.Intn(3000),
			AvgPosition:    rng.Float64() * 60,
		})
	}
	ds := dataset(t, recs...)

	first := Classify(ds)
	assert.Equal(t, first, Classify(ds))

	seen := make(map[string]Category)
	for _, o := range first.all() {
		_, dup := seen[o.Keyword]
		assert.False(t, dup, "keyword %s classified twice", o.Keyword)
		seen[o.Keyword] = o.Category
		assert.GreaterOrEqual(t, o.EstimatedTrafficGain, 0)
	}
}

func TestImprovementTargets(t *testing.T) {
	ds := dataset(t,
		keywords.Record{Keyword: "a", OrganicTraffic: 1000, AvgPosition: 4},
		keywords.Record{Keyword: "b", OrganicTraffic: 1000, AvgPosition: 8},
		keywords.Record{Keyword: "c", OrganicTraffic: 1000, AvgPosition: 3.9},
		keywords.Record{Keyword: "d", OrganicTraffic: 1000, AvgPosition: 10},
	)
	list := Classify(ds)

	require.Len(t, list.Improvements, 3, "3.9 is outside the range, 10 is inside")
	assert.Equal(t, "a", list.Improvements[0].Keyword)
	assert.InDelta(t, 600.0, list.Improvements[0].PotentialIncrease, 1e-9)
	assert.InDelta(t, 200.0, list.Improvements[1].PotentialIncrease, 1e-9)
	assert.Equal(t, "d", list.Improvements[2].Keyword)
	assert.Zero(t, list.Improvements[2].PotentialIncrease)
}

func TestClassifyNilDataset(t *testing.T) {
	list := Classify(nil)
	assert.NotNil(t, list.HighVolume)
	assert.Empty(t, list.all())
}
