// Package keywords ingests keyword-performance exports into an indexed
// dataset with exact summary statistics.
package keywords

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/seo-optimizer/competitor/errs"
)

// Record is one keyword row after schema mapping. AvgPosition 0 means the
// keyword does not rank.
type Record struct {
	Keyword        string  `json:"keyword"`
	Volume         int     `json:"volume"`
	OrganicTraffic int     `json:"organic_traffic"`
	PaidTraffic    int     `json:"paid_traffic"`
	AvgPosition    float64 `json:"avg_position"`
	Locations      int     `json:"locations"`
	Location       string  `json:"location,omitempty"`
	Country        string  `json:"country,omitempty"`
	OrganicClicks  int     `json:"organic_clicks"`
	PaidClicks     int     `json:"paid_clicks"`
}

// Ranked reports whether the record has a search position
func (r Record) Ranked() bool {
	return r.AvgPosition > 0
}

// Summary holds exact aggregates over all records
type Summary struct {
	TotalKeywords  int     `json:"total_keywords"`
	TotalVolume    int     `json:"total_volume"`
	TotalTraffic   int     `json:"total_traffic"`
	AvgVolume      float64 `json:"avg_volume"`
	AvgTraffic     float64 `json:"avg_traffic"`
	AvgPosition    float64 `json:"avg_position"`
	Page1Positions int     `json:"page_1_positions"`
	Page2Positions int     `json:"page_2_positions"`
}

// Diagnostics are the data quality warnings collected while loading
type Diagnostics struct {
	MissingColumns   []string `json:"missing_columns,omitempty"`
	DroppedRows      int      `json:"dropped_rows"`
	InvalidCellRows  int      `json:"invalid_cell_rows"`
	MergedDuplicates int      `json:"merged_duplicates"`
	Warnings         []string `json:"warnings"`
}

// Table is a header plus data rows from any tabular source
type Table struct {
	Header []string
	Rows   [][]string
}

// rankWeight counts the ranked rows folded into a position average
type rankWeight struct {
	rows   int
	volume int
}

type recordKey struct {
	keyword  string
	location string
}

// Dataset is an ordered, de-duplicated set of keyword records. It is safe
// for concurrent reads; Add takes the write lock.
type Dataset struct {
	mu      sync.RWMutex
	records []Record
	index   map[recordKey]int
	// ranked rows behind each record's position
	ranks   []rankWeight
	summary Summary
	diag    Diagnostics
}

// New returns an empty dataset
func New() *Dataset {
	return &Dataset{
		index: make(map[recordKey]int),
		diag:  Diagnostics{Warnings: []string{}},
	}
}

// Load maps a table onto records. A missing Keyword column is an input
// error; every other problem is reported through Diagnostics.
func Load(t Table) (*Dataset, error) {
	if len(t.Header) == 0 {
		return nil, errs.Inputf("load keywords", "source has no header row")
	}
	s := mapSchema(t.Header)
	if !s.has(ColKeyword) {
		return nil, errs.Inputf("load keywords", "source has no %q column", ColKeyword)
	}

	ds := New()
	ds.diag.MissingColumns = s.missing

	for _, row := range t.Rows {
		if isBlankRow(row) {
			continue
		}
		rec, invalid := parseRow(s, row)
		if rec.Keyword == "" {
			ds.diag.DroppedRows++
			continue
		}
		if invalid {
			ds.diag.InvalidCellRows++
		}
		ds.merge(rec)
	}

	ds.diag.Warnings = ds.buildWarnings()
	ds.recompute()
	return ds, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseRow builds a record from one row. Empty cells take their default
// silently; unparsable or negative numbers default to 0 and flag the row.
func parseRow(s schema, row []string) (Record, bool) {
	invalid := false
	intCell := func(col string) int {
		v, ok := parseCount(s.cell(row, col))
		if !ok {
			invalid = true
		}
		return v
	}

	rec := Record{
		Keyword:        normalizeKeyword(s.cell(row, ColKeyword)),
		Volume:         intCell(ColVolume),
		OrganicTraffic: intCell(ColOrganicTraffic),
		PaidTraffic:    intCell(ColPaidTraffic),
		Locations:      intCell(ColLocations),
		Location:       s.cell(row, ColLocation),
		Country:        s.cell(row, ColCountry),
		OrganicClicks:  intCell(ColOrganicClicks),
		PaidClicks:     intCell(ColPaidClicks),
	}
	pos, ok := parsePosition(s.cell(row, ColAvgPosition))
	if !ok {
		invalid = true
	}
	rec.AvgPosition = pos
	return rec, invalid
}

func normalizeKeyword(k string) string {
	return strings.Join(strings.Fields(strings.ToLower(k)), " ")
}

// parseCount accepts integers with thousands separators and whole floats
func parseCount(cell string) (int, bool) {
	cell = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(cell)
	if cell == "" || cell == "-" {
		return 0, true
	}
	if n, err := strconv.Atoi(cell); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func parsePosition(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == "-" {
		return 0, true
	}
	f, err := strconv.ParseFloat(strings.Replace(cell, ",", ".", 1), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (d *Dataset) buildWarnings() []string {
	warnings := []string{}
	if len(d.diag.MissingColumns) > 0 {
		warnings = append(warnings, fmt.Sprintf("missing columns defaulted: %s", strings.Join(d.diag.MissingColumns, ", ")))
	}
	if d.diag.DroppedRows > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows dropped for an empty keyword", d.diag.DroppedRows))
	}
	if d.diag.InvalidCellRows > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows had unparsable or negative numbers defaulted to 0", d.diag.InvalidCellRows))
	}
	return warnings
}

// Add validates and merges one record, then refreshes the summary
func (d *Dataset) Add(rec Record) error {
	rec.Keyword = normalizeKeyword(rec.Keyword)
	if rec.Keyword == "" {
		return errs.Inputf("add keyword", "empty keyword")
	}
	if rec.Volume < 0 || rec.OrganicTraffic < 0 || rec.PaidTraffic < 0 ||
		rec.OrganicClicks < 0 || rec.PaidClicks < 0 || rec.Locations < 0 || rec.AvgPosition < 0 {
		return errs.Input("add keyword", errors.New("negative value in record "+strconv.Quote(rec.Keyword)))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.merge(rec)
	d.recompute()
	return nil
}

// merge adds rec or folds it into the record with the same key. Callers
// hold the write lock or own the dataset exclusively.
func (d *Dataset) merge(rec Record) {
	key := recordKey{keyword: rec.Keyword, location: strings.ToLower(rec.Location)}
	i, ok := d.index[key]
	if !ok {
		d.index[key] = len(d.records)
		d.records = append(d.records, rec)
		d.ranks = append(d.ranks, weightOf(rec))
		return
	}

	d.diag.MergedDuplicates++
	cur := &d.records[i]
	if rec.Ranked() {
		cur.AvgPosition = mergePosition(cur.AvgPosition, d.ranks[i], rec)
		d.ranks[i].rows++
		d.ranks[i].volume += rec.Volume
	}
	cur.Volume += rec.Volume
	cur.OrganicTraffic += rec.OrganicTraffic
	cur.PaidTraffic += rec.PaidTraffic
	cur.OrganicClicks += rec.OrganicClicks
	cur.PaidClicks += rec.PaidClicks
	if rec.Locations > cur.Locations {
		cur.Locations = rec.Locations
	}
	if cur.Location == "" {
		cur.Location = rec.Location
	}
	if cur.Country == "" {
		cur.Country = rec.Country
	}
}

func weightOf(rec Record) rankWeight {
	if !rec.Ranked() {
		return rankWeight{}
	}
	return rankWeight{rows: 1, volume: rec.Volume}
}

// mergePosition folds a ranked row into the average pos built from w.
// Positions are weighted by volume, or averaged plainly when every ranked
// row has zero volume. Unranked rows never count.
func mergePosition(pos float64, w rankWeight, next Record) float64 {
	switch {
	case w.rows == 0:
		return next.AvgPosition
	case w.volume+next.Volume > 0:
		return (pos*float64(w.volume) + next.AvgPosition*float64(next.Volume)) /
			float64(w.volume+next.Volume)
	default:
		return (pos*float64(w.rows) + next.AvgPosition) / float64(w.rows+1)
	}
}

// recompute rebuilds the summary from scratch
func (d *Dataset) recompute() {
	s := Summary{TotalKeywords: len(d.records)}
	var posSum float64
	var ranked int
	for _, r := range d.records {
		s.TotalVolume += r.Volume
		s.TotalTraffic += r.OrganicTraffic
		if !r.Ranked() {
			continue
		}
		ranked++
		posSum += r.AvgPosition
		switch {
		case r.AvgPosition <= 10:
			s.Page1Positions++
		case r.AvgPosition >= 11 && r.AvgPosition <= 20:
			s.Page2Positions++
		}
	}
	if s.TotalKeywords > 0 {
		s.AvgVolume = float64(s.TotalVolume) / float64(s.TotalKeywords)
		s.AvgTraffic = float64(s.TotalTraffic) / float64(s.TotalKeywords)
	}
	if ranked > 0 {
		s.AvgPosition = posSum / float64(ranked)
	}
	d.summary = s
}

// Summary returns the current aggregates
func (d *Dataset) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.summary
}

// Diagnostics returns the data quality report of the load
func (d *Dataset) Diagnostics() Diagnostics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	diag := d.diag
	diag.MissingColumns = append([]string(nil), d.diag.MissingColumns...)
	diag.Warnings = append([]string{}, d.diag.Warnings...)
	return diag
}

// Len returns the number of distinct records
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Records returns a copy of the records in first-seen order
func (d *Dataset) Records() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Record(nil), d.records...)
}

// lookup returns every record of keyword, one per location
func (d *Dataset) lookup(keyword string) []Record {
	keyword = normalizeKeyword(keyword)
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Record
	for _, r := range d.records {
		if r.Keyword == keyword {
			out = append(out, r)
		}
	}
	return out
}

// Top returns the n records with the highest volume. Ties go to the better
// (lower) position, unranked last, then to the record seen first. n <= 0
// returns every record.
func (d *Dataset) Top(n int) []Record {
	recs := d.Records()
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Volume != recs[j].Volume {
			return recs[i].Volume > recs[j].Volume
		}
		return rankOrder(recs[i]) < rankOrder(recs[j])
	})
	if n > 0 && n < len(recs) {
		recs = recs[:n]
	}
	return recs
}

func rankOrder(r Record) float64 {
	if !r.Ranked() {
		return math.Inf(1)
	}
	return r.AvgPosition
}
