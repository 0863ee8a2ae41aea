package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	fileName      = "stats.json"
	flushInterval = 5 * time.Minute
	visitorWindow = 24 * time.Hour
	popularHosts  = 5
)

// MonthlyStats holds the usage counters of one calendar month
type MonthlyStats struct {
	Requests       int            `json:"requests"`
	Errors         int            `json:"errors"`
	TotalLatencyMs float64        `json:"total_latency_ms"`
	Crawls         int            `json:"crawls"`
	PartialCrawls  int            `json:"partial_crawls"`
	PagesCrawled   int            `json:"pages_crawled"`
	PagesFailed    int            `json:"pages_failed"`
	KeywordLoads   int            `json:"keyword_loads"`
	KeywordsLoaded int            `json:"keywords_loaded"`
	Comparisons    int            `json:"comparisons"`
	Hosts          map[string]int `json:"hosts,omitempty"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// AvgLatencyMs is the mean request latency of the month
func (m MonthlyStats) AvgLatencyMs() float64 {
	if m.Requests == 0 {
		return 0
	}
	return m.TotalLatencyMs / float64(m.Requests)
}

// ErrorRate is the percentage of failed requests
func (m MonthlyStats) ErrorRate() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Requests) * 100
}

func (m MonthlyStats) clone() MonthlyStats {
	out := m
	if m.Hosts != nil {
		out.Hosts = make(map[string]int, len(m.Hosts))
		for h, n := range m.Hosts {
			out.Hosts[h] = n
		}
	}
	return out
}

// HostCount is one entry of the most crawled hosts
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

// Summary is the view served by the statistics endpoint. Hosts is only
// filled in detailed mode.
type Summary struct {
	Month             string      `json:"month"`
	UniqueVisitors24h int         `json:"unique_visitors_24h"`
	TotalRequests     int         `json:"total_requests"`
	ErrorRate         float64     `json:"error_rate"`
	AvgLatencyMs      float64     `json:"average_latency_ms"`
	Crawls            int         `json:"crawls"`
	PartialCrawls     int         `json:"partial_crawls"`
	PagesCrawled      int         `json:"pages_crawled"`
	PagesFailed       int         `json:"pages_failed"`
	KeywordLoads      int         `json:"keyword_loads"`
	Comparisons       int         `json:"comparisons"`
	PopularHosts      []HostCount `json:"popular_hosts,omitempty"`
}

// Storage keeps monthly usage counters and persists them as JSON in the
// data directory. Visitor addresses stay in memory only.
type Storage struct {
	mutex     sync.RWMutex
	stats     map[string]*MonthlyStats // key: "YYYY-MM"
	visitors  map[string]time.Time
	filePath  string
	lastWrite time.Time
	now       func() time.Time
	log       logrus.FieldLogger

	writeBuffer chan struct{}
	stop        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
}

// NewStorage loads dataDir/stats.json if present and starts the
// background writer. Call Shutdown to flush and stop it.
func NewStorage(dataDir string, log logrus.FieldLogger) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		visitors:    make(map[string]time.Time),
		filePath:    filepath.Join(dataDir, fileName),
		now:         time.Now,
		log:         log.WithField("component", "stats"),
		writeBuffer: make(chan struct{}, 1),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()
	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return json.Unmarshal(data, &s.stats)
}

// Flush writes the counters to disk now
func (s *Storage) Flush() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (s *Storage) flushLogged() {
	if err := s.Flush(); err != nil {
		s.log.WithError(err).Warn("could not persist statistics")
	}
}

func (s *Storage) backgroundWriter() {
	defer close(s.stopped)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			s.flushLogged()
		case <-ticker.C:
			s.flushLogged()
		case <-s.stop:
			s.flushLogged()
			return
		}
	}
}

// Shutdown stops the background writer after a final flush. It is safe to
// call more than once.
func (s *Storage) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.stopped
}

func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
	}
}

func (s *Storage) monthKey(t time.Time) string {
	return t.Format("2006-01")
}

// update applies fn to the current month under the write lock
func (s *Storage) update(fn func(*MonthlyStats)) {
	now := s.now()
	month := s.monthKey(now)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}
	fn(stats)
	stats.LastUpdated = now

	if now.Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = now
	}
}

// TrackVisitor remembers the last visit of a client address
func (s *Storage) TrackVisitor(ip string) {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.visitors[ip] = now
	for addr, seen := range s.visitors {
		if now.Sub(seen) > visitorWindow {
			delete(s.visitors, addr)
		}
	}
}

// RecordRequest counts one API request and its latency
func (s *Storage) RecordRequest(latency time.Duration, failed bool) {
	s.update(func(m *MonthlyStats) {
		m.Requests++
		m.TotalLatencyMs += float64(latency) / float64(time.Millisecond)
		if failed {
			m.Errors++
		}
	})
}

// RecordCrawl counts one finished crawl of host
func (s *Storage) RecordCrawl(host string, pages, failed int, partial bool) {
	s.update(func(m *MonthlyStats) {
		m.Crawls++
		m.PagesCrawled += pages
		m.PagesFailed += failed
		if partial {
			m.PartialCrawls++
		}
		if host != "" {
			if m.Hosts == nil {
				m.Hosts = make(map[string]int)
			}
			m.Hosts[host]++
		}
	})
}

// RecordKeywordLoad counts one loaded keyword source of n records
func (s *Storage) RecordKeywordLoad(n int) {
	s.update(func(m *MonthlyStats) {
		m.KeywordLoads++
		m.KeywordsLoaded += n
	})
}

// RecordComparison counts one competitor comparison
func (s *Storage) RecordComparison() {
	s.update(func(m *MonthlyStats) {
		m.Comparisons++
	})
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	stats, _ := s.GetMonthlyStats(s.monthKey(s.now()))
	return stats
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return stats.clone(), true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns the months that have statistics, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// Cleanup keeps the current month and the retainMonths-1 before it
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 1 {
		retainMonths = 1
	}
	now := s.now()
	keep := make(map[string]bool, retainMonths)
	for i := 0; i < retainMonths; i++ {
		keep[s.monthKey(now.AddDate(0, -i, 0))] = true
	}

	s.mutex.Lock()
	removed := 0
	for key := range s.stats {
		if !keep[key] {
			delete(s.stats, key)
			removed++
		}
	}
	s.mutex.Unlock()

	s.requestWrite()
	s.log.WithFields(logrus.Fields{"retained_months": retainMonths, "removed": removed}).Info("statistics cleaned up")
}

// Summary returns the current month's view. detailed adds the most
// crawled hosts.
func (s *Storage) Summary(detailed bool) Summary {
	now := s.now()
	month := s.monthKey(now)
	cur := s.GetCurrentStats()

	s.mutex.RLock()
	visitors := 0
	for _, seen := range s.visitors {
		if now.Sub(seen) <= visitorWindow {
			visitors++
		}
	}
	s.mutex.RUnlock()

	sum := Summary{
		Month:             month,
		UniqueVisitors24h: visitors,
		TotalRequests:     cur.Requests,
		ErrorRate:         cur.ErrorRate(),
		AvgLatencyMs:      cur.AvgLatencyMs(),
		Crawls:            cur.Crawls,
		PartialCrawls:     cur.PartialCrawls,
		PagesCrawled:      cur.PagesCrawled,
		PagesFailed:       cur.PagesFailed,
		KeywordLoads:      cur.KeywordLoads,
		Comparisons:       cur.Comparisons,
	}
	if detailed {
		sum.PopularHosts = topHosts(cur.Hosts, popularHosts)
	}
	return sum
}

func topHosts(hosts map[string]int, n int) []HostCount {
	out := make([]HostCount, 0, len(hosts))
	for h, c := range hosts {
		out = append(out, HostCount{Host: h, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Host < out[j].Host
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
