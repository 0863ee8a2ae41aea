package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, dir string) *Storage {
	t.Helper()
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)

	s, err := NewStorage(dir, log)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestStorage(t *testing.T) {
	tempDir := t.TempDir()
	storage := newTestStorage(t, tempDir)

	t.Run("Record", func(t *testing.T) {
		storage.RecordRequest(40*time.Millisecond, false)
		storage.RecordRequest(20*time.Millisecond, true)
		storage.RecordCrawl("example.com", 12, 2, true)
		storage.RecordKeywordLoad(250)
		storage.RecordComparison()

		stats := storage.GetCurrentStats()
		assert.Equal(t, 2, stats.Requests)
		assert.Equal(t, 1, stats.Errors)
		assert.InDelta(t, 30.0, stats.AvgLatencyMs(), 1e-9)
		assert.InDelta(t, 50.0, stats.ErrorRate(), 1e-9)
		assert.Equal(t, 1, stats.Crawls)
		assert.Equal(t, 1, stats.PartialCrawls)
		assert.Equal(t, 12, stats.PagesCrawled)
		assert.Equal(t, 2, stats.PagesFailed)
		assert.Equal(t, 250, stats.KeywordsLoaded)
		assert.Equal(t, 1, stats.Comparisons)
		assert.Equal(t, map[string]int{"example.com": 1}, stats.Hosts)
	})

	t.Run("Persistence", func(t *testing.T) {
		require.NoError(t, storage.Flush())

		storage2 := newTestStorage(t, tempDir)
		stats := storage2.GetCurrentStats()
		assert.Equal(t, 1, stats.Crawls)
		assert.Equal(t, 250, stats.KeywordsLoaded)
	})

	t.Run("Cleanup", func(t *testing.T) {
		oldMonth := time.Now().AddDate(0, -2, 0).Format("2006-01")
		storage.mutex.Lock()
		storage.stats[oldMonth] = &MonthlyStats{Crawls: 100}
		storage.mutex.Unlock()

		storage.Cleanup(2)

		_, exists := storage.GetMonthlyStats(oldMonth)
		assert.False(t, exists, "old stats should have been cleaned up")
		assert.Len(t, storage.GetAllMonths(), 1)
	})

	t.Run("FileSize", func(t *testing.T) {
		require.NoError(t, storage.Flush())

		info, err := os.Stat(filepath.Join(tempDir, "stats.json"))
		require.NoError(t, err)
		assert.Less(t, info.Size(), int64(1024))
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		before := storage.GetCurrentStats()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					storage.RecordRequest(time.Millisecond, false)
					storage.RecordCrawl("a.example", 1, 0, false)
					storage.GetCurrentStats()
				}
			}()
		}
		wg.Wait()

		stats := storage.GetCurrentStats()
		assert.Equal(t, before.Requests+1000, stats.Requests)
		assert.Equal(t, before.Crawls+1000, stats.Crawls)
		assert.Equal(t, 1000, stats.Hosts["a.example"])
	})
}

func TestStorageShutdownFlushes(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage(dir, nil)
	require.NoError(t, err)

	s.RecordComparison()
	s.Shutdown()
	s.Shutdown()

	_, err = os.Stat(filepath.Join(dir, "stats.json"))
	assert.NoError(t, err)
}

func TestSummary(t *testing.T) {
	s := newTestStorage(t, t.TempDir())
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.TrackVisitor("10.0.0.1")
	s.TrackVisitor("10.0.0.2")
	s.TrackVisitor("10.0.0.1")
	for i := 0; i < 3; i++ {
		s.RecordCrawl("b.example", 1, 0, false)
	}
	s.RecordCrawl("a.example", 1, 0, false)

	sum := s.Summary(false)
	assert.Equal(t, "2026-03", sum.Month)
	assert.Equal(t, 2, sum.UniqueVisitors24h)
	assert.Equal(t, 4, sum.Crawls)
	assert.Nil(t, sum.PopularHosts)

	detailed := s.Summary(true)
	assert.Equal(t, []HostCount{{"b.example", 3}, {"a.example", 1}}, detailed.PopularHosts)

	now = now.Add(25 * time.Hour)
	assert.Zero(t, s.Summary(false).UniqueVisitors24h, "visitors expire after a day")
}

func TestNewStorageRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stats.json"), []byte("{not json"), 0o644))

	_, err := NewStorage(dir, nil)
	assert.Error(t, err)
}
