package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/critic/internal/review"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := Open(Options{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		TTL:     ttl,
		Now:     clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, clock
}

func sampleResult() *review.AnalysisResult {
	return &review.AnalysisResult{
		Path: "app/main.py",
		Findings: []review.Finding{
			{Body: "[flake8 E501] line too long", Severity: review.SeverityError, Line: 12, Path: "app/main.py", ProducedBy: "static"},
		},
		Succeeded: true,
		Elapsed:   250 * time.Millisecond,
		Metadata:  map[string]any{"tools": "flake8"},
	}
}

func TestManager_StoreLookup(t *testing.T) {
	m, _ := newTestManager(t, 24*time.Hour)
	ctx := context.Background()

	_, ok := m.Lookup(ctx, "app/main.py", "print(1)", "static")
	assert.False(t, ok, "miss before store")

	m.Store(ctx, "app/main.py", "print(1)", "static", sampleResult())

	got, ok := m.Lookup(ctx, "app/main.py", "print(1)", "static")
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)

	_, ok = m.Lookup(ctx, "app/main.py", "print(1)", "patterns")
	assert.False(t, ok, "kind is part of the key")

	_, ok = m.Lookup(ctx, "app/main.py", "print(2)", "static")
	assert.False(t, ok, "content is part of the key")
}

func TestManager_SameContentDifferentPathHits(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	m.Store(ctx, "a.py", "x = 1\n", "static", sampleResult())
	_, ok := m.Lookup(ctx, "copy/a.py", "x = 1\n", "static")
	assert.True(t, ok)
}

func TestManager_StoreIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	m.Store(ctx, "a.py", "code", "static", sampleResult())
	updated := sampleResult()
	updated.Findings = nil
	m.Store(ctx, "a.py", "code", "static", updated)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)

	got, ok := m.Lookup(ctx, "a.py", "code", "static")
	require.True(t, ok)
	assert.Empty(t, got.Findings, "last write wins")
}

func TestManager_TTLExpiration(t *testing.T) {
	m, clock := newTestManager(t, time.Hour)
	ctx := context.Background()

	m.Store(ctx, "a.py", "code", "static", sampleResult())

	clock.Advance(time.Hour)
	_, ok := m.Lookup(ctx, "a.py", "code", "static")
	assert.True(t, ok, "age equal to ttl is still valid")

	clock.Advance(time.Second)
	_, ok = m.Lookup(ctx, "a.py", "code", "static")
	assert.False(t, ok, "expired entry misses")

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries, "expired entry deleted on lookup")
}

func TestManager_ExpiredDeleteKeepsConcurrentStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := start.Add(2 * time.Hour)

	writer, err := Open(Options{Enabled: true, Path: path, TTL: time.Hour, Now: func() time.Time { return later }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	// The reader's clock fires between reading the stale row and deleting
	// it, which is where another process may rewrite the entry.
	var (
		now     = start
		rewrite func()
	)
	reader, err := Open(Options{Enabled: true, Path: path, TTL: time.Hour, Now: func() time.Time {
		if rewrite != nil {
			r := rewrite
			rewrite = nil
			r()
		}
		return now
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	reader.Store(ctx, "a.py", "code", "static", sampleResult())

	now = later
	fresh := sampleResult()
	fresh.Findings = nil
	rewrite = func() { writer.Store(ctx, "a.py", "code", "static", fresh) }

	_, ok := reader.Lookup(ctx, "a.py", "code", "static")
	assert.False(t, ok, "the row read was expired")

	got, ok := writer.Lookup(ctx, "a.py", "code", "static")
	require.True(t, ok, "the rewritten row must survive the expiry delete")
	assert.Empty(t, got.Findings)
}

func TestManager_ZeroTTLNeverExpires(t *testing.T) {
	m, clock := newTestManager(t, 0)
	ctx := context.Background()

	m.Store(ctx, "a.py", "code", "static", sampleResult())
	clock.Advance(365 * 24 * time.Hour)
	_, ok := m.Lookup(ctx, "a.py", "code", "static")
	assert.True(t, ok)
}

func TestManager_Cleanup(t *testing.T) {
	m, clock := newTestManager(t, 0)
	ctx := context.Background()

	m.Store(ctx, "old.py", "old", "static", sampleResult())
	clock.Advance(10 * 24 * time.Hour)
	m.Store(ctx, "new.py", "new", "static", sampleResult())

	n, err := m.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := m.Lookup(ctx, "old.py", "old", "static")
	assert.False(t, ok)
	_, ok = m.Lookup(ctx, "new.py", "new", "static")
	assert.True(t, ok)

	_, err = m.Cleanup(ctx, -1)
	assert.Error(t, err)
}

func TestManager_LookupRefreshesAccessTime(t *testing.T) {
	m, clock := newTestManager(t, 0)
	ctx := context.Background()

	m.Store(ctx, "a.py", "code", "static", sampleResult())
	clock.Advance(6 * 24 * time.Hour)
	_, ok := m.Lookup(ctx, "a.py", "code", "static")
	require.True(t, ok)
	clock.Advance(3 * 24 * time.Hour)

	n, err := m.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n, "recently read entry survives cleanup")
}

func TestManager_ClearAndStats(t *testing.T) {
	m, clock := newTestManager(t, time.Hour)
	ctx := context.Background()

	m.Store(ctx, "a.py", "a", "static", sampleResult())
	m.Store(ctx, "b.py", "b", "static", sampleResult())
	m.Store(ctx, "a.py", "a", "patterns", sampleResult())
	clock.Advance(2 * time.Hour)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Enabled)
	assert.Equal(t, int64(3), stats.Entries)
	assert.Equal(t, map[string]int64{"static": 2, "patterns": 1}, stats.ByAnalyzer)
	assert.Equal(t, int64(3), stats.Expired)
	assert.Positive(t, stats.SizeBytes)

	require.NoError(t, m.Clear(ctx))
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
	assert.Empty(t, stats.ByAnalyzer)
}

func TestManager_Disabled(t *testing.T) {
	m, err := Open(Options{Enabled: false})
	require.NoError(t, err)
	ctx := context.Background()

	m.Store(ctx, "a.py", "code", "static", sampleResult())
	_, ok := m.Lookup(ctx, "a.py", "code", "static")
	assert.False(t, ok)

	n, err := m.Cleanup(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, m.Clear(ctx))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Enabled)
	require.NoError(t, m.Close())
}

func TestManager_StorageFailureDegrades(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := Open(Options{
		Enabled:    true,
		Path:       filepath.Join(t.TempDir(), "cache.db"),
		TTL:        time.Hour,
		Registerer: reg,
	})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.Store(ctx, "a.py", "code", "static", sampleResult())
	})
	_, ok := m.Lookup(ctx, "a.py", "code", "static")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.errors.WithLabelValues("store", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.errors.WithLabelValues("lookup", "false")))
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := string(rune('a' + i))
			m.Store(ctx, "f.py", content, "static", sampleResult())
			m.Lookup(ctx, "f.py", content, "static")
		}()
	}
	wg.Wait()

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.Entries)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	assert.Len(t, Fingerprint(""), 64)
}

func TestDefaultPath_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "critic", "analysis_cache.db"), p)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cache.db")
	m, err := Open(Options{Enabled: true, Path: path})
	require.NoError(t, err)
	defer m.Close()
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
