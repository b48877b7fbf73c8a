package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dshills/critic/internal/logging"
	"github.com/dshills/critic/internal/review"
)

//go:embed schema.sql
var schemaSQL string

const (
	dbFileName   = "analysis_cache.db"
	maxOpenConns = 10
	maxIdleConns = 5
	busyTimeout  = 5000 // milliseconds
)

// Options configures a Manager.
type Options struct {
	Enabled bool
	// Path is the database file. Empty means DefaultPath().
	Path string
	// TTL bounds entry age; zero or negative disables expiry.
	TTL time.Duration

	Logger     *zerolog.Logger
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Manager stores and retrieves analyzer results.
type Manager struct {
	db      *sql.DB
	path    string
	ttl     time.Duration
	enabled bool
	log     zerolog.Logger
	now     func() time.Time
	metrics *metrics
}

// Stats describes the cache contents.
type Stats struct {
	Path       string           `json:"path"`
	Enabled    bool             `json:"enabled"`
	Entries    int64            `json:"entries"`
	ByAnalyzer map[string]int64 `json:"byAnalyzer"`
	Expired    int64            `json:"expired"`
	SizeBytes  int64            `json:"sizeBytes"`
}

// Open creates a Manager. When opts.Enabled is false no database is opened
// and every lookup misses.
func Open(opts Options) (*Manager, error) {
	m := &Manager{
		ttl:     opts.TTL,
		enabled: opts.Enabled,
		now:     opts.Now,
		metrics: newMetrics(opts.Registerer),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	} else {
		m.log = logging.Component("cache")
	}
	if !opts.Enabled {
		return m, nil
	}

	path := opts.Path
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	m.db = db
	m.path = path
	return m, nil
}

// Close releases the database handle.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Enabled returns whether caching is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Path returns the database file path, or "" when disabled.
func (m *Manager) Path() string {
	return m.path
}

// Fingerprint returns the SHA-256 hex digest of content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached result for content under the given analyzer
// kind. Expired entries are deleted and reported as a miss.
func (m *Manager) Lookup(ctx context.Context, path, content, kind string) (*review.AnalysisResult, bool) {
	if !m.enabled {
		return nil, false
	}
	fp := Fingerprint(content)

	var (
		data      string
		createdAt int64
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT result_data, created_at FROM analysis_cache WHERE fingerprint = ? AND analyzer_kind = ?`,
		fp, kind,
	).Scan(&data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		m.metrics.miss(kind)
		return nil, false
	}
	if err != nil {
		m.storageError("lookup", kind, path, err)
		return nil, false
	}

	now := m.now()
	if m.expired(createdAt, now) {
		m.log.Debug().Str("path", path).Str("analyzer", kind).Msg("cache entry expired")
		m.metrics.expired(kind)
		m.delete(ctx, fp, kind, path, createdAt)
		return nil, false
	}

	var result review.AnalysisResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		m.storageError("decode", kind, path, err)
		m.delete(ctx, fp, kind, path, createdAt)
		return nil, false
	}

	if _, err := m.db.ExecContext(ctx,
		`UPDATE analysis_cache SET last_accessed_at = ? WHERE fingerprint = ? AND analyzer_kind = ?`,
		now.UnixNano(), fp, kind,
	); err != nil {
		m.storageError("touch", kind, path, err)
	}

	m.metrics.hit(kind)
	m.log.Debug().Str("path", path).Str("analyzer", kind).Msg("cache hit")
	return &result, true
}

// Store saves result for content under the given analyzer kind, replacing
// any existing entry.
func (m *Manager) Store(ctx context.Context, path, content, kind string, result *review.AnalysisResult) {
	if !m.enabled || result == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		m.storageError("encode", kind, path, err)
		return
	}
	now := m.now().UnixNano()
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO analysis_cache (fingerprint, analyzer_kind, path, result_data, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, analyzer_kind) DO UPDATE SET
			path = excluded.path,
			result_data = excluded.result_data,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at`,
		Fingerprint(content), kind, path, string(data), now, now,
	)
	if err != nil {
		m.storageError("store", kind, path, err)
		return
	}
	m.log.Debug().Str("path", path).Str("analyzer", kind).Msg("cache store")
}

// Cleanup deletes entries not accessed within the last olderThanDays days and
// returns how many were removed.
func (m *Manager) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if !m.enabled {
		return 0, nil
	}
	if olderThanDays < 0 {
		return 0, fmt.Errorf("cleanup: days must be >= 0, got %d", olderThanDays)
	}
	cutoff := m.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour).UnixNano()
	res, err := m.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE last_accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleaning cache: %w", err)
	}
	m.log.Info().Int64("removed", n).Int("days", olderThanDays).Msg("cache cleanup")
	return n, nil
}

// Clear removes all cache entries.
func (m *Manager) Clear(ctx context.Context) error {
	if !m.enabled {
		return nil
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM analysis_cache`); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Stats returns entry counts by analyzer kind and the on-disk size of the
// database, including its write-ahead log.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Path: m.path, Enabled: m.enabled, ByAnalyzer: map[string]int64{}}
	if !m.enabled {
		return stats, nil
	}

	rows, err := m.db.QueryContext(ctx, `SELECT analyzer_kind, COUNT(*) FROM analysis_cache GROUP BY analyzer_kind`)
	if err != nil {
		return stats, fmt.Errorf("reading cache stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return stats, fmt.Errorf("reading cache stats: %w", err)
		}
		stats.ByAnalyzer[kind] = count
		stats.Entries += count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("reading cache stats: %w", err)
	}

	if m.ttl > 0 {
		cutoff := m.now().Add(-m.ttl).UnixNano()
		if err := m.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM analysis_cache WHERE created_at < ?`, cutoff,
		).Scan(&stats.Expired); err != nil {
			return stats, fmt.Errorf("reading cache stats: %w", err)
		}
	}

	for _, f := range []string{m.path, m.path + "-wal"} {
		if info, err := os.Stat(f); err == nil {
			stats.SizeBytes += info.Size()
		}
	}
	return stats, nil
}

func (m *Manager) expired(createdAt int64, now time.Time) bool {
	if m.ttl <= 0 {
		return false
	}
	return now.Sub(time.Unix(0, createdAt)) > m.ttl
}

// delete removes the row that was read with createdAt. A row rewritten by
// a concurrent Store since then carries a newer created_at and is kept.
func (m *Manager) delete(ctx context.Context, fp, kind, path string, createdAt int64) {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM analysis_cache WHERE fingerprint = ? AND analyzer_kind = ? AND created_at = ?`,
		fp, kind, createdAt,
	); err != nil {
		m.storageError("delete", kind, path, err)
	}
}

func (m *Manager) storageError(op, kind, path string, err error) {
	m.metrics.failure(op, isBusy(err))
	m.log.Warn().Err(err).Str("op", op).Str("analyzer", kind).Str("path", path).Msg("cache unavailable, continuing without it")
}

// isBusy reports whether err is SQLITE_BUSY, which means another writer
// held the lock longer than the busy timeout.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_BUSY
	}
	return false
}

// DefaultPath returns the default database path.
func DefaultPath() (string, error) {
	dir, err := defaultCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbFileName), nil
}

func defaultCacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "critic"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "critic"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "critic", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "critic", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "critic"), nil
	}
}
