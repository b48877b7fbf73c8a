package analyzers

import (
	"context"
	"maps"
	"strconv"
	"strings"

	"github.com/dshills/critic/internal/cache"
	"github.com/dshills/critic/internal/diffparse"
	"github.com/dshills/critic/internal/review"
)

// CacheKinder is implemented by analyzers whose output depends on settings
// beyond their name. The returned kind is used as the cache key.
type CacheKinder interface {
	CacheKind() string
}

type cachedAnalyzer struct {
	inner review.Analyzer
	cache *cache.Manager
}

// Cached wraps inner so results for previously seen content are served from
// c. Only successful results are stored. When c is nil or disabled, inner is
// returned unchanged.
func Cached(inner review.Analyzer, c *cache.Manager) review.Analyzer {
	if inner == nil || c == nil || !c.Enabled() {
		return inner
	}
	return &cachedAnalyzer{inner: inner, cache: c}
}

func (a *cachedAnalyzer) Name() string { return a.inner.Name() }

func (a *cachedAnalyzer) CanAnalyze(rec review.ChangeRecord) bool {
	if ap, ok := a.inner.(review.Applicable); ok {
		return ap.CanAnalyze(rec)
	}
	return true
}

func (a *cachedAnalyzer) kind() string {
	if k, ok := a.inner.(CacheKinder); ok {
		return k.CacheKind()
	}
	return a.inner.Name()
}

func (a *cachedAnalyzer) Analyze(ctx context.Context, rec review.ChangeRecord) (*review.AnalysisResult, error) {
	content := cacheContent(rec.Patch)
	if content == "" {
		return a.inner.Analyze(ctx, rec)
	}
	kind := a.kind()

	if hit, ok := a.cache.Lookup(ctx, rec.Path, content, kind); ok {
		return fromCache(hit, rec.Path), nil
	}

	res, err := a.inner.Analyze(ctx, rec)
	if err != nil || res == nil || !res.Succeeded {
		return res, err
	}
	a.cache.Store(ctx, rec.Path, content, kind, res)
	return res, nil
}

// cacheContent is the code an analyzer sees plus the new-file line numbers it
// maps findings onto. Identical code at a different offset is a miss.
func cacheContent(patch string) string {
	code := diffparse.ExtractCode(patch)
	if code == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(code)
	b.WriteByte(0)
	for _, n := range diffparse.LineIndex(patch) {
		b.WriteString(strconv.Itoa(n))
		b.WriteByte(',')
	}
	return b.String()
}

// fromCache re-targets a cached result at path, since identical content may
// have been stored under another file name.
func fromCache(hit *review.AnalysisResult, path string) *review.AnalysisResult {
	out := *hit
	out.Path = path
	out.Findings = make([]review.Finding, len(hit.Findings))
	for i, f := range hit.Findings {
		f.Path = path
		out.Findings[i] = f
	}
	out.Metadata = maps.Clone(hit.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata["cached"] = true
	return &out
}
