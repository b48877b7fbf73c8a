package analyzers

import (
	"github.com/dshills/critic/internal/cache"
	"github.com/dshills/critic/internal/config"
	"github.com/dshills/critic/internal/review"
)

// FromConfig builds the enabled analyzers in the order static, patterns,
// size. Only the linters are cached: the other two depend on which lines
// were added and on the file's metadata, not just its content.
func FromConfig(cfg config.Config, c *cache.Manager, opts ...StaticOption) []review.Analyzer {
	var out []review.Analyzer
	if cfg.Static.Enabled && len(cfg.Static.Tools) > 0 {
		out = append(out, Cached(NewStatic(cfg.Static, opts...), c))
	}
	if cfg.Patterns.Enabled {
		out = append(out, NewPatterns())
	}
	if cfg.Size.Enabled {
		out = append(out, NewSize(cfg.Size.MaxAdditions))
	}
	return out
}
