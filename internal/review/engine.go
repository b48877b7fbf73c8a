package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/critic/internal/logging"
)

// ToolName is reported in every summary.
const ToolName = "critic"

// DefaultMaxWorkers bounds the worker pool when EngineConfig leaves it unset.
const DefaultMaxWorkers = 4

// EngineConfig controls file selection and parallelism.
type EngineConfig struct {
	Filter     Filter
	MaxWorkers int
	// Rules, when set, rewrite merged findings before status is computed.
	Rules *Rules
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine dispatches change records to registered analyzers and merges their
// results into a ReviewSummary.
type Engine struct {
	cfg     EngineConfig
	log     zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	mu        sync.RWMutex
	analyzers []Analyzer
}

// NewEngine creates an engine with no analyzers registered.
func NewEngine(cfg EngineConfig, opts ...Option) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	e := &Engine{
		cfg: cfg,
		log: logging.Component("engine"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register appends an analyzer. Analyzers run in registration order.
func (e *Engine) Register(a Analyzer) error {
	if err := validateAnalyzer(a); err != nil {
		return err
	}
	e.mu.Lock()
	e.analyzers = append(e.analyzers, a)
	e.mu.Unlock()
	e.log.Debug().Str("analyzer", a.Name()).Msg("registered analyzer")
	return nil
}

// Analyzers returns the names of the registered analyzers in order.
func (e *Engine) Analyzers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.analyzers))
	for i, a := range e.analyzers {
		names[i] = a.Name()
	}
	return names
}

// Analyze reviews every eligible record in cs. It never fails: analyzer
// errors, panics and cancellation are reported through the results and the
// overall status.
//
// In sequential mode results follow the filtered input order. In parallel
// mode up to MaxWorkers files are analyzed at once and results are collected
// in completion order.
func (e *Engine) Analyze(ctx context.Context, cs ChangeSet, parallel bool) *ReviewSummary {
	start := e.now()

	e.mu.RLock()
	analyzers := append([]Analyzer(nil), e.analyzers...)
	e.mu.RUnlock()

	eligible := e.cfg.Filter.Apply(cs.Records)
	e.log.Debug().
		Str("changeSet", cs.ID).
		Int("records", len(cs.Records)).
		Int("eligible", len(eligible)).
		Int("analyzers", len(analyzers)).
		Bool("parallel", parallel).
		Msg("starting analysis")

	var results []AnalysisResult
	if parallel && len(eligible) > 1 {
		results = e.runParallel(ctx, analyzers, eligible)
	} else {
		results = e.runSequential(ctx, analyzers, eligible)
	}
	if results == nil {
		results = []AnalysisResult{}
	}
	e.cfg.Rules.Apply(results)

	var findings []Finding
	for _, r := range results {
		findings = append(findings, r.Findings...)
	}
	counts, highest := ComputeCounts(findings)
	status := DetermineStatus(results)
	elapsed := e.now().Sub(start)

	e.metrics.observeRun(status)
	e.log.Info().
		Str("changeSet", cs.ID).
		Str("status", string(status)).
		Int("results", len(results)).
		Int("findings", len(findings)).
		Dur("elapsed", elapsed).
		Msg("analysis complete")

	return &ReviewSummary{
		Tool:            ToolName,
		RunID:           uuid.NewString(),
		ChangeSet:       cs,
		Results:         results,
		OverallStatus:   status,
		Counts:          counts,
		HighestSeverity: highest,
		FilesConsidered: len(eligible),
		Elapsed:         elapsed,
		ElapsedMs:       elapsed.Milliseconds(),
		CreatedAt:       start,
	}
}

func (e *Engine) runSequential(ctx context.Context, analyzers []Analyzer, records []ChangeRecord) []AnalysisResult {
	var results []AnalysisResult
	for _, rec := range records {
		if res := e.analyzeFile(ctx, analyzers, rec); res != nil {
			results = append(results, *res)
		}
	}
	return results
}

func (e *Engine) runParallel(ctx context.Context, analyzers []Analyzer, records []ChangeRecord) []AnalysisResult {
	workers := min(e.cfg.MaxWorkers, len(records))

	jobs := make(chan ChangeRecord)
	var (
		mu      sync.Mutex
		results []AnalysisResult
	)

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for rec := range jobs {
				res := e.analyzeFile(ctx, analyzers, rec)
				if res == nil {
					continue
				}
				mu.Lock()
				results = append(results, *res)
				mu.Unlock()
			}
			return nil
		})
	}
	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)
	_ = g.Wait() // workers never return an error

	return results
}

// analyzeFile runs every applicable analyzer on rec and merges the outputs.
// It returns nil when no analyzer contributed.
func (e *Engine) analyzeFile(ctx context.Context, analyzers []Analyzer, rec ChangeRecord) *AnalysisResult {
	if err := ctx.Err(); err != nil {
		return &AnalysisResult{
			Path:        rec.Path,
			Findings:    []Finding{},
			ErrorDetail: fmt.Sprintf("analysis cancelled: %v", err),
		}
	}
	e.metrics.observeFile()

	var parts []*AnalysisResult
	for _, a := range analyzers {
		if ap, ok := a.(Applicable); ok && !ap.CanAnalyze(rec) {
			continue
		}
		if res := e.invoke(ctx, a, rec); res != nil {
			parts = append(parts, res)
		}
	}
	return MergeResults(rec.Path, parts)
}

// invoke calls one analyzer, converting errors and panics into failed
// results and stamping path, producer and elapsed time.
func (e *Engine) invoke(ctx context.Context, a Analyzer, rec ChangeRecord) (res *AnalysisResult) {
	name := a.Name()
	start := e.now()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		elapsed := e.now().Sub(start)
		e.log.Error().Str("analyzer", name).Str("path", rec.Path).Interface("panic", r).Msg("analyzer panicked")
		e.metrics.observeCall(name, "panic", elapsed)
		res = failedResult(rec.Path, fmt.Sprintf("%s: panic: %v", name, r), elapsed)
	}()

	out, err := a.Analyze(ctx, rec)
	elapsed := e.now().Sub(start)

	if err != nil {
		e.log.Warn().Err(err).Str("analyzer", name).Str("path", rec.Path).Msg("analyzer failed")
		e.metrics.observeCall(name, "error", elapsed)
		return failedResult(rec.Path, fmt.Sprintf("%s: %v", name, err), elapsed)
	}
	if out == nil {
		e.metrics.observeCall(name, "empty", elapsed)
		return nil
	}

	result := *out
	result.Path = rec.Path
	result.Elapsed = elapsed
	result.Findings = make([]Finding, len(out.Findings))
	for i, f := range out.Findings {
		if f.Path == "" {
			f.Path = rec.Path
		}
		if f.ProducedBy == "" {
			f.ProducedBy = name
		}
		result.Findings[i] = f
	}

	outcome := "ok"
	if !result.Succeeded {
		outcome = "failed"
	}
	e.metrics.observeCall(name, outcome, elapsed)
	return &result
}

func failedResult(path, detail string, elapsed time.Duration) *AnalysisResult {
	return &AnalysisResult{
		Path:        path,
		Findings:    []Finding{},
		ErrorDetail: detail,
		Elapsed:     elapsed,
	}
}

func (m *Metrics) observeFile() {
	if m == nil {
		return
	}
	m.filesAnalyzed.Inc()
}

func (m *Metrics) observeCall(analyzer, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyzerCalls.WithLabelValues(analyzer, outcome).Inc()
	m.analyzerDuration.WithLabelValues(analyzer).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRun(status OverallStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}
