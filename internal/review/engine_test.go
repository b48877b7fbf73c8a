package review

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	name     string
	only     string
	findings map[string][]Finding
	err      error
	panicMsg string
	empty    bool
	delay    time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeAnalyzer) Name() string { return f.name }

func (f *fakeAnalyzer) CanAnalyze(rec ChangeRecord) bool {
	return f.only == "" || rec.Language == f.only
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, rec ChangeRecord) (*AnalysisResult, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	return &AnalysisResult{
		Findings:  f.findings[rec.Path],
		Succeeded: true,
		Metadata:  map[string]any{"by": f.name},
	}, nil
}

var defaultFilter = Filter{IncludedExtensions: []string{".py", ".go"}}

func records(paths ...string) []ChangeRecord {
	out := make([]ChangeRecord, len(paths))
	for i, p := range paths {
		out[i] = NewChangeRecord(p, "", StatusModified, 1, 0, "@@ -1 +1 @@\n+x")
	}
	return out
}

func TestEngine_Register(t *testing.T) {
	e := NewEngine(EngineConfig{})

	var nilPtr *fakeAnalyzer
	tests := []struct {
		name string
		a    Analyzer
	}{
		{"nil interface", nil},
		{"typed nil", nilPtr},
		{"empty name", &fakeAnalyzer{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Register(tt.a)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidAnalyzer)
			var iae *InvalidAnalyzerError
			assert.ErrorAs(t, err, &iae)
		})
	}

	require.NoError(t, e.Register(&fakeAnalyzer{name: "one"}))
	require.NoError(t, e.Register(&fakeAnalyzer{name: "two"}))
	assert.Equal(t, []string{"one", "two"}, e.Analyzers())
}

func TestEngine_SequentialMergesInRegistrationOrder(t *testing.T) {
	a := &fakeAnalyzer{name: "static", findings: map[string][]Finding{
		"a.py": {{Body: "s1", Severity: SeverityWarning, Line: 3}},
	}}
	b := &fakeAnalyzer{name: "patterns", findings: map[string][]Finding{
		"a.py": {{Body: "p1", Severity: SeverityInfo}, {Body: "p2", Severity: SeverityInfo, ProducedBy: "custom"}},
		"b.go": {{Body: "p3", Severity: SeverityWarning}},
	}}
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(a))
	require.NoError(t, e.Register(b))

	cs := ChangeSet{ID: "cs-1", Source: "diff", Records: records("a.py", "README.md", "b.go")}
	s := e.Analyze(context.Background(), cs, false)

	require.Len(t, s.Results, 2)
	assert.Equal(t, "a.py", s.Results[0].Path)
	assert.Equal(t, "b.go", s.Results[1].Path)
	assert.Equal(t, []string{"s1", "p1", "p2"}, bodies(s.Results[0].Findings))

	f := s.Results[0].Findings
	assert.Equal(t, "static", f[0].ProducedBy)
	assert.Equal(t, "patterns", f[1].ProducedBy)
	assert.Equal(t, "custom", f[2].ProducedBy)
	assert.Equal(t, "a.py", f[0].Path)
	assert.Equal(t, "patterns", s.Results[0].Metadata["by"])

	assert.Equal(t, OverallSuccess, s.OverallStatus)
	assert.Equal(t, 2, s.FilesConsidered)
	assert.Equal(t, SeverityCounts{Warning: 2, Info: 2}, s.Counts)
	assert.Equal(t, ToolName, s.Tool)
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, "cs-1", s.ChangeSet.ID)
}

func TestEngine_AnalyzerErrorBecomesFailedResult(t *testing.T) {
	good := &fakeAnalyzer{name: "good", findings: map[string][]Finding{"a.py": {{Body: "g", Severity: SeverityInfo}}}}
	bad := &fakeAnalyzer{name: "bad", err: errors.New("tool exploded")}
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(good))
	require.NoError(t, e.Register(bad))

	s := e.Analyze(context.Background(), ChangeSet{Records: records("a.py")}, false)
	require.Len(t, s.Results, 1)
	r := s.Results[0]
	assert.False(t, r.Succeeded)
	assert.Equal(t, "bad: tool exploded", r.ErrorDetail)
	assert.Equal(t, []string{"g"}, bodies(r.Findings))
	assert.Equal(t, OverallFailure, s.OverallStatus, "the only result failed")
}

func TestEngine_PanicIsRecovered(t *testing.T) {
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(&fakeAnalyzer{name: "boom", panicMsg: "index out of range"}))
	require.NoError(t, e.Register(&fakeAnalyzer{name: "fine"}))

	s := e.Analyze(context.Background(), ChangeSet{Records: records("a.py", "b.py")}, false)
	require.Len(t, s.Results, 2)
	for _, r := range s.Results {
		assert.False(t, r.Succeeded)
		assert.Contains(t, r.ErrorDetail, "boom: panic: index out of range")
	}
	assert.Equal(t, OverallFailure, s.OverallStatus)
}

func TestEngine_PartialFailure(t *testing.T) {
	flaky := AnalyzerFunc{ID: "flaky", Fn: func(_ context.Context, rec ChangeRecord) (*AnalysisResult, error) {
		if rec.Path == "b.py" {
			return nil, errors.New("timeout")
		}
		return &AnalysisResult{Succeeded: true}, nil
	}}
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(flaky))

	s := e.Analyze(context.Background(), ChangeSet{Records: records("a.py", "b.py")}, false)
	require.Len(t, s.Results, 2)
	assert.Equal(t, OverallPartialFailure, s.OverallStatus)
	assert.Len(t, s.FailedResults(), 1)
}

func TestEngine_NoContributionOmitsFile(t *testing.T) {
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(&fakeAnalyzer{name: "pyonly", only: "python"}))
	require.NoError(t, e.Register(&fakeAnalyzer{name: "silent", empty: true}))

	s := e.Analyze(context.Background(), ChangeSet{Records: records("a.py", "b.go")}, false)
	require.Len(t, s.Results, 1)
	assert.Equal(t, "a.py", s.Results[0].Path)
	assert.Equal(t, 2, s.FilesConsidered)
}

func TestEngine_NoEligibleFilesIsFailure(t *testing.T) {
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(&fakeAnalyzer{name: "a"}))

	s := e.Analyze(context.Background(), ChangeSet{Records: records("README.md")}, true)
	assert.Empty(t, s.Results)
	assert.NotNil(t, s.Results)
	assert.Equal(t, OverallFailure, s.OverallStatus)
}

func TestEngine_DeletedFilesNeverReachAnalyzers(t *testing.T) {
	a := &fakeAnalyzer{name: "a"}
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(a))

	recs := []ChangeRecord{NewChangeRecord("gone.py", "", StatusDeleted, 0, 10, "")}
	e.Analyze(context.Background(), ChangeSet{Records: recs}, false)
	assert.Zero(t, a.calls.Load())
}

func TestEngine_ParallelMatchesSequential(t *testing.T) {
	findings := map[string][]Finding{}
	var paths []string
	for _, p := range []string{"a.py", "b.py", "c.py", "d.go", "e.go", "f.go", "g.py"} {
		paths = append(paths, p)
		findings[p] = []Finding{{Body: "f-" + p, Severity: SeverityWarning}}
	}
	a := &fakeAnalyzer{name: "a", findings: findings, delay: 5 * time.Millisecond}
	e := NewEngine(EngineConfig{Filter: defaultFilter, MaxWorkers: 3})
	require.NoError(t, e.Register(a))

	cs := ChangeSet{Records: records(paths...)}
	seq := e.Analyze(context.Background(), cs, false)
	par := e.Analyze(context.Background(), cs, true)

	assert.Equal(t, paths, resultPaths(seq.Results), "sequential keeps input order")

	got := resultPaths(par.Results)
	sort.Strings(got)
	assert.Equal(t, paths, got)
	assert.Equal(t, seq.Counts, par.Counts)
	assert.Equal(t, seq.OverallStatus, par.OverallStatus)
	assert.LessOrEqual(t, a.maxSeen.Load(), int32(3))
	assert.Greater(t, a.maxSeen.Load(), int32(1))
}

func TestEngine_CancelledContext(t *testing.T) {
	a := &fakeAnalyzer{name: "a"}
	e := NewEngine(EngineConfig{Filter: defaultFilter})
	require.NoError(t, e.Register(a))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{false, true} {
		s := e.Analyze(ctx, ChangeSet{Records: records("a.py", "b.py")}, parallel)
		require.Len(t, s.Results, 2)
		for _, r := range s.Results {
			assert.False(t, r.Succeeded)
			assert.Contains(t, r.ErrorDetail, "analysis cancelled")
		}
		assert.Equal(t, OverallFailure, s.OverallStatus)
	}
	assert.Zero(t, a.calls.Load())
}

func TestEngine_RulesApplied(t *testing.T) {
	a := &fakeAnalyzer{name: "static", findings: map[string][]Finding{
		"a.py": {
			{Body: "[flake8 E501] line too long", Severity: SeverityError},
			{Body: "[flake8 W291] trailing whitespace", Severity: SeverityWarning},
		},
	}}
	rules := &Rules{
		SeverityOverrides: map[string]Severity{"E501": SeverityInfo},
		Suppress:          []string{"flake8 W291"},
	}
	e := NewEngine(EngineConfig{Filter: defaultFilter, Rules: rules})
	require.NoError(t, e.Register(a))

	s := e.Analyze(context.Background(), ChangeSet{Records: records("a.py")}, false)
	require.Len(t, s.Results, 1)
	require.Len(t, s.Results[0].Findings, 1)
	assert.Equal(t, SeverityInfo, s.Results[0].Findings[0].Severity)
	assert.Equal(t, OverallSuccess, s.OverallStatus)
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := NewEngine(EngineConfig{Filter: defaultFilter}, WithMetrics(m))
	require.NoError(t, e.Register(&fakeAnalyzer{name: "ok"}))
	require.NoError(t, e.Register(&fakeAnalyzer{name: "bad", err: errors.New("x")}))

	e.Analyze(context.Background(), ChangeSet{Records: records("a.py", "b.py")}, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesAnalyzed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.analyzerCalls.WithLabelValues("ok", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.analyzerCalls.WithLabelValues("bad", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(string(OverallFailure))))
}

func resultPaths(rs []AnalysisResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Path
	}
	return out
}
