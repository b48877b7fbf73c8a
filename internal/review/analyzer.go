package review

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Analyzer inspects one changed file and reports findings.
//
// Analyze may return (nil, nil) to indicate it has nothing to say about the
// file; such a call contributes nothing to the merged result. A non-nil error
// is converted by the engine into a failed result for that file.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, rec ChangeRecord) (*AnalysisResult, error)
}

// Applicable is implemented by analyzers that only handle some files.
// The engine skips an analyzer whose CanAnalyze returns false.
type Applicable interface {
	CanAnalyze(rec ChangeRecord) bool
}

// ErrInvalidAnalyzer is matched by every *InvalidAnalyzerError.
var ErrInvalidAnalyzer = errors.New("invalid analyzer")

// InvalidAnalyzerError reports why an analyzer was rejected at registration.
type InvalidAnalyzerError struct {
	Reason string
}

func (e *InvalidAnalyzerError) Error() string {
	return fmt.Sprintf("invalid analyzer: %s", e.Reason)
}

// Is makes errors.Is(err, ErrInvalidAnalyzer) succeed.
func (e *InvalidAnalyzerError) Is(target error) bool {
	return target == ErrInvalidAnalyzer
}

func validateAnalyzer(a Analyzer) error {
	if a == nil {
		return &InvalidAnalyzerError{Reason: "analyzer is nil"}
	}
	if v := reflect.ValueOf(a); v.Kind() == reflect.Pointer && v.IsNil() {
		return &InvalidAnalyzerError{Reason: fmt.Sprintf("analyzer of type %T is a nil pointer", a)}
	}
	if a.Name() == "" {
		return &InvalidAnalyzerError{Reason: fmt.Sprintf("analyzer of type %T has an empty name", a)}
	}
	return nil
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc struct {
	ID string
	Fn func(ctx context.Context, rec ChangeRecord) (*AnalysisResult, error)
}

// Name returns the analyzer identifier.
func (f AnalyzerFunc) Name() string { return f.ID }

// Analyze calls the wrapped function.
func (f AnalyzerFunc) Analyze(ctx context.Context, rec ChangeRecord) (*AnalysisResult, error) {
	if f.Fn == nil {
		return nil, nil
	}
	return f.Fn(ctx, rec)
}
