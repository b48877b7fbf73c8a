package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func paths(recs []ChangeRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Path
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	f := Filter{
		IncludedExtensions: []string{".py", ".go"},
		ExcludedDirs:       []string{"node_modules", "__pycache__"},
		ExcludedPatterns:   []string{"*_pb2.py", "gen/**"},
	}
	records := []ChangeRecord{
		{Path: "app/main.py", Status: StatusModified},
		{Path: "app/gone.py", Status: StatusDeleted},
		{Path: "README.md", Status: StatusModified},
		{Path: "web/node_modules/x.py", Status: StatusAdded},
		{Path: "proto/api_pb2.py", Status: StatusModified},
		{Path: "gen/client/client.go", Status: StatusModified},
		{Path: "cmd/tool.go", Status: StatusRenamed},
		{Path: "lib/__pycache__/m.py", Status: StatusModified},
	}

	got := f.Apply(records)
	assert.Equal(t, []string{"app/main.py", "cmd/tool.go"}, paths(got))
}

func TestFilter_EmptyIncludeAcceptsNothing(t *testing.T) {
	got := Filter{}.Apply([]ChangeRecord{{Path: "a.go", Status: StatusAdded}})
	assert.Empty(t, got)
}

func TestFilter_DirIsSubstringMatch(t *testing.T) {
	f := Filter{IncludedExtensions: []string{".py"}, ExcludedDirs: []string{"build"}}
	got := f.Apply([]ChangeRecord{
		{Path: "rebuild_tools.py"},
		{Path: "src/app.py"},
	})
	assert.Equal(t, []string{"src/app.py"}, paths(got))
}

func TestFilter_PreservesOrder(t *testing.T) {
	f := Filter{IncludedExtensions: []string{".go"}}
	recs := []ChangeRecord{{Path: "z.go"}, {Path: "a.go"}, {Path: "m.go"}}
	assert.Equal(t, []string{"z.go", "a.go", "m.go"}, paths(f.Apply(recs)))
}
