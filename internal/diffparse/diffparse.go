package diffparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/critic/internal/review"
)

var (
	headerRe = regexp.MustCompile(`^diff --git a/(.+?) b/(.+)$`)
	hunkRe   = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	newLnRe  = regexp.MustCompile(`\+(\d+)`)
)

// fileState accumulates one record while scanning.
type fileState struct {
	path      string
	prevPath  string
	status    review.ChangeStatus
	additions int
	deletions int
	patch     []string

	inHunk bool
	// remaining old/new lines in the current hunk; -1 when the header
	// carried no usable counts.
	oldLeft int
	newLeft int
}

func (f *fileState) record() review.ChangeRecord {
	patch := strings.Join(f.patch, "\n")
	if strings.TrimSpace(patch) == "" {
		patch = ""
	}
	return review.NewChangeRecord(f.path, f.prevPath, f.status, f.additions, f.deletions, patch)
}

// Parse converts unified diff text into change records, one per file header,
// in input order. Empty input yields nil.
func Parse(diffText string) []review.ChangeRecord {
	if strings.TrimSpace(diffText) == "" {
		return nil
	}

	var records []review.ChangeRecord
	var cur *fileState
	flush := func() {
		if cur != nil {
			records = append(records, cur.record())
		}
		cur = nil
	}

	for _, line := range splitLines(diffText) {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			m := headerRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			cur = &fileState{path: m[2], prevPath: m[1], status: review.StatusModified}
			continue
		}
		if cur == nil {
			continue
		}

		if strings.HasPrefix(line, "@@") {
			cur.startHunk(line)
			continue
		}
		if cur.inHunk && cur.hunkLine(line) {
			continue
		}
		cur.metaLine(line)
	}
	flush()
	return records
}

func (f *fileState) startHunk(line string) {
	f.inHunk = true
	f.oldLeft, f.newLeft = -1, -1
	if m := hunkRe.FindStringSubmatch(line); m != nil {
		f.oldLeft = hunkCount(m[2])
		f.newLeft = hunkCount(m[4])
	}
	f.patch = append(f.patch, line)
}

// hunkCount returns the line count from a hunk range; an omitted count means 1.
func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// hunkLine consumes one line of the current hunk and reports whether it
// belonged there. The header counts only decide whether a "---" or "+++"
// line is content or the next file's marker: once both are used up such a
// line ends the hunk, while other prefixed lines keep being counted.
func (f *fileState) hunkLine(line string) bool {
	if f.oldLeft == 0 && f.newLeft == 0 && !continuesHunk(line) {
		f.inHunk = false
		return false
	}
	switch {
	case strings.HasPrefix(line, "+"):
		f.additions++
		f.newLeft = decr(f.newLeft)
	case strings.HasPrefix(line, "-"):
		f.deletions++
		f.oldLeft = decr(f.oldLeft)
	case strings.HasPrefix(line, `\`):
		// "\ No newline at end of file" belongs to the hunk but is not a line
	default:
		f.oldLeft = decr(f.oldLeft)
		f.newLeft = decr(f.newLeft)
	}
	f.patch = append(f.patch, line)
	return true
}

// continuesHunk reports whether a line past the header counts still reads
// as hunk content.
func continuesHunk(line string) bool {
	if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
		return false
	}
	return strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") ||
		strings.HasPrefix(line, " ") || strings.HasPrefix(line, `\`)
}

func decr(n int) int {
	if n > 0 {
		return n - 1
	}
	return n
}

func (f *fileState) metaLine(line string) {
	switch {
	case strings.HasPrefix(line, "new file mode"):
		f.status = review.StatusAdded
	case strings.HasPrefix(line, "deleted file mode"):
		f.status = review.StatusDeleted
	case strings.HasPrefix(line, "rename from "):
		f.status = review.StatusRenamed
		f.prevPath = strings.TrimPrefix(line, "rename from ")
	case strings.HasPrefix(line, "rename to "):
		f.status = review.StatusRenamed
		f.path = strings.TrimPrefix(line, "rename to ")
	}
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Line is one retained line of a patch, numbered in the new file.
type Line struct {
	Number  int
	Content string
	Added   bool
}

// Lines walks a single-file patch and returns its context and added lines in
// order, numbered from each hunk's "+start". Deleted lines do not advance the
// counter.
func Lines(patch string) []Line {
	var out []Line
	n := 0
	inHunk := false
	for _, line := range splitLines(patch) {
		if strings.HasPrefix(line, "@@") {
			m := newLnRe.FindStringSubmatch(line)
			if m == nil {
				inHunk = false
				continue
			}
			n, _ = strconv.Atoi(m[1])
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}
		switch {
		case strings.HasPrefix(line, `\`), strings.HasPrefix(line, "-"):
		case strings.HasPrefix(line, "+"):
			out = append(out, Line{Number: n, Content: line[1:], Added: true})
			n++
		default:
			out = append(out, Line{Number: n, Content: strings.TrimPrefix(line, " ")})
			n++
		}
	}
	return out
}

// ReconstructLines maps new-file line numbers to content for every context
// and added line in the patch.
func ReconstructLines(patch string) map[int]string {
	out := make(map[int]string)
	for _, l := range Lines(patch) {
		out[l.Number] = l.Content
	}
	return out
}

// ChangedLines maps new-file line numbers to content for added lines only.
func ChangedLines(patch string) map[int]string {
	out := make(map[int]string)
	for _, l := range Lines(patch) {
		if l.Added {
			out[l.Number] = l.Content
		}
	}
	return out
}

// ExtractCode returns the retained lines of the patch joined into a
// best-effort view of the new file. Gaps between hunks are closed up; use
// [TranslateLine] to map a line of this text back to the real file.
func ExtractCode(patch string) string {
	lines := Lines(patch)
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// LineIndex returns, for each line of ExtractCode output, its line number in
// the new file.
func LineIndex(patch string) []int {
	lines := Lines(patch)
	idx := make([]int, len(lines))
	for i, l := range lines {
		idx[i] = l.Number
	}
	return idx
}

// TranslateLine maps the 1-based line n of ExtractCode output to the new-file
// line number. It reports false when n is out of range.
func TranslateLine(patch string, n int) (int, bool) {
	idx := LineIndex(patch)
	if n < 1 || n > len(idx) {
		return 0, false
	}
	return idx[n-1], true
}
