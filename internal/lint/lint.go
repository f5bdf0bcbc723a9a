package lint

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/tabdulradi/pan-tut/internal/docs"
)

// AnnotationMarker is the info-string suffix that marks a fenced code block as a
// literate snippet processed by the external compiler (e.g. ```scala mdoc).
const AnnotationMarker = "mdoc"

// Issue is one lint finding in a source file.
type Issue struct {
	File    string // relative path within the source directory
	Line    int    // 1-based line of the offending fence
	Message string
}

func (i Issue) String() string { return fmt.Sprintf("%s:%d: %s", i.File, i.Line, i.Message) }

// CheckFile parses one markdown source and reports annotated-fence problems.
// The snippet payload is documentation content; only fence structure is checked.
func CheckFile(file docs.SourceFile) ([]Issue, error) {
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	return Check(file.RelativePath, content), nil
}

// Check inspects annotated fenced code blocks in the given markdown content.
func Check(relPath string, content []byte) []Issue {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))

	var issues []Issue
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		fence, ok := n.(*gmast.FencedCodeBlock)
		if !ok {
			return gmast.WalkContinue, nil
		}

		info := ""
		if fence.Info != nil {
			info = string(fence.Info.Segment.Value(content))
		}
		if !isAnnotated(info) {
			return gmast.WalkContinue, nil
		}

		line := fenceLine(content, fence)
		if language(info) == "" {
			issues = append(issues, Issue{
				File:    relPath,
				Line:    line,
				Message: "annotated snippet has no language in its info string",
			})
		}
		if blockIsEmpty(content, fence) {
			issues = append(issues, Issue{
				File:    relPath,
				Line:    line,
				Message: "annotated snippet is empty",
			})
		}
		return gmast.WalkContinue, nil
	})
	return issues
}

// isAnnotated reports whether the fence info string carries the literate marker,
// either as a bare word ("mdoc") or a modifier ("mdoc:silent").
func isAnnotated(info string) bool {
	for _, field := range strings.Fields(info) {
		if field == AnnotationMarker || strings.HasPrefix(field, AnnotationMarker+":") {
			return true
		}
	}
	return false
}

// language returns the leading language token of the info string, or "" when
// the fence opens directly with the annotation marker.
func language(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	if first == AnnotationMarker || strings.HasPrefix(first, AnnotationMarker+":") {
		return ""
	}
	return first
}

func blockIsEmpty(content []byte, fence *gmast.FencedCodeBlock) bool {
	for i := 0; i < fence.Lines().Len(); i++ {
		segment := fence.Lines().At(i)
		if strings.TrimSpace(string(segment.Value(content))) != "" {
			return false
		}
	}
	return true
}

// fenceLine computes the 1-based line number of the fence opening. The info
// segment sits on the opener line itself; the first body segment sits one line
// below it.
func fenceLine(content []byte, fence *gmast.FencedCodeBlock) int {
	offset := -1
	fromBody := false
	if fence.Lines().Len() > 0 {
		offset = fence.Lines().At(0).Start
		fromBody = true
	} else if fence.Info != nil && fence.Info.Segment.Len() > 0 {
		offset = fence.Info.Segment.Start
	}
	if offset < 0 || offset > len(content) {
		return 1
	}

	line := 1
	for _, b := range content[:offset] {
		if b == '\n' {
			line++
		}
	}
	if fromBody {
		line--
	}
	if line < 1 {
		line = 1
	}
	return line
}
