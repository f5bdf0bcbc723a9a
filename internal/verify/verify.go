package verify

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/tabdulradi/pan-tut/internal/docs"
)

// Problem describes one defective artifact.
type Problem struct {
	Artifact string
	Message  string
}

func (p Problem) String() string { return fmt.Sprintf("%s: %s", p.Artifact, p.Message) }

// Result summarizes an artifact verification pass.
type Result struct {
	Checked  int
	Problems []Problem
}

// OK reports whether every artifact passed.
func (r Result) OK() bool { return len(r.Problems) == 0 }

// Artifacts checks the converter output for each target file: the derived
// artifact must exist, be non-empty, and parse as HTML with visible text.
// Files already carrying the artifact extension are artifacts themselves and
// are not expected to have a derived sibling.
func Artifacts(files []docs.TargetFile, extension string) (Result, error) {
	var result Result
	suffix := "." + extension
	for _, file := range files {
		if strings.HasSuffix(file.Name, suffix) {
			continue
		}
		artifact := file.ArtifactPath(extension)
		result.Checked++

		info, err := os.Stat(artifact)
		if err != nil {
			if os.IsNotExist(err) {
				result.Problems = append(result.Problems, Problem{Artifact: artifact, Message: "artifact missing"})
				continue
			}
			return result, fmt.Errorf("stat artifact: %w", err)
		}
		if info.Size() == 0 {
			result.Problems = append(result.Problems, Problem{Artifact: artifact, Message: "artifact is empty"})
			continue
		}

		problem, err := checkHTML(artifact)
		if err != nil {
			return result, err
		}
		if problem != "" {
			result.Problems = append(result.Problems, Problem{Artifact: artifact, Message: problem})
		}
	}
	return result, nil
}

// checkHTML parses the artifact and returns a problem description, "" when fine.
func checkHTML(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() {
		_ = file.Close() // read-only
	}()
	return CheckReader(file)
}

// CheckReader verifies HTML from a reader.
func CheckReader(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		// html.Parse is extremely tolerant; an actual error means unreadable input.
		return fmt.Sprintf("unparsable HTML: %v", err), nil
	}

	if !hasVisibleText(doc) {
		return "document has no visible text", nil
	}
	return "", nil
}

func hasVisibleText(n *html.Node) bool {
	if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
		return true
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasVisibleText(c) {
			return true
		}
	}
	return false
}
