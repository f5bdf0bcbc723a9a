package docs

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SourceFile represents a discovered literate markdown source file
type SourceFile struct {
	Path         string // Absolute path to the file
	RelativePath string // Path relative to the source directory
	Section      string // Top-level directory within the source tree, "" at root
	Name         string // File name without extension
}

// TargetFile represents one entry of the compiled target directory. The converter
// batch derives its artifact name by appending the output extension.
type TargetFile struct {
	Path string // Absolute path to the file
	Name string // Base name
}

// ArtifactPath returns the path the converter writes for this file.
func (t TargetFile) ArtifactPath(extension string) string {
	return t.Path + "." + extension
}

// DiscoverSources walks the source directory and returns all markdown files.
func DiscoverSources(sourceDir string) ([]SourceFile, error) {
	absDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	var files []SourceFile
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories (e.g. .git) entirely.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			return relErr
		}

		section := ""
		if dir := filepath.Dir(rel); dir != "." {
			section = strings.Split(filepath.ToSlash(dir), "/")[0]
		}

		files = append(files, SourceFile{
			Path:         path,
			RelativePath: rel,
			Section:      section,
			Name:         strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover sources in %s: %w", sourceDir, err)
	}

	slog.Debug("Source discovery completed", "dir", sourceDir, "files", len(files))
	return files, nil
}

// ListTarget returns the regular files of the target directory from a single
// non-recursive listing. Subdirectories are ignored; the compiler writes a flat
// output tree. Order is whatever os.ReadDir returns.
func ListTarget(targetDir string) ([]TargetFile, error) {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil, fmt.Errorf("list target directory %s: %w", targetDir, err)
	}

	files := make([]TargetFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, TargetFile{
			Path: filepath.Join(targetDir, entry.Name()),
			Name: entry.Name(),
		})
	}
	return files, nil
}
