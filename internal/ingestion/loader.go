package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
)

// DefaultExtensions lists the document formats loaded when none are configured.
var DefaultExtensions = []string{".md"}

// SourceDocument is one loaded file.
type SourceDocument struct {
	// Path is the slash-separated path relative to the data directory.
	Path string
	// Content is the file text.
	Content string
	// Metadata is inferred from the path and content.
	Metadata map[string]string
}

// LoadDirectory walks root recursively and reads every file whose extension
// is in exts. Hidden directories are skipped. Results are sorted by path.
func LoadDirectory(root string, exts []string) ([]SourceDocument, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingestion: data dir %s is not a directory", root)
	}

	fsys := os.DirFS(root)
	var docs []SourceDocument
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !hasExtension(p, exts) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		content := string(data)
		docs = append(docs, SourceDocument{
			Path:     p,
			Content:  content,
			Metadata: InferMetadata(p, content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}

	slices.SortFunc(docs, func(a, b SourceDocument) int { return strings.Compare(a.Path, b.Path) })
	return docs, nil
}

// hasExtension reports whether name ends in one of exts, case-insensitively.
func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
