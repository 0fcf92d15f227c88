package ingestion

import (
	"bufio"
	"path"
	"strings"
)

// Metadata keys attached to every chunk.
const (
	MetaTitle    = "title"
	MetaCategory = "category"
	MetaFileName = "file_name"
)

// uncategorised is the category of files directly under the data dir.
const uncategorised = "general"

// InferMetadata derives best-effort metadata for a document at relPath
// (slash-separated, relative to the data dir):
//
//   - title: the first markdown heading, else the file name without extension
//   - category: the top-level directory under the data dir, else "general"
//   - file_name: the base name
func InferMetadata(relPath, content string) map[string]string {
	base := path.Base(relPath)
	m := map[string]string{
		MetaFileName: base,
		MetaCategory: uncategorised,
		MetaTitle:    strings.TrimSuffix(base, path.Ext(base)),
	}

	if dir := path.Dir(relPath); dir != "." && dir != "/" {
		m[MetaCategory] = strings.SplitN(strings.TrimPrefix(dir, "/"), "/", 2)[0]
	}
	if title := firstHeading(content); title != "" {
		m[MetaTitle] = title
	}
	return m
}

// firstHeading returns the text of the first ATX heading ("# ..." through
// "###### ...") in content.
func firstHeading(content string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "#") {
			continue
		}
		level := len(line) - len(strings.TrimLeft(line, "#"))
		if level > 6 {
			continue
		}
		rest := line[level:]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			continue
		}
		if title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#")); title != "" {
			return title
		}
	}
	return ""
}
