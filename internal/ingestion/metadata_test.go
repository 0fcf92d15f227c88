package ingestion

import "testing"

func TestInferMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		content  string
		title    string
		category string
		fileName string
	}{
		{
			name:     "heading wins over file name",
			path:     "citizenship/renewal.md",
			content:  "intro\n\n# नागरिकता नवीकरण\n\nbody",
			title:    "नागरिकता नवीकरण",
			category: "citizenship",
			fileName: "renewal.md",
		},
		{
			name:     "no heading falls back to file name",
			path:     "land/transfer.md",
			content:  "plain text only",
			title:    "transfer",
			category: "land",
			fileName: "transfer.md",
		},
		{
			name:     "top-level file is general",
			path:     "faq.md",
			content:  "## Frequently asked ##",
			title:    "Frequently asked",
			category: "general",
			fileName: "faq.md",
		},
		{
			name:     "nested dirs use the top level",
			path:     "vehicle/license/renew.md",
			content:  "",
			title:    "renew",
			category: "vehicle",
			fileName: "renew.md",
		},
		{
			name:     "hashtag is not a heading",
			path:     "misc/tags.md",
			content:  "#notaheading\n####### too deep\n### Real",
			title:    "Real",
			category: "misc",
			fileName: "tags.md",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tc.path, tc.content)
			if got[MetaTitle] != tc.title {
				t.Errorf("title: got %q, want %q", got[MetaTitle], tc.title)
			}
			if got[MetaCategory] != tc.category {
				t.Errorf("category: got %q, want %q", got[MetaCategory], tc.category)
			}
			if got[MetaFileName] != tc.fileName {
				t.Errorf("file_name: got %q, want %q", got[MetaFileName], tc.fileName)
			}
		})
	}
}
