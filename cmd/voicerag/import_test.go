package main

import (
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func TestFindFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"constitution.pdf":           {},
		"notes.txt":                  {},
		"acts/2019/finance.pdf":      {},
		"acts/2020/health.PDF":       {},
		"acts/readme.md":             {},
		"judgments/supreme/case.pdf": {},
	}
	tests := []struct {
		name     string
		pattern  string
		expected []string
	}{
		{
			name:     "** matches files in all directories",
			pattern:  "**.pdf",
			expected: []string{"acts/2019/finance.pdf", "constitution.pdf", "judgments/supreme/case.pdf"},
		},
		{
			name:     "* does not cross directories",
			pattern:  "*.pdf",
			expected: []string{"constitution.pdf"},
		},
		{
			name:     "patterns can select a directory",
			pattern:  "acts/**",
			expected: []string{"acts/2019/finance.pdf", "acts/2020/health.PDF", "acts/readme.md"},
		},
		{
			name:     "alternatives are supported",
			pattern:  "**.{pdf,PDF}",
			expected: []string{"acts/2019/finance.pdf", "acts/2020/health.PDF", "constitution.pdf", "judgments/supreme/case.pdf"},
		},
		{
			name:     "no matches returns nothing",
			pattern:  "**.docx",
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := findFiles(fsys, tt.pattern)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestFindFilesInvalidPattern(t *testing.T) {
	if _, err := findFiles(fstest.MapFS{}, "[unclosed"); err == nil {
		t.Error("expected error")
	}
}
