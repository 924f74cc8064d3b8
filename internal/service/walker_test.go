package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

func TestFileExtension(t *testing.T) {
	cases := map[string]string{
		"main.go":        "go",
		"README.MD":      "md",
		"Dockerfile":     "dockerfile",
		"archive.tar.gz": "gz",
		"Makefile":       "makefile",
		"weird.":         "weird.",
		"notes.t-x":      "notes.t-x",
		".env":           "env",
	}
	for name, want := range cases {
		assert.Equal(t, want, FileExtension(name), name)
	}
}

func TestIndexable(t *testing.T) {
	assert.True(t, Indexable("main.go", 10))
	assert.True(t, Indexable("Dockerfile", 10))
	assert.False(t, Indexable("image.png", 10))
	assert.False(t, Indexable("bin/app", 10))
	assert.True(t, Indexable("big.js", MaxIndexedFileSize))
	assert.False(t, Indexable("big.js", MaxIndexedFileSize+1))
}

func TestWalkAppliesAllowListAndSizeCap(t *testing.T) {
	repo := newFakeRepo(map[string]string{
		"main.go":         "package ma",
		"image.png":       "\x89PNG",
		"big.js":          "x",
		"docs/guide.md":   "# guide",
		"docs/img/a.jpeg": "jpeg",
		"src/app/util.ts": "export {}",
	})
	repo.sizes["big.js"] = MaxIndexedFileSize + 1

	w := NewWalker(repo, 4)
	files, err := w.Walk(context.Background(), "octo/demo", "tok")
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/guide.md", "main.go", "src/app/util.ts"}, filenames(files))
	for _, f := range files {
		if f.Filename == "main.go" {
			assert.Equal(t, "package ma", f.Content)
		}
	}
	assert.NotContains(t, repo.fetched, "image.png")
	assert.NotContains(t, repo.fetched, "big.js")
}

func TestWalkSurvivesPartialFailures(t *testing.T) {
	repo := newFakeRepo(map[string]string{
		"a.go":         "a",
		"b.go":         "b",
		"c.go":         "c",
		"broken/x.go":  "x",
		"healthy/y.md": "y",
	})
	repo.missing["b.go"] = true
	repo.listErr["broken"] = errBoom

	files, err := NewWalker(repo, 2).Walk(context.Background(), "octo/demo", "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "c.go", "healthy/y.md"}, filenames(files))
}

func TestWalkRootFailure(t *testing.T) {
	repo := newFakeRepo(map[string]string{"a.go": "a"})
	repo.listErr[""] = errBoom

	files, err := NewWalker(repo, 2).Walk(context.Background(), "octo/demo", "tok")
	require.Error(t, err)
	assert.Empty(t, files)
}

func TestWalkPathsDedupesAndSkipsMissing(t *testing.T) {
	repo := newFakeRepo(map[string]string{
		"src/a.go":  "a",
		"logo.png":  "png",
		"dir/b.txt": "b",
	})

	files := NewWalker(repo, 3).WalkPaths(context.Background(), "octo/demo", "tok",
		[]string{"src/a.go", "/src/a.go", "gone.go", "dir", "logo.png", ""})

	// Targeted mode has no allow-list: logo.png is fetched, the directory is not.
	assert.Equal(t, []string{"logo.png", "src/a.go"}, filenames(files))
	assert.Equal(t, 1, strings.Count(strings.Join(repo.fetched, ","), "src/a.go"))
}

func TestWalkEntryWithoutDownloadURL(t *testing.T) {
	w := NewWalker(newFakeRepo(nil), 1)
	files := w.download(context.Background(), "octo/demo", "tok", []domain.ContentEntry{
		{Name: "x.go", Path: "x.go", Type: domain.EntryTypeFile},
	})
	assert.Empty(t, files)
}
