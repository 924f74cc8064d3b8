package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// MaxIndexedFileSize is the largest file the full scan will download.
const MaxIndexedFileSize = 1024 * 1024

const defaultWalkerConcurrency = 8

var allowedExtensions = map[string]struct{}{
	"js": {}, "ts": {}, "py": {}, "md": {}, "jsx": {}, "tsx": {}, "json": {},
	"txt": {}, "java": {}, "go": {}, "rb": {}, "c": {}, "cpp": {}, "cs": {},
	"html": {}, "css": {}, "yml": {}, "yaml": {}, "xml": {}, "sh": {},
	"bat": {}, "dockerfile": {},
}

// FileExtension returns the lower-cased alphanumeric suffix after the last
// dot of name, or the whole lower-cased name when there is no such suffix.
func FileExtension(name string) string {
	lower := strings.ToLower(name)
	i := strings.LastIndexByte(lower, '.')
	if i < 0 || i == len(lower)-1 {
		return lower
	}
	ext := lower[i+1:]
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return lower
		}
	}
	return ext
}

// Indexable reports whether a listed file passes the allow-list and size cap.
func Indexable(name string, size int64) bool {
	_, ok := allowedExtensions[FileExtension(name)]
	return ok && size <= MaxIndexedFileSize
}

// Walker extracts indexable files from a GitHub repository.
type Walker struct {
	source      port.ContentSource
	concurrency int
}

// NewWalker creates a walker that downloads at most concurrency files at once.
func NewWalker(source port.ContentSource, concurrency int) *Walker {
	if concurrency <= 0 {
		concurrency = defaultWalkerConcurrency
	}
	return &Walker{source: source, concurrency: concurrency}
}

// Walk performs a full scan from the repository root. Directory listings
// run sequentially; downloads fan out. Failures below the root are logged
// and skipped. The returned error is non-nil only when the root listing
// itself failed, in which case no files are returned.
func (w *Walker) Walk(ctx context.Context, fullName, token string) ([]domain.RepoFile, error) {
	root, err := w.source.ListDirectory(ctx, fullName, token, "")
	if err != nil {
		slog.Error("walker: list root failed", "repo", fullName, "error", err)
		return nil, err
	}

	var pending []domain.ContentEntry
	w.collect(ctx, fullName, token, "", root, &pending)

	files := w.download(ctx, fullName, token, pending)
	slog.Info("walker: full scan done", "repo", fullName, "candidates", len(pending), "files", len(files))
	return files, nil
}

// collect gathers indexable file entries under dir, recursing into subdirectories.
func (w *Walker) collect(ctx context.Context, fullName, token, dir string, entries []domain.ContentEntry, out *[]domain.ContentEntry) {
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		path := joinPath(dir, e.Name)
		switch e.Type {
		case domain.EntryTypeFile:
			if Indexable(e.Name, e.Size) {
				e.Path = path
				*out = append(*out, e)
			}
		case domain.EntryTypeDir:
			children, err := w.source.ListDirectory(ctx, fullName, token, path)
			if err != nil {
				slog.Error("walker: list directory failed", "repo", fullName, "path", path, "error", err)
				continue
			}
			w.collect(ctx, fullName, token, path, children, out)
		}
	}
}

// WalkPaths performs a targeted fetch of the given paths. Duplicates are
// fetched once; missing paths and non-file entries are skipped.
func (w *Walker) WalkPaths(ctx context.Context, fullName, token string, paths []string) []domain.RepoFile {
	seen := make(map[string]struct{}, len(paths))
	var (
		mu      sync.Mutex
		pending []domain.ContentEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, p := range paths {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		g.Go(func() error {
			entry, err := w.source.GetContent(gctx, fullName, token, p)
			switch {
			case errors.Is(err, port.ErrNotFound):
				slog.Debug("walker: path not found", "repo", fullName, "path", p)
				return nil
			case err != nil:
				slog.Error("walker: get content failed", "repo", fullName, "path", p, "error", err)
				return nil
			case entry.Type != domain.EntryTypeFile:
				return nil
			}
			entry.Path = p
			mu.Lock()
			pending = append(pending, *entry)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return w.download(ctx, fullName, token, pending)
}

// download fetches every entry's body with bounded concurrency. Goroutines
// never return errors, so one failure cannot cancel its siblings.
func (w *Walker) download(ctx context.Context, fullName, token string, entries []domain.ContentEntry) []domain.RepoFile {
	var (
		mu    sync.Mutex
		files = make([]domain.RepoFile, 0, len(entries))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, e := range entries {
		g.Go(func() error {
			if e.DownloadURL == "" {
				slog.Warn("walker: entry has no download url", "repo", fullName, "path", e.Path)
				return nil
			}
			content, err := w.source.FetchFileContent(gctx, e.DownloadURL, token)
			if err != nil {
				slog.Error("walker: download failed", "repo", fullName, "path", e.Path, "error", err)
				return nil
			}
			mu.Lock()
			files = append(files, domain.RepoFile{Filename: e.Path, Content: content})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return files
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
