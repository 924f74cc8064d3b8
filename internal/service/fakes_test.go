package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

var errBoom = errors.New("boom")

// fakeRepo is an in-memory GitHub repository. Files map a path to content;
// directories are derived from the paths.
type fakeRepo struct {
	mu       sync.Mutex
	files    map[string]string
	sizes    map[string]int64 // optional listed size override
	missing  map[string]bool  // download fails with 404
	listErr  map[string]error // ListDirectory fails for the path
	hooks    []domain.Webhook
	nextHook int64
	hooksErr error
	hookErrs map[int64]error // DeleteWebhook fails for the hook
	deleted  []int64
	fetched  []string
	tokens   []string
	repos    []domain.RepoSummary
	identity *domain.Identity
	// onList runs before a directory is listed, outside the lock.
	onList func(path string)
}

func newFakeRepo(files map[string]string) *fakeRepo {
	return &fakeRepo{
		files:    files,
		sizes:    map[string]int64{},
		missing:  map[string]bool{},
		listErr:  map[string]error{},
		nextHook: 100,
	}
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, port.ErrNotFound)
}

func (f *fakeRepo) ListDirectory(_ context.Context, _, token, path string) ([]domain.ContentEntry, error) {
	if f.onList != nil {
		f.onList(path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if err := f.listErr[path]; err != nil {
		return nil, err
	}

	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	seenDirs := map[string]bool{}
	var out []domain.ContentEntry
	for p, content := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			dir := rest[:i]
			if !seenDirs[dir] {
				seenDirs[dir] = true
				out = append(out, domain.ContentEntry{Name: dir, Path: prefix + dir, Type: domain.EntryTypeDir})
			}
			continue
		}
		out = append(out, f.entry(p, content))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) entry(p, content string) domain.ContentEntry {
	size := int64(len(content))
	if s, ok := f.sizes[p]; ok {
		size = s
	}
	name := p
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		name = p[i+1:]
	}
	return domain.ContentEntry{
		Name:        name,
		Path:        p,
		Type:        domain.EntryTypeFile,
		Size:        size,
		DownloadURL: "raw://" + p,
	}
}

func (f *fakeRepo) GetContent(_ context.Context, _, _, path string) (*domain.ContentEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if content, ok := f.files[path]; ok {
		e := f.entry(path, content)
		return &e, nil
	}
	for p := range f.files {
		if strings.HasPrefix(p, path+"/") {
			return &domain.ContentEntry{Name: path, Path: path, Type: domain.EntryTypeDir}, nil
		}
	}
	return nil, notFound("get content")
}

func (f *fakeRepo) FetchFileContent(_ context.Context, downloadURL, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := strings.TrimPrefix(downloadURL, "raw://")
	f.fetched = append(f.fetched, p)
	if f.missing[p] {
		return "", notFound("fetch file")
	}
	content, ok := f.files[p]
	if !ok {
		return "", notFound("fetch file")
	}
	return content, nil
}

func (f *fakeRepo) ListWebhooks(context.Context, string, string) ([]domain.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooksErr != nil {
		return nil, f.hooksErr
	}
	return append([]domain.Webhook(nil), f.hooks...), nil
}

func (f *fakeRepo) CreateWebhook(_ context.Context, _, _ string, hook domain.Webhook) (*domain.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooksErr != nil {
		return nil, f.hooksErr
	}
	f.nextHook++
	hook.ID = f.nextHook
	f.hooks = append(f.hooks, hook)
	return &hook, nil
}

func (f *fakeRepo) DeleteWebhook(_ context.Context, _, _ string, hookID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hookErrs[hookID]; err != nil {
		return err
	}
	kept := f.hooks[:0]
	for _, h := range f.hooks {
		if h.ID != hookID {
			kept = append(kept, h)
		}
	}
	f.hooks = kept
	f.deleted = append(f.deleted, hookID)
	return nil
}

func (f *fakeRepo) ListRepositories(context.Context, string) ([]domain.RepoSummary, error) {
	return f.repos, nil
}

func (f *fakeRepo) GetAuthenticatedUser(context.Context, string) (*domain.Identity, error) {
	if f.identity == nil {
		return nil, errBoom
	}
	return f.identity, nil
}

// fakeIndexer records every call made to the retrieval service.
type fakeIndexer struct {
	mu        sync.Mutex
	indexed   []domain.IndexRequest
	deleted   []string
	queries   []domain.QueryRequest
	indexErr  error
	deleteErr error
	answer    []byte
}

func (f *fakeIndexer) Index(_ context.Context, req domain.IndexRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, req)
	return f.indexErr
}

func (f *fakeIndexer) Delete(_ context.Context, repoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, repoID)
	return f.deleteErr
}

func (f *fakeIndexer) Query(_ context.Context, req domain.QueryRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	return f.answer, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.IntegrationEvent
}

func (p *recordingPublisher) Publish(evt domain.IntegrationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func filenames(files []domain.RepoFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	sort.Strings(out)
	return out
}

func demoNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}
