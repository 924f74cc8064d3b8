package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// Forwarder ships extracted files to the external index.
type Forwarder struct {
	index port.Indexer
}

// NewForwarder creates a forwarder over index.
func NewForwarder(index port.Indexer) *Forwarder {
	return &Forwarder{index: index}
}

// Metadata builds the flat string metadata sent with a batch.
func Metadata(githubID int64, name string) domain.IndexMetadata {
	return domain.IndexMetadata{GitHubID: strconv.FormatInt(githubID, 10), Name: name}
}

// Forward posts files for repoID and returns how many were attempted.
// An empty set makes no call.
func (f *Forwarder) Forward(ctx context.Context, repoID string, files []domain.RepoFile, meta domain.IndexMetadata) (int, error) {
	if len(files) == 0 {
		slog.Info("forward skipped: no files", "repo_id", repoID)
		return 0, nil
	}
	err := f.index.Index(ctx, domain.IndexRequest{RepoID: repoID, Files: files, Metadata: meta})
	if err != nil {
		return len(files), err
	}
	slog.Info("files forwarded", "repo_id", repoID, "count", len(files))
	return len(files), nil
}

// Delete drops repoID from the index.
func (f *Forwarder) Delete(ctx context.Context, repoID string) error {
	return f.index.Delete(ctx, repoID)
}

// Query asks the retrieval service a question over files.
func (f *Forwarder) Query(ctx context.Context, files []domain.RepoFile, prompt string, meta domain.IndexMetadata) ([]byte, error) {
	if files == nil {
		files = []domain.RepoFile{}
	}
	return f.index.Query(ctx, domain.QueryRequest{Files: files, Prompt: prompt, Metadata: meta})
}
