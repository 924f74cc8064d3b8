// Package github is a small, rate-limited client for the GitHub REST API.
// It never retries: every non-2xx response surfaces as an *APIError.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	pageSize       = 100
	maxRepoPages   = 10
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables pacing
	RateBurst int
	UserAgent string
	Transport http.RoundTripper
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s failed (%d): %s", e.Op, e.StatusCode, e.Body)
}

// Is maps 404 to port.ErrNotFound and 401 to port.ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	switch target {
	case port.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case port.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Client implements port.RepoProvider.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a GitHub REST client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "repo-sync"
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
	}
}

// ListRepositories lists the repositories visible to the token's owner,
// most recently updated first.
func (c *Client) ListRepositories(ctx context.Context, token string) ([]domain.RepoSummary, error) {
	var out []domain.RepoSummary
	for page := 1; page <= maxRepoPages; page++ {
		q := url.Values{
			"per_page": {fmt.Sprint(pageSize)},
			"page":     {fmt.Sprint(page)},
			"sort":     {"updated"},
		}
		var batch []apiRepo
		if err := c.do(ctx, "list repositories", http.MethodGet, c.baseURL+"/user/repos?"+q.Encode(), token, nil, &batch); err != nil {
			return nil, err
		}
		for _, r := range batch {
			out = append(out, r.summary())
		}
		if len(batch) < pageSize {
			break
		}
	}
	if out == nil {
		out = []domain.RepoSummary{}
	}
	return out, nil
}

// GetAuthenticatedUser returns the identity owning token.
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (*domain.Identity, error) {
	var u struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
		Bio       string `json:"bio"`
		Location  string `json:"location"`
	}
	if err := c.do(ctx, "get user", http.MethodGet, c.baseURL+"/user", token, nil, &u); err != nil {
		return nil, err
	}
	return &domain.Identity{
		Provider:   domain.ProviderGitHub,
		ProviderID: u.ID,
		Login:      u.Login,
		Name:       u.Name,
		Email:      u.Email,
		AvatarURL:  u.AvatarURL,
		ProfileURL: u.HTMLURL,
		Bio:        u.Bio,
		Location:   u.Location,
	}, nil
}

// ListDirectory lists one directory of a repository.
func (c *Client) ListDirectory(ctx context.Context, fullName, token, path string) ([]domain.ContentEntry, error) {
	var entries []domain.ContentEntry
	if err := c.do(ctx, "list directory", http.MethodGet, c.contentsURL(fullName, path), token, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetContent fetches the entry for a single path. A directory path yields
// an entry of type "dir" without a download URL.
func (c *Client) GetContent(ctx context.Context, fullName, token, path string) (*domain.ContentEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get content", http.MethodGet, c.contentsURL(fullName, path), token, nil, &raw); err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		return &domain.ContentEntry{Path: path, Type: domain.EntryTypeDir}, nil
	}
	var entry domain.ContentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("github: decode content: %w", err)
	}
	return &entry, nil
}

// FetchFileContent downloads the raw body behind a download URL.
func (c *Client) FetchFileContent(ctx context.Context, downloadURL, token string) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, downloadURL, token, nil)
	if err != nil {
		return "", fmt.Errorf("github: fetch file: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("github: read file: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Op: "fetch file", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

// ListWebhooks lists the hooks configured on a repository.
func (c *Client) ListWebhooks(ctx context.Context, fullName, token string) ([]domain.Webhook, error) {
	var hooks []domain.Webhook
	if err := c.do(ctx, "list webhooks", http.MethodGet, c.repoURL(fullName)+"/hooks", token, nil, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

// CreateWebhook creates a repository hook.
func (c *Client) CreateWebhook(ctx context.Context, fullName, token string, hook domain.Webhook) (*domain.Webhook, error) {
	body := map[string]any{
		"name":   hook.Name,
		"active": hook.Active,
		"events": hook.Events,
		"config": hook.Config,
	}
	var created domain.Webhook
	if err := c.do(ctx, "create webhook", http.MethodPost, c.repoURL(fullName)+"/hooks", token, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteWebhook deletes a repository hook.
func (c *Client) DeleteWebhook(ctx context.Context, fullName, token string, hookID int64) error {
	u := fmt.Sprintf("%s/hooks/%d", c.repoURL(fullName), hookID)
	return c.do(ctx, "delete webhook", http.MethodDelete, u, token, nil, nil)
}

func (c *Client) repoURL(fullName string) string {
	return c.baseURL + "/repos/" + escapePath(fullName)
}

func (c *Client) contentsURL(fullName, path string) string {
	u := c.repoURL(fullName) + "/contents"
	if p := strings.Trim(path, "/"); p != "" {
		u += "/" + escapePath(p)
	}
	return u
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// do sends one JSON request and decodes a 2xx body into out when non-nil.
func (c *Client) do(ctx context.Context, op, method, u, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("github: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.send(ctx, method, u, token, body)
	if err != nil {
		return fmt.Errorf("github: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: %s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, u, token string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

type apiRepo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	HTMLURL         string `json:"html_url"`
	Language        string `json:"language"`
	Size            int64  `json:"size"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	OpenIssuesCount int    `json:"open_issues_count"`
	Private         bool   `json:"private"`
	Owner           struct {
		Login     string `json:"login"`
		ID        int64  `json:"id"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
	} `json:"owner"`
}

func (r apiRepo) summary() domain.RepoSummary {
	return domain.RepoSummary{
		ID:              r.ID,
		Name:            r.Name,
		FullName:        r.FullName,
		Description:     r.Description,
		HTMLURL:         r.HTMLURL,
		Language:        r.Language,
		Size:            r.Size,
		StargazersCount: r.StargazersCount,
		ForksCount:      r.ForksCount,
		OpenIssuesCount: r.OpenIssuesCount,
		IsPrivate:       r.Private,
		Owner: domain.Owner{
			Login:     r.Owner.Login,
			ID:        r.Owner.ID,
			AvatarURL: r.Owner.AvatarURL,
			HTMLURL:   r.Owner.HTMLURL,
		},
	}
}
