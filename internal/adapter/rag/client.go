package rag

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

	"github.com/arturoeanton/repo-sync/internal/domain"
)

// Client talks to the external indexing and retrieval service.
// The index endpoints live under indexURL and queries under queryURL;
// both may be the same host.
type Client struct {
	indexURL   string
	queryURL   string
	httpClient *http.Client
}

// NewClient creates a retrieval-service client.
func NewClient(indexURL, queryURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if queryURL == "" {
		queryURL = indexURL
	}
	return &Client{
		indexURL:   strings.TrimRight(indexURL, "/"),
		queryURL:   strings.TrimRight(queryURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Index sends one batch of files for a repository.
func (c *Client) Index(ctx context.Context, req domain.IndexRequest) error {
	if _, err := c.send(ctx, http.MethodPost, c.indexURL+"/rag/index", req); err != nil {
		return fmt.Errorf("rag: index: %w", err)
	}
	return nil
}

// Delete drops every indexed document of a repository.
func (c *Client) Delete(ctx context.Context, repoID string) error {
	u := c.indexURL + "/rag/delete?" + url.Values{"repoId": {repoID}}.Encode()
	if _, err := c.send(ctx, http.MethodDelete, u, nil); err != nil {
		return fmt.Errorf("rag: delete: %w", err)
	}
	return nil
}

// Query forwards files and a prompt and returns the raw service response.
func (c *Client) Query(ctx context.Context, req domain.QueryRequest) ([]byte, error) {
	body, err := c.send(ctx, http.MethodPost, c.queryURL+"/rag/query", req)
	if err != nil {
		return nil, fmt.Errorf("rag: query: %w", err)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, u string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("service error (%d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}
