package domain

// Content entry types returned by the GitHub contents API.
const (
	EntryTypeFile = "file"
	EntryTypeDir  = "dir"
)

// RepoFile is one extracted source file, ready to be indexed.
type RepoFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ContentEntry is one item of a repository directory listing.
type ContentEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	DownloadURL string `json:"download_url"`
}

// Webhook is a repository hook as reported by GitHub.
type Webhook struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	Active bool          `json:"active"`
	Events []string      `json:"events"`
	Config WebhookConfig `json:"config"`
}

// WebhookConfig is the delivery configuration of a Webhook.
type WebhookConfig struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	InsecureSSL string `json:"insecure_ssl,omitempty"`
	Secret      string `json:"secret,omitempty"`
}

// IndexMetadata accompanies a batch of files sent to the index.
// Every value is a string.
type IndexMetadata struct {
	GitHubID string `json:"githubId"`
	Name     string `json:"name"`
	RepoID   string `json:"repoId,omitempty"`
}

// IndexRequest is the body sent to the external index for one repository.
type IndexRequest struct {
	RepoID   string        `json:"repoId"`
	Files    []RepoFile    `json:"files"`
	Metadata IndexMetadata `json:"metadata"`
}

// QueryRequest asks the external retrieval service a question about files.
type QueryRequest struct {
	Files    []RepoFile    `json:"files"`
	Prompt   string        `json:"prompt"`
	Metadata IndexMetadata `json:"metadata"`
}
