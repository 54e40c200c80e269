// Package pr opens GitHub pull requests for diverged repositories whose
// rebase conflicted. The engine never calls this itself; the CLI routes
// manual-intervention errors here when the PR policy enables it.
package pr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal GitHub API client, just enough to open a pull
// request and decorate it per the PR policy.
type Client struct {
	// BaseURL defaults to the public GitHub API.
	BaseURL string

	// Token is a personal access token with repo scope.
	Token string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Request describes the pull request to open.
type Request struct {
	// RepoSlug is "owner/name" on the hosting side.
	RepoSlug string

	// Head is the branch carrying the conflicted work.
	Head string

	// Base is the branch the work should land on.
	Base string

	Title string
	Body  string

	// Reviewers and Labels come from the PR policy.
	Reviewers []string
	Labels    []string
}

// PullRequest is the subset of the API response callers care about.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// Create opens the pull request and, best effort, assigns reviewers and
// labels. Reviewer and label failures are returned but do not roll back
// the created PR.
func (c *Client) Create(ctx context.Context, req Request) (*PullRequest, error) {
	created := &PullRequest{}
	err := c.post(ctx, fmt.Sprintf("/repos/%s/pulls", req.RepoSlug), map[string]any{
		"title": req.Title,
		"body":  req.Body,
		"head":  req.Head,
		"base":  req.Base,
	}, created)
	if err != nil {
		return nil, fmt.Errorf("creating pull request for %s: %w", req.RepoSlug, err)
	}

	if len(req.Reviewers) > 0 {
		err := c.post(ctx, fmt.Sprintf("/repos/%s/pulls/%d/requested_reviewers", req.RepoSlug, created.Number),
			map[string]any{"reviewers": req.Reviewers}, nil)
		if err != nil {
			return created, fmt.Errorf("requesting reviewers on #%d: %w", created.Number, err)
		}
	}
	if len(req.Labels) > 0 {
		err := c.post(ctx, fmt.Sprintf("/repos/%s/issues/%d/labels", req.RepoSlug, created.Number),
			map[string]any{"labels": req.Labels}, nil)
		if err != nil {
			return created, fmt.Errorf("adding labels on #%d: %w", created.Number, err)
		}
	}
	return created, nil
}

// SlugFromRemote extracts "owner/name" from a GitHub remote URL, in
// either SSH (git@github.com:owner/name.git) or HTTPS form. Non-GitHub
// remotes return false; they have no pull-request API we speak.
func SlugFromRemote(url string) (string, bool) {
	url = strings.TrimSuffix(strings.TrimSpace(url), ".git")

	var slug string
	if i := strings.Index(url, "github.com:"); i >= 0 {
		slug = url[i+len("github.com:"):]
	} else if i := strings.Index(url, "github.com/"); i >= 0 {
		slug = url[i+len("github.com/"):]
	} else {
		return "", false
	}

	parts := strings.Split(slug, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return slug, true
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	base := c.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
