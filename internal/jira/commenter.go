package jira

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
)

// CommentBody is what the integration comment endpoint accepts.
type CommentBody struct {
	Body    string `json:"body"`
	BaseURL string `json:"base_url,omitempty"`
}

// Commenter posts comments through the integration backend, authenticated with the
// session token obtained at authorization. pathTemplate holds an {issue_key} placeholder.
type Commenter struct {
	serviceURL   string
	pathTemplate string
	httpClient   *http.Client
}

func NewCommenter(serviceURL, pathTemplate string, timeout time.Duration) *Commenter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Commenter{
		serviceURL:   strings.TrimRight(serviceURL, "/"),
		pathTemplate: pathTemplate,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// CommentURL expands the path template for issueKey.
func (c *Commenter) CommentURL(issueKey string) string {
	p := strings.ReplaceAll(c.pathTemplate, "{issue_key}", url.PathEscape(issueKey))
	return c.serviceURL + "/" + strings.TrimLeft(p, "/")
}

// Comment returns a *StatusError for any non-2xx answer.
func (c *Commenter) Comment(ctx context.Context, baseURL, issueKey, text, token string) error {
	data, err := json.Marshal(CommentBody{Body: text, BaseURL: baseURL})
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}
	target := c.CommentURL(issueKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request POST %s: %w", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, http.MethodPost, req.URL.Path, body)
	}
	return nil
}
