package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Client is the GitHub-flavored HTTP implementation of Tracker. It is safe
// for concurrent use.
type Client struct {
	BaseURL    string // e.g. "https://api.github.com"
	Repo       string // "owner/name"
	Token      string
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// NewClient returns a tracker client for the repo.
func NewClient(baseURL, repo, token string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), Repo: repo, Token: token}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Message != "" {
			return fmt.Errorf("tracker %s %s: %s", method, path, errBody.Message)
		}
		return fmt.Errorf("tracker %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type wireIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (w wireIssue) issue() Issue {
	labels := make([]string, 0, len(w.Labels))
	for _, l := range w.Labels {
		labels = append(labels, l.Name)
	}
	return Issue{Number: w.Number, Title: w.Title, State: w.State, Labels: labels}
}

// RateLimit reports the core request budget.
func (c *Client) RateLimit(ctx context.Context) (RateLimit, error) {
	var out struct {
		Resources struct {
			Core RateLimit `json:"core"`
		} `json:"resources"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rate_limit", nil, &out); err != nil {
		return RateLimit{}, err
	}
	return out.Resources.Core, nil
}

// ListOpenSpecIssues pages through every open issue carrying the spec label.
func (c *Client) ListOpenSpecIssues(ctx context.Context) ([]Issue, error) {
	var all []Issue
	for page := 1; ; page++ {
		q := url.Values{
			"state":    {"open"},
			"labels":   {models.LabelSpec},
			"per_page": {strconv.Itoa(models.DefaultTrackerPageSize)},
			"page":     {strconv.Itoa(page)},
		}
		var batch []wireIssue
		path := fmt.Sprintf("/repos/%s/issues?%s", c.Repo, q.Encode())
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, err
		}
		for _, w := range batch {
			all = append(all, w.issue())
		}
		if len(batch) < models.DefaultTrackerPageSize {
			return all, nil
		}
	}
}

// CreateSpecIssue creates the tracker entry for a work item.
func (c *Client) CreateSpecIssue(ctx context.Context, item models.WorkItem) (Issue, error) {
	body := map[string]any{
		"title":  IssueTitle(item),
		"body":   issueBody(item),
		"labels": IssueLabels(item),
	}
	var out wireIssue
	path := fmt.Sprintf("/repos/%s/issues", c.Repo)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return Issue{}, err
	}
	return out.issue(), nil
}

func issueBody(item models.WorkItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spec: `%s`\n", item.SpecID)
	fmt.Fprintf(&b, "File: `%s` (line %d)\n", item.FilePath, item.Line)
	fmt.Fprintf(&b, "Feature: `%s`\n", item.FeaturePath)
	fmt.Fprintf(&b, "Priority: `%d`\n", item.Priority)
	if item.TestName != "" {
		fmt.Fprintf(&b, "\n> %s\n", item.TestName)
	}
	return b.String()
}

// AddLabels adds labels to an issue or PR.
func (c *Client) AddLabels(ctx context.Context, issueNumber int, labels ...string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/labels", c.Repo, issueNumber)
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{"labels": labels}, nil)
}

// RemoveLabel removes one label; a 404 (label not present) is not an error.
func (c *Client) RemoveLabel(ctx context.Context, issueNumber int, label string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/labels/%s", c.Repo, issueNumber, url.PathEscape(label))
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracker remove label %q: status %d", label, resp.StatusCode)
	}
	return nil
}

// ClosePR closes a pull request, discarding the work surface.
func (c *Client) ClosePR(ctx context.Context, prNumber int) error {
	path := fmt.Sprintf("/repos/%s/pulls/%d", c.Repo, prNumber)
	return c.doJSON(ctx, http.MethodPatch, path, map[string]string{"state": "closed"}, nil)
}

// CommentPR leaves a diagnostic comment on a pull request.
func (c *Client) CommentPR(ctx context.Context, prNumber int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", c.Repo, prNumber)
	return c.doJSON(ctx, http.MethodPost, path, map[string]string{"body": body}, nil)
}

// DeleteBranch deletes the remote branch backing a discarded PR.
func (c *Client) DeleteBranch(ctx context.Context, branch string) error {
	path := fmt.Sprintf("/repos/%s/git/refs/heads/%s", c.Repo, url.PathEscape(branch))
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil // already gone
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracker delete branch %q: status %d", branch, resp.StatusCode)
	}
	return nil
}
