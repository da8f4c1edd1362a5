// Package todoist implements remote.Client against the Todoist REST API.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/terminalist/terminalist/internal/remote"
)

const (
	// BackendType is the registry key for Todoist accounts.
	BackendType = "todoist"

	// DefaultBaseURL is the REST API root.
	DefaultBaseURL = "https://api.todoist.com/rest/v2"

	// APITimeout is the timeout for API calls.
	APITimeout = 15 * time.Second
)

func init() {
	remote.Register(BackendType, New)
}

// Settings is the JSON shape of a Todoist backend's settings blob.
type Settings struct {
	BaseURL string `json:"base_url,omitempty"`
}

// Client implements remote.Client over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client from an API token (the credentials blob) and
// optional JSON settings.
func New(ctx context.Context, credentials, settings []byte) (remote.Client, error) {
	token := strings.TrimSpace(string(credentials))
	if token == "" {
		return nil, fmt.Errorf("todoist: API token is required")
	}

	var s Settings
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &s); err != nil {
			return nil, fmt.Errorf("invalid todoist settings: %w", err)
		}
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	return NewWithHTTPClient(httpClient, s.BaseURL), nil
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remote.Unreachable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var cause error
		if text := strings.TrimSpace(string(msg)); text != "" {
			cause = fmt.Errorf("%s", text)
		}
		return remote.FromStatus(op, resp.StatusCode, cause)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.Rejected(op, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// deleteIgnoringMissing issues a DELETE; an id that is already gone counts
// as deleted.
func (c *Client) deleteIgnoringMissing(ctx context.Context, op, path string) error {
	err := c.do(ctx, op, http.MethodDelete, path, nil, nil)
	if remote.IsNotFound(err) {
		return nil
	}
	return err
}

// ListProjects implements remote.Client.
func (c *Client) ListProjects(ctx context.Context) ([]remote.Project, error) {
	var wire []apiProject
	if err := c.do(ctx, "list projects", http.MethodGet, "/projects", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]remote.Project, len(wire))
	for i, p := range wire {
		out[i] = p.record()
	}
	return out, nil
}

// CreateProject implements remote.Client.
func (c *Client) CreateProject(ctx context.Context, p remote.Project) (*remote.Project, error) {
	var wire apiProject
	if err := c.do(ctx, "create project", http.MethodPost, "/projects", projectBody(p, true), &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	return &rec, nil
}

// UpdateProject implements remote.Client. Todoist cannot reparent a project
// through this endpoint; the parent is only honored on create.
func (c *Client) UpdateProject(ctx context.Context, remoteID string, p remote.Project) (*remote.Project, error) {
	var wire apiProject
	if err := c.do(ctx, "update project", http.MethodPost, "/projects/"+remoteID, projectBody(p, false), &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	return &rec, nil
}

// DeleteProject implements remote.Client.
func (c *Client) DeleteProject(ctx context.Context, remoteID string) error {
	return c.deleteIgnoringMissing(ctx, "delete project", "/projects/"+remoteID)
}

// ListSections implements remote.Client.
func (c *Client) ListSections(ctx context.Context) ([]remote.Section, error) {
	var wire []apiSection
	if err := c.do(ctx, "list sections", http.MethodGet, "/sections", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]remote.Section, len(wire))
	for i, s := range wire {
		out[i] = s.record()
	}
	return out, nil
}

// CreateSection implements remote.Client.
func (c *Client) CreateSection(ctx context.Context, s remote.Section) (*remote.Section, error) {
	body := map[string]any{"name": s.Name, "project_id": s.ProjectRemoteID, "order": s.OrderIndex}
	var wire apiSection
	if err := c.do(ctx, "create section", http.MethodPost, "/sections", body, &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	return &rec, nil
}

// UpdateSection implements remote.Client. Only the name can change.
func (c *Client) UpdateSection(ctx context.Context, remoteID string, s remote.Section) (*remote.Section, error) {
	var wire apiSection
	if err := c.do(ctx, "update section", http.MethodPost, "/sections/"+remoteID, map[string]any{"name": s.Name}, &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	return &rec, nil
}

// DeleteSection implements remote.Client.
func (c *Client) DeleteSection(ctx context.Context, remoteID string) error {
	return c.deleteIgnoringMissing(ctx, "delete section", "/sections/"+remoteID)
}

// ListLabels implements remote.Client.
func (c *Client) ListLabels(ctx context.Context) ([]remote.Label, error) {
	var wire []apiLabel
	if err := c.do(ctx, "list labels", http.MethodGet, "/labels", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]remote.Label, len(wire))
	for i, l := range wire {
		out[i] = l.record()
	}
	return out, nil
}

// CreateLabel implements remote.Client.
func (c *Client) CreateLabel(ctx context.Context, l remote.Label) (*remote.Label, error) {
	var wire apiLabel
	if err := c.do(ctx, "create label", http.MethodPost, "/labels", labelBody(l), &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	return &rec, nil
}

// UpdateLabel implements remote.Client.
func (c *Client) UpdateLabel(ctx context.Context, remoteID string, l remote.Label) (*remote.Label, error) {
	var wire apiLabel
	if err := c.do(ctx, "update label", http.MethodPost, "/labels/"+remoteID, labelBody(l), &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	return &rec, nil
}

// DeleteLabel implements remote.Client.
func (c *Client) DeleteLabel(ctx context.Context, remoteID string) error {
	return c.deleteIgnoringMissing(ctx, "delete label", "/labels/"+remoteID)
}

// ListTasks implements remote.Client. The endpoint returns open tasks only,
// so tasks completed elsewhere drop out of the cache on the next pass.
func (c *Client) ListTasks(ctx context.Context) ([]remote.Task, error) {
	var wire []apiTask
	if err := c.do(ctx, "list tasks", http.MethodGet, "/tasks", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]remote.Task, len(wire))
	for i, t := range wire {
		out[i] = t.record()
	}
	return out, nil
}

// CreateTask implements remote.Client. A task created already completed is
// closed right after creation.
func (c *Client) CreateTask(ctx context.Context, t remote.Task) (*remote.Task, error) {
	body := taskBody(t)
	body["project_id"] = t.ProjectRemoteID
	if t.SectionRemoteID != "" {
		body["section_id"] = t.SectionRemoteID
	}
	if t.ParentRemoteID != "" {
		body["parent_id"] = t.ParentRemoteID
	}

	var wire apiTask
	if err := c.do(ctx, "create task", http.MethodPost, "/tasks", body, &wire); err != nil {
		return nil, err
	}
	rec := wire.record()
	if t.IsCompleted {
		if err := c.do(ctx, "close task", http.MethodPost, "/tasks/"+rec.RemoteID+"/close", nil, nil); err != nil {
			return nil, err
		}
		rec.IsCompleted = true
	}
	return &rec, nil
}

// UpdateTask implements remote.Client. Completion state is changed with the
// close and reopen endpoints after the field update.
func (c *Client) UpdateTask(ctx context.Context, remoteID string, t remote.Task) (*remote.Task, error) {
	var wire apiTask
	if err := c.do(ctx, "update task", http.MethodPost, "/tasks/"+remoteID, taskBody(t), &wire); err != nil {
		return nil, err
	}
	rec := wire.record()

	if t.IsCompleted != rec.IsCompleted {
		action := "reopen"
		if t.IsCompleted {
			action = "close"
		}
		if err := c.do(ctx, action+" task", http.MethodPost, "/tasks/"+remoteID+"/"+action, nil, nil); err != nil {
			return nil, err
		}
		rec.IsCompleted = t.IsCompleted
	}
	return &rec, nil
}

// DeleteTask implements remote.Client.
func (c *Client) DeleteTask(ctx context.Context, remoteID string) error {
	return c.deleteIgnoringMissing(ctx, "delete task", "/tasks/"+remoteID)
}

var _ remote.Client = (*Client)(nil)
