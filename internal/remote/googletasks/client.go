// Package googletasks implements remote.Client using the Google Tasks API.
//
// Google Tasks has task lists and tasks only. Task lists map to projects,
// the default list being the Inbox. Sections and labels are always empty
// and cannot be created. A task's remote id is "<list id>/<task id>"
// because the API addresses tasks within their list.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/remote"
)

const (
	// BackendType is the registry key for Google Tasks accounts.
	BackendType = "googletasks"

	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of items per page.
	PageSize = 100

	// APITimeout is the timeout for API calls.
	APITimeout = 15 * time.Second

	// OAuth scope for Google Tasks
	tasksScope = "https://www.googleapis.com/auth/tasks"
)

func init() {
	remote.Register(BackendType, New)
}

// Credentials is the JSON shape of a Google Tasks backend's credentials blob:
// the OAuth client file downloaded from the Cloud console and a token.
type Credentials struct {
	OAuthClient json.RawMessage `json:"oauth_client"`
	Token       *oauth2.Token   `json:"token"`
}

// Client implements remote.Client.
type Client struct {
	svc *tasks.Service
}

// New creates a client from a Credentials blob. The token is refreshed
// automatically while the client lives.
func New(ctx context.Context, credentials, _ []byte) (remote.Client, error) {
	var creds Credentials
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return nil, fmt.Errorf("invalid googletasks credentials: %w", err)
	}
	if creds.Token == nil {
		return nil, fmt.Errorf("googletasks credentials have no token")
	}

	oauthConfig, err := google.ConfigFromJSON(creds.OAuthClient, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth client: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, creds.Token))
	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client and endpoint (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, endpoint string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// ListProjects implements remote.Client.
func (c *Client) ListProjects(ctx context.Context) ([]remote.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	// The default list's real id marks the Inbox.
	def, err := c.svc.Tasklists.Get(DefaultListID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("list projects", err)
	}

	var result []remote.Project
	err = c.svc.Tasklists.List().MaxResults(PageSize).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, list := range resp.Items {
			result = append(result, remote.Project{
				RemoteID:   list.Id,
				Name:       list.Title,
				IsInbox:    list.Id == def.Id,
				OrderIndex: len(result),
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("list projects", err)
	}
	return result, nil
}

// CreateProject implements remote.Client.
func (c *Client) CreateProject(ctx context.Context, p remote.Project) (*remote.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	list, err := c.svc.Tasklists.Insert(&tasks.TaskList{Title: p.Name}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("create project", err)
	}
	p.RemoteID = list.Id
	p.Name = list.Title
	p.ParentRemoteID = ""
	return &p, nil
}

// UpdateProject implements remote.Client. Only the title is stored upstream.
func (c *Client) UpdateProject(ctx context.Context, remoteID string, p remote.Project) (*remote.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	list, err := c.svc.Tasklists.Patch(remoteID, &tasks.TaskList{Title: p.Name}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("update project", err)
	}
	p.RemoteID = list.Id
	p.Name = list.Title
	p.ParentRemoteID = ""
	return &p, nil
}

// DeleteProject implements remote.Client.
func (c *Client) DeleteProject(ctx context.Context, remoteID string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	err := c.svc.Tasklists.Delete(remoteID).Context(ctx).Do()
	return ignoreNotFound(wrapError("delete project", err))
}

// ListSections implements remote.Client. Google Tasks has no sections.
func (c *Client) ListSections(context.Context) ([]remote.Section, error) { return nil, nil }

// CreateSection implements remote.Client.
func (c *Client) CreateSection(context.Context, remote.Section) (*remote.Section, error) {
	return nil, &remote.Error{Op: "create section", Kind: remote.ErrNotSupported}
}

// UpdateSection implements remote.Client.
func (c *Client) UpdateSection(context.Context, string, remote.Section) (*remote.Section, error) {
	return nil, &remote.Error{Op: "update section", Kind: remote.ErrNotSupported}
}

// DeleteSection implements remote.Client.
func (c *Client) DeleteSection(context.Context, string) error { return nil }

// ListLabels implements remote.Client. Google Tasks has no labels.
func (c *Client) ListLabels(context.Context) ([]remote.Label, error) { return nil, nil }

// CreateLabel implements remote.Client.
func (c *Client) CreateLabel(context.Context, remote.Label) (*remote.Label, error) {
	return nil, &remote.Error{Op: "create label", Kind: remote.ErrNotSupported}
}

// UpdateLabel implements remote.Client.
func (c *Client) UpdateLabel(context.Context, string, remote.Label) (*remote.Label, error) {
	return nil, &remote.Error{Op: "update label", Kind: remote.ErrNotSupported}
}

// DeleteLabel implements remote.Client.
func (c *Client) DeleteLabel(context.Context, string) error { return nil }

// ListTasks implements remote.Client. Completed and hidden tasks are
// included so local completion state survives a pass.
func (c *Client) ListTasks(ctx context.Context) ([]remote.Task, error) {
	lists, err := c.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout*time.Duration(len(lists)+1))
	defer cancel()

	var result []remote.Task
	for _, list := range lists {
		call := c.svc.Tasks.List(list.RemoteID).
			MaxResults(PageSize).
			ShowCompleted(true).
			ShowHidden(true).
			ShowDeleted(false)
		err := call.Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				result = append(result, record(list.RemoteID, t))
			}
			return nil
		})
		if err != nil {
			return nil, wrapError("list tasks", err)
		}
	}
	return result, nil
}

// CreateTask implements remote.Client.
func (c *Client) CreateTask(ctx context.Context, t remote.Task) (*remote.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	call := c.svc.Tasks.Insert(t.ProjectRemoteID, wireTask(t))
	if t.ParentRemoteID != "" {
		_, parent := splitID(t.ParentRemoteID)
		call = call.Parent(parent)
	}
	created, err := call.Context(ctx).Do()
	if err != nil {
		return nil, wrapError("create task", err)
	}
	rec := merge(t, record(t.ProjectRemoteID, created))
	return &rec, nil
}

// UpdateTask implements remote.Client. Moving a task between lists is not
// supported by the API; the task stays in its current list.
func (c *Client) UpdateTask(ctx context.Context, remoteID string, t remote.Task) (*remote.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	list, id := splitID(remoteID)
	updated, err := c.svc.Tasks.Patch(list, id, wireTask(t)).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("update task", err)
	}
	rec := merge(t, record(list, updated))
	return &rec, nil
}

// DeleteTask implements remote.Client.
func (c *Client) DeleteTask(ctx context.Context, remoteID string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	list, id := splitID(remoteID)
	err := c.svc.Tasks.Delete(list, id).Context(ctx).Do()
	return ignoreNotFound(wrapError("delete task", err))
}

// record converts an API task in list into a remote.Task.
func record(list string, t *tasks.Task) remote.Task {
	rec := remote.Task{
		RemoteID:        joinID(list, t.Id),
		ProjectRemoteID: list,
		Content:         t.Title,
		Description:     t.Notes,
		Priority:        model.PriorityNormal,
		IsCompleted:     t.Status == "completed",
		Labels:          []string{},
	}
	if t.Parent != "" {
		rec.ParentRemoteID = joinID(list, t.Parent)
	}
	if len(t.Due) >= len(model.DateLayout) {
		due := t.Due[:len(model.DateLayout)]
		rec.DueDate = &due
	}
	if pos, err := strconv.Atoi(strings.TrimLeft(t.Position, "0")); err == nil {
		rec.OrderIndex = pos
	}
	return rec
}

// merge keeps the local fields Google Tasks cannot store so a push does not
// erase them from the cache.
func merge(local, upstream remote.Task) remote.Task {
	upstream.Priority = local.Priority
	upstream.Labels = local.Labels
	upstream.Deadline = local.Deadline
	upstream.Duration = local.Duration
	upstream.DueDatetime = local.DueDatetime
	upstream.SectionRemoteID = ""
	return upstream
}

func wireTask(t remote.Task) *tasks.Task {
	out := &tasks.Task{Title: t.Content, Notes: t.Description, Status: "needsAction"}
	if t.IsCompleted {
		out.Status = "completed"
	}
	switch {
	case t.DueDate != nil:
		out.Due = *t.DueDate + "T00:00:00.000Z"
	case t.DueDatetime != nil && len(*t.DueDatetime) >= len(model.DateLayout):
		out.Due = (*t.DueDatetime)[:len(model.DateLayout)] + "T00:00:00.000Z"
	default:
		out.NullFields = []string{"Due"}
	}
	if !t.IsCompleted {
		out.NullFields = append(out.NullFields, "Completed")
	}
	return out
}

func joinID(list, id string) string { return list + "/" + id }

func splitID(remoteID string) (list, id string) {
	list, id, ok := strings.Cut(remoteID, "/")
	if !ok {
		return DefaultListID, remoteID
	}
	return list, id
}

// wrapError maps API errors onto remote error kinds.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return remote.FromStatus(op, gerr.Code, errors.New(gerr.Message))
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := http.StatusUnauthorized
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return remote.FromStatus(op, status, err)
	}
	return remote.Unreachable(op, err)
}

func ignoreNotFound(err error) error {
	if remote.IsNotFound(err) {
		return nil
	}
	return err
}

var _ remote.Client = (*Client)(nil)
