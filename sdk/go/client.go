// Package taskboardsdk is a minimal typed client for the Taskboard HTTP API.
package taskboardsdk

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
	"time"
)

// Client is a minimal Taskboard HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// TaskStatus represents a task status.
type TaskStatus struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"createdAt"`
}

// Label represents a task label.
type Label struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// Task represents the API task model.
type Task struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Index      int     `json:"index"`
	Content    string  `json:"content,omitempty"`
	Status     string  `json:"status"`
	AssigneeID *int64  `json:"assignee_id,omitempty"`
	LabelIDs   []int64 `json:"taskLabelIds,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

// TaskFilter narrows a task listing. Zero values mean "no filter".
type TaskFilter struct {
	TitleCont  string
	AssigneeID *int64
	Status     string
	LabelID    *int64
}

// TaskPage is one page of a task listing plus the unpaginated total.
type TaskPage struct {
	Items []Task
	Total int64
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the
// client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]any{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "login", body, &resp, nil); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// CreateUser creates a user. Requires an authenticated client.
func (c *Client) CreateUser(ctx context.Context, email, firstName, lastName, password string) (User, error) {
	body := map[string]any{
		"email":     email,
		"firstName": firstName,
		"lastName":  lastName,
		"password":  password,
	}
	var resp User
	err := c.do(ctx, http.MethodPost, "users", body, &resp, nil)
	return resp, err
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("users/%d", id), nil, &resp, nil)
	return resp, err
}

// ListUsers returns all users. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp []User
	err := c.do(ctx, http.MethodGet, "users", nil, &resp, nil)
	return resp, err
}

// DeleteUser removes a user by id.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("users/%d", id), nil, nil, nil)
}

// CreateStatus creates a task status.
func (c *Client) CreateStatus(ctx context.Context, name, slug string) (TaskStatus, error) {
	body := map[string]any{"name": name, "slug": slug}
	var resp TaskStatus
	err := c.do(ctx, http.MethodPost, "task_statuses", body, &resp, nil)
	return resp, err
}

// ListStatuses returns all task statuses.
func (c *Client) ListStatuses(ctx context.Context) ([]TaskStatus, error) {
	var resp []TaskStatus
	err := c.do(ctx, http.MethodGet, "task_statuses", nil, &resp, nil)
	return resp, err
}

// DeleteStatus removes a status. Fails with 409 while tasks reference it.
func (c *Client) DeleteStatus(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("task_statuses/%d", id), nil, nil, nil)
}

// CreateLabel creates a label.
func (c *Client) CreateLabel(ctx context.Context, name string) (Label, error) {
	body := map[string]any{"name": name}
	var resp Label
	err := c.do(ctx, http.MethodPost, "labels", body, &resp, nil)
	return resp, err
}

// ListLabels returns all labels.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var resp []Label
	err := c.do(ctx, http.MethodGet, "labels", nil, &resp, nil)
	return resp, err
}

// DeleteLabel removes a label. Fails with 409 while tasks carry it.
func (c *Client) DeleteLabel(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("labels/%d", id), nil, nil, nil)
}

// CreateTask creates a task. Status is the status slug.
func (c *Client) CreateTask(ctx context.Context, title, status string, opts map[string]any) (Task, error) {
	body := map[string]any{"title": title, "status": status}
	for k, v := range opts {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp, nil)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", id), nil, &resp, nil)
	return resp, err
}

// ListTasks returns one page of tasks matching the filter; the page's
// Total carries the X-Total-Count header so callers can paginate.
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter, page int) (TaskPage, error) {
	q := url.Values{}
	if filter.TitleCont != "" {
		q.Set("titleCont", filter.TitleCont)
	}
	if filter.AssigneeID != nil {
		q.Set("assigneeId", strconv.FormatInt(*filter.AssigneeID, 10))
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.LabelID != nil {
		q.Set("labelId", strconv.FormatInt(*filter.LabelID, 10))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	endpoint := "tasks"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var items []Task
	var header http.Header
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &items, &header); err != nil {
		return TaskPage{}, err
	}
	total, _ := strconv.ParseInt(header.Get("X-Total-Count"), 10, 64)
	return TaskPage{Items: items, Total: total}, nil
}

// DeleteTask removes a task by id.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%d", id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any, header *http.Header) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if header != nil {
		*header = resp.Header
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
