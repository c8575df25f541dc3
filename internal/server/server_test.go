package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Admin.Email = "admin@example.com"
	cfg.Admin.Password = "admin-password"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api",
		Auth: AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.Issuer,
			TokenTTL:  cfg.Auth.TokenTTL,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, email, password string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var body LoginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if body.Token == "" {
		t.Fatal("login returned empty token")
	}
	return body.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerUser(t *testing.T, srv *testServer, token, email, password string) UserResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{
		"email":     email,
		"firstName": "Test",
		"lastName":  "User",
		"password":  password,
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
	var user UserResponse
	if err := json.Unmarshal(data, &user); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	return user
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/login", map[string]any{
		"email":    "admin@example.com",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/login", map[string]any{
		"email":    "nobody@example.com",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTasksRequireAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCreateUserRequiresAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{
		"email":    "intruder@example.com",
		"password": "secret",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous create, got %d: %s", res.StatusCode, string(data))
	}

	token := login(t, srv, "admin@example.com", "admin-password")
	user := registerUser(t, srv, token, "member@example.com", "secret")
	if user.Email != "member@example.com" {
		t.Fatalf("unexpected created user %+v", user)
	}
}

func TestStatusesArePublicToRead(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/task_statuses", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.StatusCode, string(data))
	}
	if got := res.Header.Get("X-Total-Count"); got == "" {
		t.Fatal("missing X-Total-Count header")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/task_statuses", map[string]any{
		"name": "Draft", "slug": "draft",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous write, got %d: %s", res.StatusCode, string(data))
	}
}

func TestUserAccessPolicy(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	adminToken := login(t, srv, "admin@example.com", "admin-password")
	alice := registerUser(t, srv, adminToken, "alice@example.com", "alice-password")
	bob := registerUser(t, srv, adminToken, "bob@example.com", "bob-password")

	aliceToken := login(t, srv, "alice@example.com", "alice-password")

	// Listing users is admin-only.
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users", nil, bearer(aliceToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin list, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin list, got %d: %s", res.StatusCode, string(data))
	}
	if got := res.Header.Get("X-Total-Count"); got != "3" {
		t.Fatalf("expected X-Total-Count 3, got %q", got)
	}

	// A user may read themselves but not another user. The denial is a
	// 403, and it never leaks whether the target exists.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users/"+itoa(alice.ID), nil, bearer(aliceToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for self read, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users/"+itoa(bob.ID), nil, bearer(aliceToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-user read, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users/999999", nil, bearer(aliceToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for missing target, got %d", res.StatusCode)
	}

	// Admin can read and update anyone.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/users/"+itoa(bob.ID), map[string]any{
		"firstName": "Robert",
	}, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin update, got %d: %s", res.StatusCode, string(data))
	}
	var updated UserResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if updated.FirstName != "Robert" {
		t.Fatalf("expected updated first name, got %q", updated.FirstName)
	}
}

func TestTaskLifecycleAndFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, srv, "admin@example.com", "admin-password")
	alice := registerUser(t, srv, token, "alice@example.com", "alice-password")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/task_statuses", map[string]any{
		"name": "Draft", "slug": "draft",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/task_statuses", map[string]any{
		"name": "Published", "slug": "published",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d %s", res.StatusCode, string(data))
	}

	// The bootstrap seeds "feature" and "bug" labels.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/labels", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list labels: %d %s", res.StatusCode, string(data))
	}
	var labels []LabelResponse
	if err := json.Unmarshal(data, &labels); err != nil {
		t.Fatalf("unmarshal labels: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 seeded labels, got %d", len(labels))
	}
	featureID := labels[0].ID

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":        "Ship search",
		"content":      "full text search",
		"status":       "draft",
		"assignee_id":  alice.ID,
		"taskLabelIds": []int64{featureID},
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != "draft" {
		t.Fatalf("expected status draft, got %q", created.Status)
	}
	if created.AssigneeID == nil || *created.AssigneeID != alice.ID {
		t.Fatalf("expected assignee %d, got %v", alice.ID, created.AssigneeID)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":  "Write docs",
		"status": "published",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create second task: %d %s", res.StatusCode, string(data))
	}

	// All four filters at once: only the first task matches.
	url := srv.URL + "/api/tasks?titleCont=search&assigneeId=" + itoa(alice.ID) +
		"&status=draft&labelId=" + itoa(featureID)
	res, data = doJSON(t, srv.Client(), http.MethodGet, url, nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered list: %d %s", res.StatusCode, string(data))
	}
	if got := res.Header.Get("X-Total-Count"); got != "1" {
		t.Fatalf("expected X-Total-Count 1, got %q", got)
	}
	var tasks []TaskResponse
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("expected only the matching task, got %+v", tasks)
	}

	// Unfiltered list reports the full count.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, bearer(token))
	if got := res.Header.Get("X-Total-Count"); got != "2" {
		t.Fatalf("expected X-Total-Count 2, got %q", got)
	}

	// Explicit null clears the assignee; an absent field leaves it alone.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/"+itoa(created.ID), map[string]any{
		"assignee_id": nil,
	}, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear assignee: %d %s", res.StatusCode, string(data))
	}
	var cleared TaskResponse
	if err := json.Unmarshal(data, &cleared); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if cleared.AssigneeID != nil {
		t.Fatalf("expected cleared assignee, got %v", *cleared.AssigneeID)
	}
	if cleared.Title != "Ship search" {
		t.Fatalf("absent fields must stay untouched, title became %q", cleared.Title)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/"+itoa(created.ID), nil, bearer(token))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete task: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks/"+itoa(created.ID), nil, bearer(token))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestDeleteGuards(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, srv, "admin@example.com", "admin-password")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/task_statuses", map[string]any{
		"name": "Draft", "slug": "draft",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d %s", res.StatusCode, string(data))
	}
	var status StatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":  "Blocked task",
		"status": "draft",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	// A referenced status cannot be removed.
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/task_statuses/"+itoa(status.ID), nil, bearer(token))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/task_statuses/"+itoa(status.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("vetoed delete must leave the status intact, got %d", res.StatusCode)
	}

	// Once the task is gone the delete succeeds.
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/"+itoa(task.ID), nil, bearer(token))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete task: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/task_statuses/"+itoa(status.ID), nil, bearer(token))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status after dereference: %d", res.StatusCode)
	}
}

func TestListTasksRejectsBadIDFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, srv, "admin@example.com", "admin-password")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?assigneeId=bogus", nil, bearer(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-numeric assigneeId, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?labelId=1.5", nil, bearer(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-integer labelId, got %d: %s", res.StatusCode, string(data))
	}

	// Numeric filters still pass through and report a total.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?assigneeId=42&labelId=7", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for numeric filters, got %d", res.StatusCode)
	}
	if got := res.Header.Get("X-Total-Count"); got != "0" {
		t.Fatalf("expected X-Total-Count 0, got %q", got)
	}
}

func TestPageValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := login(t, srv, "admin@example.com", "admin-password")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?page=0", nil, bearer(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for page=0, got %d: %s", res.StatusCode, string(data))
	}

	// A page past the data is empty, not an error, and still reports
	// the full total.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?page=50", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for out-of-range page, got %d: %s", res.StatusCode, string(data))
	}
	var tasks []TaskResponse
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty page, got %d tasks", len(tasks))
	}
	if got := res.Header.Get("X-Total-Count"); got != "0" {
		t.Fatalf("expected X-Total-Count 0, got %q", got)
	}
}

func itoa(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
