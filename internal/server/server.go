// Package server exposes the task tracker as an HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/engine/auth"
	"taskboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"only admins or the user themselves may access this user"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(cfg.Auth, auth.Resolver{Users: cfg.Engine.Repo}))

	hcfg := huma.DefaultConfig("Taskboard API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerLogin(group, cfg.Engine, cfg.Auth)
	registerUsers(group, cfg.Engine)
	registerStatuses(group, cfg.Engine)
	registerLabels(group, cfg.Engine)
	registerTasks(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the HTTP error surface. The
// distinction between 401 (no principal) and 403 (policy denial) is
// load-bearing and preserved here.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"reason": fe.Reason})
	}
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"resource": ce.Resource})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

// parseOptionalID decodes a numeric query parameter; empty means the
// filter is absent.
func parseOptionalID(raw, name string) (*int64, huma.StatusError) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed",
			fmt.Sprintf("%s must be an integer", name), map[string]any{name: raw})
	}
	return &id, nil
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}, error) {
		out := &struct {
			Body struct {
				Status string `json:"status" example:"ok"`
			}
		}{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerLogin(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusUnauthorized, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Email == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email and password are required", nil)
		}
		user, err := e.Repo.FindUserByEmail(ctx, input.Body.Email)
		if err != nil {
			// Same answer for unknown user and bad password.
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Body.Password)) != nil {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		token, err := SignToken(authCfg, user)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users (admin only)",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct{}) (*struct {
		XTotalCount string         `header:"X-Total-Count"`
		Body        []UserResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.CanListUsers(principal).Err(); err != nil {
			return nil, handleError(err)
		}
		users, err := e.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, toUserResponse(u))
		}
		return &struct {
			XTotalCount string         `header:"X-Total-Count"`
			Body        []UserResponse `json:"body"`
		}{XTotalCount: strconv.Itoa(len(res)), Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusUnprocessableEntity, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		user, err := e.CreateUser(ctx, input.Body.Email, input.Body.FirstName, input.Body.LastName, input.Body.Password, nil)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: toUserResponse(user)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "show-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Show a user (admin or self)",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.CanManageUser(principal, input.ID).Err(); err != nil {
			return nil, handleError(err)
		}
		user, err := e.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: toUserResponse(user)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPut,
		Path:        "/users/{id}",
		Summary:     "Update a user (admin or self)",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.CanManageUser(principal, input.ID).Err(); err != nil {
			return nil, handleError(err)
		}
		user, err := e.UpdateUser(ctx, input.ID, engine.UserPatch{
			FirstName: input.Body.FirstName,
			LastName:  input.Body.LastName,
			Email:     input.Body.Email,
			Password:  input.Body.Password,
		}, principal.Subject)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: toUserResponse(user)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete a user (admin or self)",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.CanManageUser(principal, input.ID).Err(); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteUser(ctx, input.ID, principal.Subject); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStatuses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-task-statuses",
		Method:      http.MethodGet,
		Path:        "/task_statuses",
		Summary:     "List task statuses (public)",
	}, func(ctx context.Context, input *struct{}) (*struct {
		XTotalCount string           `header:"X-Total-Count"`
		Body        []StatusResponse `json:"body"`
	}, error) {
		statuses, err := e.ListStatuses(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StatusResponse, 0, len(statuses))
		for _, s := range statuses {
			res = append(res, toStatusResponse(s))
		}
		return &struct {
			XTotalCount string           `header:"X-Total-Count"`
			Body        []StatusResponse `json:"body"`
		}{XTotalCount: strconv.Itoa(len(res)), Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "show-task-status",
		Method:      http.MethodGet,
		Path:        "/task_statuses/{id}",
		Summary:     "Show a task status (public)",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		status, err := e.GetStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: toStatusResponse(status)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task-status",
		Method:        http.MethodPost,
		Path:          "/task_statuses",
		Summary:       "Create a task status",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateStatusRequest `json:"body"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		status, err := e.CreateStatus(ctx, input.Body.Name, input.Body.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: toStatusResponse(status)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPut,
		Path:        "/task_statuses/{id}",
		Summary:     "Update a task status",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64               `path:"id"`
		Body UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		status, err := e.UpdateStatus(ctx, input.ID, input.Body.Name, input.Body.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: toStatusResponse(status)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task-status",
		Method:        http.MethodDelete,
		Path:          "/task_statuses/{id}",
		Summary:       "Delete a task status",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteStatus(ctx, input.ID, principal.Subject); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerLabels(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-labels",
		Method:      http.MethodGet,
		Path:        "/labels",
		Summary:     "List labels",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct{}) (*struct {
		XTotalCount string          `header:"X-Total-Count"`
		Body        []LabelResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		labels, err := e.ListLabels(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]LabelResponse, 0, len(labels))
		for _, l := range labels {
			res = append(res, toLabelResponse(l))
		}
		return &struct {
			XTotalCount string          `header:"X-Total-Count"`
			Body        []LabelResponse `json:"body"`
		}{XTotalCount: strconv.Itoa(len(res)), Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "show-label",
		Method:      http.MethodGet,
		Path:        "/labels/{id}",
		Summary:     "Show a label",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body LabelResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		label, err := e.GetLabel(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LabelResponse `json:"body"`
		}{Body: toLabelResponse(label)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-label",
		Method:        http.MethodPost,
		Path:          "/labels",
		Summary:       "Create a label",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body LabelRequest `json:"body"`
	}) (*struct {
		Body LabelResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		label, err := e.CreateLabel(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LabelResponse `json:"body"`
		}{Body: toLabelResponse(label)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-label",
		Method:      http.MethodPut,
		Path:        "/labels/{id}",
		Summary:     "Update a label",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64        `path:"id"`
		Body LabelRequest `json:"body"`
	}) (*struct {
		Body LabelResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		label, err := e.UpdateLabel(ctx, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LabelResponse `json:"body"`
		}{Body: toLabelResponse(label)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-label",
		Method:        http.MethodDelete,
		Path:          "/labels/{id}",
		Summary:       "Delete a label",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteLabel(ctx, input.ID, principal.Subject); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks with optional filters",
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TitleCont  string `query:"titleCont"`
		AssigneeID string `query:"assigneeId"`
		Status     string `query:"status"`
		LabelID    string `query:"labelId"`
		Page       int    `query:"page" default:"1"`
	}) (*struct {
		XTotalCount string         `header:"X-Total-Count"`
		Body        []TaskResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		assigneeID, perr := parseOptionalID(input.AssigneeID, "assigneeId")
		if perr != nil {
			return nil, perr
		}
		labelID, perr := parseOptionalID(input.LabelID, "labelId")
		if perr != nil {
			return nil, perr
		}
		filter := domain.TaskFilter{
			TitleCont:  input.TitleCont,
			AssigneeID: assigneeID,
			Status:     input.Status,
			LabelID:    labelID,
		}
		items, total, err := e.ListTasks(ctx, filter, input.Page)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			XTotalCount string         `header:"X-Total-Count"`
			Body        []TaskResponse `json:"body"`
		}{XTotalCount: strconv.FormatInt(total, 10), Body: toTaskResponses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "show-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Show a task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		task, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: toTaskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.CreateTask(ctx, engine.TaskDraft{
			Title:      input.Body.Title,
			Index:      input.Body.Index,
			Content:    input.Body.Content,
			Status:     input.Body.Status,
			AssigneeID: input.Body.AssigneeID,
			LabelIDs:   input.Body.LabelIDs,
		}, principal.Subject)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: toTaskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// An explicit "assignee_id": null clears the assignee; an absent
		// field leaves it untouched.
		clearAssignee := input.Body.AssigneeID == nil && isNullRaw(rawBodyMap(ctx)["assignee_id"])
		task, err := e.UpdateTask(ctx, input.ID, engine.TaskPatch{
			Title:         input.Body.Title,
			Index:         input.Body.Index,
			Content:       input.Body.Content,
			Status:        input.Body.Status,
			AssigneeID:    input.Body.AssigneeID,
			ClearAssignee: clearAssignee,
			LabelIDs:      input.Body.LabelIDs,
		}, principal.Subject)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: toTaskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, principal.Subject); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
