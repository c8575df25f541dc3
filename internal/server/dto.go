package server

import (
	"taskboard/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type CreateUserRequest struct {
	Email     string `json:"email" format:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Password  string `json:"password"`
}

type UpdateUserRequest struct {
	Email     *string `json:"email,omitempty" format:"email"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Password  *string `json:"password,omitempty"`
}

type CreateStatusRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type UpdateStatusRequest struct {
	Name *string `json:"name,omitempty"`
	Slug *string `json:"slug,omitempty"`
}

type LabelRequest struct {
	Name string `json:"name"`
}

type CreateTaskRequest struct {
	Title      string  `json:"title"`
	Index      int     `json:"index,omitempty"`
	Content    string  `json:"content,omitempty"`
	Status     string  `json:"status"`
	AssigneeID *int64  `json:"assignee_id,omitempty"`
	LabelIDs   []int64 `json:"taskLabelIds,omitempty"`
}

type UpdateTaskRequest struct {
	Title      *string  `json:"title,omitempty"`
	Index      *int     `json:"index,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Status     *string  `json:"status,omitempty"`
	AssigneeID *int64   `json:"assignee_id,omitempty"`
	LabelIDs   *[]int64 `json:"taskLabelIds,omitempty"`
}

// Response payloads

type UserResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	CreatedAt string `json:"createdAt" format:"date"`
}

type StatusResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"createdAt" format:"date"`
}

type LabelResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt" format:"date"`
}

type TaskResponse struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Index      int     `json:"index"`
	Content    string  `json:"content,omitempty"`
	Status     string  `json:"status"`
	AssigneeID *int64  `json:"assignee_id,omitempty"`
	LabelIDs   []int64 `json:"taskLabelIds,omitempty"`
	CreatedAt  string  `json:"createdAt" format:"date"`
}

// Mapping

func toUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
}

func toStatusResponse(s domain.TaskStatus) StatusResponse {
	return StatusResponse{ID: s.ID, Name: s.Name, Slug: s.Slug, CreatedAt: s.CreatedAt}
}

func toLabelResponse(l domain.Label) LabelResponse {
	return LabelResponse{ID: l.ID, Name: l.Name, CreatedAt: l.CreatedAt}
}

func toTaskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		Title:      t.Title,
		Index:      t.Index,
		Content:    t.Content,
		Status:     t.StatusSlug,
		AssigneeID: t.AssigneeID,
		LabelIDs:   t.LabelIDs,
		CreatedAt:  t.CreatedAt,
	}
}

func toTaskResponses(tasks []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, toTaskResponse(t))
	}
	return res
}
