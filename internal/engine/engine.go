// Package engine holds the service layer: CRUD operations, the task
// listing pipeline, and the referential delete guard.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/query"
	"taskboard/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) created() string {
	return e.now().UTC().Format("2006-01-02")
}

// ValidationError marks malformed caller input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// ConflictError is the referential guard's veto: the resource is still
// referenced by at least one task.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("cannot delete %s: %s", e.Resource, e.Reason)
}

const connectsWithTasks = "connects with tasks"

// Users

func (e Engine) CreateUser(ctx context.Context, email, firstName, lastName, password string, roles []string) (domain.User, error) {
	if email == "" {
		return domain.User{}, ValidationError{Msg: "email is required"}
	}
	if len(password) < 3 {
		return domain.User{}, ValidationError{Msg: "password must be at least 3 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	if len(roles) == 0 {
		roles = []string{domain.RoleUser}
	}
	u := domain.User{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    e.created(),
	}
	id, err := e.Repo.InsertUser(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	if err := e.Events.Append(ctx, nil, "user.created", "user", strconv.FormatInt(id, 10), email, nil); err != nil {
		return domain.User{}, fmt.Errorf("audit user.created: %w", err)
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

func (e Engine) UpdateUser(ctx context.Context, id int64, patch UserPatch, actorID string) (domain.User, error) {
	var hash *string
	if patch.Password != nil {
		if len(*patch.Password) < 3 {
			return domain.User{}, ValidationError{Msg: "password must be at least 3 characters"}
		}
		h, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}
		s := string(h)
		hash = &s
	}
	if err := e.Repo.UpdateUser(ctx, id, patch.FirstName, patch.LastName, patch.Email, hash); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, nil, "user.updated", "user", strconv.FormatInt(id, 10), actorID, nil); err != nil {
		return domain.User{}, fmt.Errorf("audit user.updated: %w", err)
	}
	return e.Repo.GetUser(ctx, id)
}

// DeleteUser removes a user unless a task still names them as assignee.
// Guard and delete share one transaction.
func (e Engine) DeleteUser(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	referenced, err := e.Repo.TasksReferenceAssignee(ctx, tx, id)
	if err != nil {
		return err
	}
	if referenced {
		return ConflictError{Resource: "user", Reason: connectsWithTasks}
	}
	if err := e.Repo.DeleteUserTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "user", strconv.FormatInt(id, 10), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Task statuses

func (e Engine) CreateStatus(ctx context.Context, name, slug string) (domain.TaskStatus, error) {
	if name == "" {
		return domain.TaskStatus{}, ValidationError{Msg: "name is required"}
	}
	if slug == "" {
		return domain.TaskStatus{}, ValidationError{Msg: "slug is required"}
	}
	s := domain.TaskStatus{Name: name, Slug: slug, CreatedAt: e.created()}
	id, err := e.Repo.InsertStatus(ctx, s)
	if err != nil {
		return domain.TaskStatus{}, err
	}
	s.ID = id
	return s, nil
}

func (e Engine) GetStatus(ctx context.Context, id int64) (domain.TaskStatus, error) {
	return e.Repo.GetStatus(ctx, id)
}

func (e Engine) ListStatuses(ctx context.Context) ([]domain.TaskStatus, error) {
	return e.Repo.ListStatuses(ctx)
}

func (e Engine) UpdateStatus(ctx context.Context, id int64, name, slug *string) (domain.TaskStatus, error) {
	if err := e.Repo.UpdateStatus(ctx, id, name, slug); err != nil {
		return domain.TaskStatus{}, err
	}
	return e.Repo.GetStatus(ctx, id)
}

// DeleteStatus removes a status unless a task still uses it.
func (e Engine) DeleteStatus(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	referenced, err := e.Repo.TasksReferenceStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if referenced {
		return ConflictError{Resource: "task status", Reason: connectsWithTasks}
	}
	if err := e.Repo.DeleteStatusTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "status.deleted", "task_status", strconv.FormatInt(id, 10), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Labels

func (e Engine) CreateLabel(ctx context.Context, name string) (domain.Label, error) {
	if len(name) < 3 || len(name) > 1000 {
		return domain.Label{}, ValidationError{Msg: "label name must be 3 to 1000 characters"}
	}
	l := domain.Label{Name: name, CreatedAt: e.created()}
	id, err := e.Repo.InsertLabel(ctx, l)
	if err != nil {
		return domain.Label{}, err
	}
	l.ID = id
	return l, nil
}

func (e Engine) GetLabel(ctx context.Context, id int64) (domain.Label, error) {
	return e.Repo.GetLabel(ctx, id)
}

func (e Engine) ListLabels(ctx context.Context) ([]domain.Label, error) {
	return e.Repo.ListLabels(ctx)
}

func (e Engine) UpdateLabel(ctx context.Context, id int64, name string) (domain.Label, error) {
	if len(name) < 3 || len(name) > 1000 {
		return domain.Label{}, ValidationError{Msg: "label name must be 3 to 1000 characters"}
	}
	if err := e.Repo.UpdateLabel(ctx, id, name); err != nil {
		return domain.Label{}, err
	}
	return e.Repo.GetLabel(ctx, id)
}

// DeleteLabel removes a label unless a task still carries it.
func (e Engine) DeleteLabel(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	referenced, err := e.Repo.TasksReferenceLabel(ctx, tx, id)
	if err != nil {
		return err
	}
	if referenced {
		return ConflictError{Resource: "label", Reason: connectsWithTasks}
	}
	if err := e.Repo.DeleteLabelTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "label.deleted", "label", strconv.FormatInt(id, 10), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Tasks

type TaskDraft struct {
	Title      string
	Index      int
	Content    string
	Status     string
	AssigneeID *int64
	LabelIDs   []int64
}

func (e Engine) CreateTask(ctx context.Context, draft TaskDraft, actorID string) (domain.Task, error) {
	if draft.Title == "" {
		return domain.Task{}, ValidationError{Msg: "title is required"}
	}
	if draft.Status == "" {
		return domain.Task{}, ValidationError{Msg: "status is required"}
	}
	status, err := e.Repo.FindStatusBySlug(ctx, draft.Status)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("task status %q: %w", draft.Status, repo.ErrNotFound)
		}
		return domain.Task{}, err
	}
	if draft.AssigneeID != nil {
		if _, err := e.Repo.GetUser(ctx, *draft.AssigneeID); err != nil {
			return domain.Task{}, fmt.Errorf("assignee %d: %w", *draft.AssigneeID, err)
		}
	}
	for _, labelID := range draft.LabelIDs {
		if _, err := e.Repo.GetLabel(ctx, labelID); err != nil {
			return domain.Task{}, fmt.Errorf("label %d: %w", labelID, err)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t := domain.Task{
		Title:      draft.Title,
		Index:      draft.Index,
		Content:    draft.Content,
		StatusSlug: status.Slug,
		AssigneeID: draft.AssigneeID,
		LabelIDs:   draft.LabelIDs,
		CreatedAt:  e.created(),
	}
	id, err := e.Repo.InsertTaskTx(ctx, tx, t, status.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskLabelsTx(ctx, tx, id, draft.LabelIDs); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", strconv.FormatInt(id, 10), actorID, events.EventPayload{"title": draft.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

// ListTasks applies the filter predicate plus the page window and
// returns the page along with the window-independent total count.
func (e Engine) ListTasks(ctx context.Context, filter domain.TaskFilter, page int) ([]domain.Task, int64, error) {
	if page < 1 {
		return nil, 0, ValidationError{Msg: "page must be 1 or greater"}
	}
	pred := query.Build(filter)
	total, err := e.Repo.CountTasks(ctx, pred)
	if err != nil {
		return nil, 0, err
	}
	items, err := e.Repo.ListTasks(ctx, pred, page)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

type TaskPatch struct {
	Title         *string
	Index         *int
	Content       *string
	Status        *string
	AssigneeID    *int64
	ClearAssignee bool
	LabelIDs      *[]int64
}

func (e Engine) UpdateTask(ctx context.Context, id int64, patch TaskPatch, actorID string) (domain.Task, error) {
	if _, err := e.Repo.GetTask(ctx, id); err != nil {
		return domain.Task{}, err
	}
	var statusID *int64
	if patch.Status != nil {
		status, err := e.Repo.FindStatusBySlug(ctx, *patch.Status)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, fmt.Errorf("task status %q: %w", *patch.Status, repo.ErrNotFound)
			}
			return domain.Task{}, err
		}
		statusID = &status.ID
	}
	if patch.AssigneeID != nil {
		if _, err := e.Repo.GetUser(ctx, *patch.AssigneeID); err != nil {
			return domain.Task{}, fmt.Errorf("assignee %d: %w", *patch.AssigneeID, err)
		}
	}
	if patch.LabelIDs != nil {
		for _, labelID := range *patch.LabelIDs {
			if _, err := e.Repo.GetLabel(ctx, labelID); err != nil {
				return domain.Task{}, fmt.Errorf("label %d: %w", labelID, err)
			}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTaskTx(ctx, tx, id, patch.Title, patch.Content, patch.Index, statusID, patch.AssigneeID, patch.ClearAssignee); err != nil {
		return domain.Task{}, err
	}
	if patch.LabelIDs != nil {
		if err := e.Repo.ReplaceTaskLabelsTx(ctx, tx, id, *patch.LabelIDs); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", strconv.FormatInt(id, 10), actorID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) DeleteTask(ctx context.Context, id int64, actorID string) error {
	if err := e.Repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, "task.deleted", "task", strconv.FormatInt(id, 10), actorID, nil)
}

// Bootstrap seeds the admin user and the default labels when missing.
func (e Engine) Bootstrap(ctx context.Context) error {
	if e.Config == nil {
		return nil
	}
	if e.Config.Admin.Email != "" {
		_, err := e.Repo.FindUserByEmail(ctx, e.Config.Admin.Email)
		if errors.Is(err, repo.ErrNotFound) {
			if _, err := e.CreateUser(ctx, e.Config.Admin.Email, "", "", e.Config.Admin.Password, []string{domain.RoleAdmin}); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
		} else if err != nil {
			return err
		}
	}
	for _, name := range e.Config.DefaultLabels {
		_, err := e.Repo.FindLabelByName(ctx, name)
		if errors.Is(err, repo.ErrNotFound) {
			if _, err := e.CreateLabel(ctx, name); err != nil {
				return fmt.Errorf("seed label %s: %w", name, err)
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}
