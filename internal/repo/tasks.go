package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskboard/internal/domain"
	"taskboard/internal/query"
)

const taskColumns = `t.id, t.title, t.idx, COALESCE(t.content,''), s.slug, t.assignee_id, t.created_at`

// translate turns the flat conjunction into WHERE fragments. Each unit
// predicate maps to one condition; conditions join with AND. The label
// membership test uses EXISTS so task rows are never multiplied.
func translate(pred query.Predicate) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	for _, leaf := range query.Leaves(pred) {
		switch p := leaf.(type) {
		case query.TitleContains:
			conds = append(conds, `LOWER(t.title) LIKE ?`)
			args = append(args, "%"+strings.ToLower(p.Substring)+"%")
		case query.AssigneeIs:
			conds = append(conds, `t.assignee_id = ?`)
			args = append(args, p.ID)
		case query.StatusIs:
			conds = append(conds, `s.slug = ?`)
			args = append(args, p.Slug)
		case query.HasLabel:
			conds = append(conds, `EXISTS (SELECT 1 FROM task_labels tl WHERE tl.task_id = t.id AND tl.label_id = ?)`)
			args = append(args, p.ID)
		default:
			return "", nil, fmt.Errorf("unsupported predicate %T", leaf)
		}
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task, statusID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(title,idx,content,status_id,assignee_id,created_at) VALUES (?,?,?,?,?,?)`,
		t.Title, t.Index, nullable(t.Content), statusID, t.AssigneeID, t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ReplaceTaskLabelsTx rewrites the task's label set.
func (r Repo) ReplaceTaskLabelsTx(ctx context.Context, tx *sql.Tx, taskID int64, labelIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_labels WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, id := range labelIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_labels(task_id,label_id) VALUES (?,?)`, taskID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) taskLabelIDs(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT label_id FROM task_labels WHERE task_id=? ORDER BY label_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t JOIN task_statuses s ON s.id = t.status_id WHERE t.id=?`, id)
	var t domain.Task
	var assignee sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Index, &t.Content, &t.StatusSlug, &assignee, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.Int64
	}
	t.LabelIDs, err = r.taskLabelIDs(ctx, id)
	return t, err
}

// ListTasks returns the page of tasks matching pred, ordered by id.
// page is 1-indexed with a fixed window of domain.PageSize.
func (r Repo) ListTasks(ctx context.Context, pred query.Predicate, page int) ([]domain.Task, error) {
	where, args, err := translate(pred)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + taskColumns + ` FROM tasks t JOIN task_statuses s ON s.id = t.status_id` +
		where + ` ORDER BY t.id LIMIT ? OFFSET ?`
	args = append(args, domain.PageSize, (page-1)*domain.PageSize)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var assignee sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Title, &t.Index, &t.Content, &t.StatusSlug, &assignee, &t.CreatedAt); err != nil {
			return nil, err
		}
		if assignee.Valid {
			t.AssigneeID = &assignee.Int64
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].LabelIDs, err = r.taskLabelIDs(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// CountTasks counts every task matching pred, ignoring the page window.
func (r Repo) CountTasks(ctx context.Context, pred query.Predicate) (int64, error) {
	where, args, err := translate(pred)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks t JOIN task_statuses s ON s.id = t.status_id`+where, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, id int64, title, content *string, index *int, statusID, assigneeID *int64, clearAssignee bool) error {
	var (
		fields []string
		args   []any
	)
	if title != nil {
		fields = append(fields, "title=?")
		args = append(args, *title)
	}
	if content != nil {
		fields = append(fields, "content=?")
		args = append(args, nullable(*content))
	}
	if index != nil {
		fields = append(fields, "idx=?")
		args = append(args, *index)
	}
	if statusID != nil {
		fields = append(fields, "status_id=?")
		args = append(args, *statusID)
	}
	if assigneeID != nil {
		fields = append(fields, "assignee_id=?")
		args = append(args, *assigneeID)
	} else if clearAssignee {
		fields = append(fields, "assignee_id=NULL")
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reference checks for the delete guard. They run against the caller's
// transaction so the check and the delete see the same snapshot.

func existsRow(ctx context.Context, q querier, stmt string, args ...any) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, stmt, args...).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) TasksReferenceStatus(ctx context.Context, tx *sql.Tx, statusID int64) (bool, error) {
	return existsRow(ctx, tx, `SELECT 1 FROM tasks WHERE status_id=? LIMIT 1`, statusID)
}

func (r Repo) TasksReferenceLabel(ctx context.Context, tx *sql.Tx, labelID int64) (bool, error) {
	return existsRow(ctx, tx, `SELECT 1 FROM task_labels WHERE label_id=? LIMIT 1`, labelID)
}

func (r Repo) TasksReferenceAssignee(ctx context.Context, tx *sql.Tx, userID int64) (bool, error) {
	return existsRow(ctx, tx, `SELECT 1 FROM tasks WHERE assignee_id=? LIMIT 1`, userID)
}
