package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx so lookups can run
// inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return domain.RoleUser
	}
	return strings.Join(roles, ",")
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Users

const userColumns = `id, email, COALESCE(first_name,''), COALESCE(last_name,''), password_hash, roles, created_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var roles string
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &roles, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Roles = splitRoles(roles)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO users(email,first_name,last_name,password_hash,roles,created_at) VALUES (?,?,?,?,?,?)`,
		u.Email, nullable(u.FirstName), nullable(u.LastName), u.PasswordHash, joinRoles(u.Roles), u.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// FindUserByEmail resolves the token subject to its user record.
func (r Repo) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var roles string
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &roles, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Roles = splitRoles(roles)
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUser(ctx context.Context, id int64, firstName, lastName, email, passwordHash *string) error {
	var (
		fields []string
		args   []any
	)
	if firstName != nil {
		fields = append(fields, "first_name=?")
		args = append(args, nullable(*firstName))
	}
	if lastName != nil {
		fields = append(fields, "last_name=?")
		args = append(args, nullable(*lastName))
	}
	if email != nil {
		fields = append(fields, "email=?")
		args = append(args, *email)
	}
	if passwordHash != nil {
		fields = append(fields, "password_hash=?")
		args = append(args, *passwordHash)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteUserTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Task statuses

func scanStatus(row *sql.Row) (domain.TaskStatus, error) {
	var s domain.TaskStatus
	err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertStatus(ctx context.Context, s domain.TaskStatus) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO task_statuses(name,slug,created_at) VALUES (?,?,?)`,
		s.Name, s.Slug, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetStatus(ctx context.Context, id int64) (domain.TaskStatus, error) {
	return scanStatus(r.DB.QueryRowContext(ctx, `SELECT id,name,slug,created_at FROM task_statuses WHERE id=?`, id))
}

// FindStatusBySlug looks a status up by its stable slug.
func (r Repo) FindStatusBySlug(ctx context.Context, slug string) (domain.TaskStatus, error) {
	return scanStatus(r.DB.QueryRowContext(ctx, `SELECT id,name,slug,created_at FROM task_statuses WHERE slug=?`, slug))
}

func (r Repo) ListStatuses(ctx context.Context) ([]domain.TaskStatus, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,slug,created_at FROM task_statuses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskStatus
	for rows.Next() {
		var s domain.TaskStatus
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStatus(ctx context.Context, id int64, name, slug *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if slug != nil {
		fields = append(fields, "slug=?")
		args = append(args, *slug)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, `UPDATE task_statuses SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteStatusTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_statuses WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Labels

func scanLabel(row *sql.Row) (domain.Label, error) {
	var l domain.Label
	err := row.Scan(&l.ID, &l.Name, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) InsertLabel(ctx context.Context, l domain.Label) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO labels(name,created_at) VALUES (?,?)`, l.Name, l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetLabel(ctx context.Context, id int64) (domain.Label, error) {
	return scanLabel(r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM labels WHERE id=?`, id))
}

func (r Repo) FindLabelByName(ctx context.Context, name string) (domain.Label, error) {
	return scanLabel(r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM labels WHERE name=?`, name))
}

func (r Repo) ListLabels(ctx context.Context) ([]domain.Label, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM labels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Label
	for rows.Next() {
		var l domain.Label
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLabel(ctx context.Context, id int64, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE labels SET name=? WHERE id=?`, name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteLabelTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
