package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

const taskColumns = `id, title, description, priority, completed, owner_id, created_at`

// TaskRepo provides data access for the tasks table using sqlx.
type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo { return &TaskRepo{db: db} }

// EnsureTable creates the tasks table and its listing index (idempotent).
// Requires the users table.
func (r *TaskRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL CHECK (title <> ''),
  description TEXT NOT NULL DEFAULT '',
  priority TEXT NOT NULL DEFAULT 'low' CHECK (priority IN ('low', 'medium', 'high')),
  completed BOOLEAN NOT NULL DEFAULT FALSE,
  owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks (owner_id, created_at DESC, id DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts the task and fills CreatedAt from the database.
func (r *TaskRepo) Create(ctx context.Context, t *entity.Task) error {
	const q = `INSERT INTO tasks (id, title, description, priority, completed, owner_id)
		VALUES (:id, :title, :description, :priority, :completed, :owner_id) RETURNING created_at`
	rows, err := r.db.NamedQueryContext(ctx, q, t)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&t.CreatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Save upserts the mutable columns; owner_id and created_at never change.
func (r *TaskRepo) Save(ctx context.Context, t *entity.Task) error {
	const q = `INSERT INTO tasks (id, title, description, priority, completed, owner_id)
		VALUES (:id, :title, :description, :priority, :completed, :owner_id)
		ON CONFLICT (id) DO UPDATE SET
		  title = EXCLUDED.title,
		  description = EXCLUDED.description,
		  priority = EXCLUDED.priority,
		  completed = EXCLUDED.completed
		RETURNING created_at`
	rows, err := r.db.NamedQueryContext(ctx, q, t)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&t.CreatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FindOne returns the first task matching f or sql.ErrNoRows.
func (r *TaskRepo) FindOne(ctx context.Context, f entity.Filter) (*entity.Task, error) {
	where, args := BuildWhere(f)
	q := `SELECT ` + taskColumns + ` FROM tasks` + where + ` LIMIT 1`
	var row entity.Task
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		return nil, err
	}
	return &row, nil
}

// FindAndCount returns one page of matching tasks, newest first, plus the
// total number of matches.
func (r *TaskRepo) FindAndCount(ctx context.Context, f entity.Filter, skip, take int) ([]entity.Task, int, error) {
	where, args := BuildWhere(f)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks`+where, args...); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM tasks%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		taskColumns, where, len(args)+1, len(args)+2)
	rows := []entity.Task{}
	if err := r.db.SelectContext(ctx, &rows, q, append(args, take, skip)...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DeleteByID removes the task; deleting an absent id is not an error.
func (r *TaskRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	return err
}

// BuildWhere renders f as a positional WHERE clause, predicates in a fixed
// column order.
func BuildWhere(f entity.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if f.ID != "" {
		add("id", f.ID)
	}
	if f.OwnerID != "" {
		add("owner_id", f.OwnerID)
	}
	if f.Title != "" {
		add("title", f.Title)
	}
	if f.Priority != "" {
		add("priority", string(f.Priority))
	}
	if f.Completed != nil {
		add("completed", *f.Completed)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
